package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blockcast/internal/authoring"
	"github.com/kilupskalvis/blockcast/internal/capture"
	"github.com/spf13/cobra"
)

var (
	recordName        string
	recordCaptureCmd  string
	recordCaptureOut  string
	recordContentType string
	recordVerbose     bool
)

var recordCmd = &cobra.Command{
	Use:   "record <script>",
	Short: "Record a scripted editor session",
	Long: `Replay a TOML authoring script against an in-process editor workspace while
the encoder records it, and save the recording to the local library.

With --capture, an external screen recorder runs for the length of the
session. Its argv may contain {output}, replaced by the capture file path;
the captured file is stored in the local video store and referenced by the
recording.

Examples:
  blockcast record lessons/loops.toml
  blockcast record lessons/loops.toml --name loops-v2
  blockcast record loops.toml --capture "ffmpeg -y -f x11grab -i :0 {output}"`,
	Args: cobra.ExactArgs(1),
	Run:  runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordName, "name", "n", "", "Library name for the recording (default: script base name)")
	f.StringVar(&recordCaptureCmd, "capture", "", "Screen recorder command to run during the session")
	f.StringVar(&recordCaptureOut, "capture-output", "", "Capture file path (default: .blockcast/capture.webm)")
	f.StringVar(&recordContentType, "content-type", "video/webm", "Content type of the captured video")
	f.BoolVarP(&recordVerbose, "verbose", "v", false, "Log encoder activity")
}

func runRecord(_ *cobra.Command, args []string) {
	c := initContext()

	script, err := authoring.LoadScript(args[0])
	if err != nil {
		exitError("%v", err)
	}

	name := recordName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}

	level := slog.LevelWarn
	if recordVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []authoring.RunnerOption{authoring.WithLogger(logger)}
	if recordCaptureCmd != "" {
		out := recordCaptureOut
		if out == "" {
			out = filepath.Join(c.Config.Path(), "capture.webm")
		}
		fc := capture.NewFileCapture(out, c.Library.Videos,
			capture.WithCommand(strings.Fields(recordCaptureCmd)...),
			capture.WithContentType(recordContentType),
			capture.WithLogger(logger),
		)
		opts = append(opts, authoring.WithCapture(fc))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rec, err := authoring.NewRunner(opts...).Run(ctx, script)
	if err != nil {
		exitError("%v", err)
	}

	path, err := c.Library.Save(name, rec)
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Recorded %q: %d events, %dms\n", script.Title, len(rec.Events), rec.Length().Milliseconds())
	if rec.VideoURL != "" {
		fmt.Printf("Video: %s\n", rec.VideoURL)
	}
	fmt.Printf("Saved to %s\n", path)
}
