package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blockcast/internal/core"
	"github.com/spf13/cobra"
)

var (
	playAt        []int64
	playStep      int64
	playRemote    bool
	playDocuments bool
)

var playCmd = &cobra.Command{
	Use:   "play <file|name|id>",
	Short: "Show what a viewer sees at points of a recording",
	Long: `Replay a recording onto an in-process editor workspace and print the
editor state at the requested playback times. Without --at or --step the
state at the end of the recording is shown.

With --remote the argument is a library recording id and the server computes
each state.

Examples:
  blockcast play loops --at 0,1500,4000
  blockcast play loops --step 1000
  blockcast play 3f2a9c1e --remote --at 2000`,
	Args: cobra.ExactArgs(1),
	Run:  runPlay,
}

func init() {
	f := playCmd.Flags()
	f.Int64SliceVar(&playAt, "at", nil, "Playback times in ms, comma separated")
	f.Int64Var(&playStep, "step", 0, "Show the state every N ms from start to end")
	f.BoolVar(&playRemote, "remote", false, "Ask the library server for each state")
	f.BoolVar(&playDocuments, "documents", false, "Print the document at each time")
	playCmd.MarkFlagsMutuallyExclusive("at", "step")
}

func runPlay(_ *cobra.Command, args []string) {
	if playRemote {
		playFromServer(args[0])
		return
	}

	rec, err := core.ReadRecordingFile(recordingPath(optionalLibrary(), args[0]))
	if err != nil {
		exitError("%v", err)
	}

	times := playAt
	switch {
	case playStep > 0:
		times, err = core.StepTimes(rec, playStep)
		if err != nil {
			exitError("%v", err)
		}
	case len(times) == 0:
		times = []int64{rec.Length().Milliseconds()}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	frames, err := core.Preview(rec, times, logger)
	if err != nil {
		exitError("%v", err)
	}
	for _, f := range frames {
		printFrame(f.AtMs, f.Position, len(rec.Events), f.Highlight, f.Blocks, f.Document)
	}
}

func playFromServer(id string) {
	c := initContext()
	client := c.client()

	times := playAt
	if len(times) == 0 {
		if playStep > 0 {
			exitError("--step is not supported with --remote, use --at")
		}
		times = []int64{0}
	}
	for _, at := range times {
		st, err := client.State(context.Background(), id, at)
		if err != nil {
			exitError("%v", err)
		}
		printFrame(st.At, st.Position, -1, st.Highlight, st.Blocks, st.Document)
	}
}

func printFrame(at int64, position, total int, highlight string, blocks []string, document string) {
	cyan := color.New(color.FgCyan)
	cyan.Printf("@%dms", at)
	if total >= 0 {
		fmt.Printf("  events %d/%d", position, total)
	} else {
		fmt.Printf("  events %d", position)
	}
	if highlight != "" {
		fmt.Printf("  highlight %s", color.New(color.FgYellow).Sprint(highlight))
	}
	fmt.Println()
	if len(blocks) == 0 {
		fmt.Println("  (empty workspace)")
	} else {
		fmt.Printf("  blocks: %s\n", strings.Join(blocks, ", "))
	}
	if playDocuments {
		fmt.Printf("  %s\n", document)
	}
}
