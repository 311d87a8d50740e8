package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blockcast/internal/core"
	"github.com/spf13/cobra"
)

var (
	pushTitle       string
	pushVideo       string
	pushContentType string
)

var pushCmd = &cobra.Command{
	Use:   "push <file|name>...",
	Short: "Publish recordings to the library server",
	Long: `Upload the videos referenced by the given recordings, then publish the
recordings to the server library. Publishing the same recording twice
returns the existing entry.

Examples:
  blockcast push loops
  blockcast push loops --title "Loops, part 1"
  blockcast push ./loops.json --video ~/Videos/loops.webm
  blockcast push loops conditions variables`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPush,
}

func init() {
	f := pushCmd.Flags()
	f.StringVarP(&pushTitle, "title", "t", "", "Library title (default: file base name)")
	f.StringVar(&pushVideo, "video", "", "Attach this video file to the recording")
	f.StringVar(&pushContentType, "content-type", "video/webm", "Content type of --video")
}

func runPush(_ *cobra.Command, args []string) {
	c := initContext()
	client := c.client()

	paths := make([]string, len(args))
	for i, a := range args {
		paths[i] = recordingPath(c.Library, a)
	}

	fmt.Printf("Pushing to %s...\n", c.Config.ServerURL)

	results, err := core.Push(context.Background(), c.Library, client, paths, core.PushOptions{
		Title:       pushTitle,
		VideoPath:   pushVideo,
		ContentType: pushContentType,
	}, func(phase string, current, total int) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\r  %s %d/%d", phase, current, total)
		}
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	for _, r := range results {
		green.Printf("  %s ", r.Path)
		fmt.Printf("-> %s %q\n", yellow.Sprint(shortID(r.Info.ID)), r.Info.Title)
	}
}
