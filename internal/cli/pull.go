package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blockcast/internal/core"
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <id>...",
	Short: "Download recordings from the library server",
	Long: `Download recordings and the videos they reference into the local library.
Videos already stored locally are not downloaded again.

Examples:
  blockcast pull 3f2a9c1e0b...
  blockcast pull <id> <id>`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPull,
}

func runPull(_ *cobra.Command, args []string) {
	c := initContext()
	client := c.client()

	results, err := core.Pull(context.Background(), c.Library, client, args, func(phase string, current, total int) {
		fmt.Fprintf(os.Stderr, "\r  %s %d/%d", phase, current, total)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	for _, r := range results {
		green.Printf("  %s ", shortID(r.ID))
		fmt.Printf("-> %s", r.Path)
		if r.VideoPulled {
			fmt.Print(" (+video)")
		}
		fmt.Println()
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one of your recordings from the library server",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		c := initContext()
		if err := c.client().DeleteRecording(context.Background(), args[0]); err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Deleted %s\n", shortID(args[0]))
	},
}
