package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blockcast/internal/core"
	"github.com/spf13/cobra"
)

var inspectDocuments bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <file|name>",
	Short: "Show the events of a recording",
	Long: `Validate a recording file and list its events. A bare name refers to a
recording in the local library.

Examples:
  blockcast inspect loops
  blockcast inspect ./exports/loops.json --documents`,
	Args: cobra.ExactArgs(1),
	Run:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectDocuments, "documents", false, "Print each event's document")
}

func runInspect(_ *cobra.Command, args []string) {
	path := recordingPath(optionalLibrary(), args[0])
	rec, err := core.ReadRecordingFile(path)
	if err != nil {
		exitError("%v", err)
	}

	bold := color.New(color.Bold)
	bold.Printf("%s\n", path)
	fmt.Printf("Events:   %d\n", len(rec.Events))
	fmt.Printf("Length:   %dms\n", rec.Length().Milliseconds())
	if rec.VideoURL != "" {
		fmt.Printf("Video:    %s\n", rec.VideoURL)
	} else {
		fmt.Printf("Video:    (none)\n")
	}
	if len(rec.Events) == 0 {
		return
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTIME\tTYPE\tBLOCK\tHIGHLIGHT")
	for i, ev := range rec.Events {
		fmt.Fprintf(w, "%d\t%dms\t%s\t%s\t%s\n", i, ev.Timestamp, ev.Type, dash(ev.Data.BlockID), dash(ev.Data.HighlightElementID))
	}
	w.Flush()

	if inspectDocuments {
		for i, ev := range rec.Events {
			fmt.Printf("\n[%d] %dms\n%s\n", i, ev.Timestamp, ev.Data.Document)
		}
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
