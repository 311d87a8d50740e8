package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	listAuthor string
	listMine   bool
	listLocal  bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings",
	Long: `List the recordings in the server library, newest first, or with --local
the recordings in this workspace.

Examples:
  blockcast list
  blockcast list --author bob
  blockcast list --mine
  blockcast list --local`,
	Args: cobra.NoArgs,
	Run:  runList,
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listAuthor, "author", "", "Only recordings by this author")
	f.BoolVar(&listMine, "mine", false, "Only your own recordings")
	f.BoolVar(&listLocal, "local", false, "List the local library instead")
	listCmd.MarkFlagsMutuallyExclusive("author", "mine", "local")
}

func runList(_ *cobra.Command, _ []string) {
	c := initContext()

	if listLocal {
		names, err := c.Library.List()
		if err != nil {
			exitError("%v", err)
		}
		if len(names) == 0 {
			fmt.Println("No local recordings")
			return
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	author := listAuthor
	if listMine {
		author = c.Config.Username
	}

	list, err := c.client().ListRecordings(context.Background(), author)
	if err != nil {
		exitError("%v", err)
	}
	if len(list) == 0 {
		fmt.Println("No recordings")
		return
	}

	yellow := color.New(color.FgYellow)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tEVENTS\tLENGTH\tVIDEO\tCREATED")
	for _, info := range list {
		video := "-"
		if info.VideoURL != "" {
			video = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1fs\t%s\t%s\n",
			yellow.Sprint(info.ShortID()), info.Title, info.Author, info.EventCount,
			float64(info.DurationMs)/1000, video, info.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
