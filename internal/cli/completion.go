package cli

import (
	"strings"

	"github.com/kilupskalvis/blockcast/internal/core"
	"github.com/spf13/cobra"
)

// Shell scripts come from cobra's default "completion" command; this file
// only teaches it about library recordings.
func init() {
	for _, cmd := range []*cobra.Command{inspectCmd, playCmd} {
		cmd.ValidArgsFunction = completeRecordings(1)
	}
	pushCmd.ValidArgsFunction = completeRecordings(0)
}

// completeRecordings suggests recording names from the workspace library,
// falling back to file completion. limit caps the positional args completed;
// zero means unlimited.
func completeRecordings(limit int) cobra.CompletionFunc {
	return func(_ *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if limit > 0 && len(args) >= limit {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return matchRecordings(optionalLibrary(), args, toComplete), cobra.ShellCompDirectiveDefault
	}
}

func matchRecordings(lib *core.Library, taken []string, prefix string) []cobra.Completion {
	if lib == nil {
		return nil
	}
	names, err := lib.List()
	if err != nil {
		return nil
	}
	seen := make(map[string]bool, len(taken))
	for _, a := range taken {
		seen[a] = true
	}
	var out []cobra.Completion
	for _, n := range names {
		if strings.HasPrefix(n, prefix) && !seen[n] {
			out = append(out, n)
		}
	}
	return out
}
