// Package cli implements the command-line interface for blockcast.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kilupskalvis/blockcast/internal/config"
	"github.com/kilupskalvis/blockcast/internal/core"
	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Library *core.Library
}

// initContext loads the workspace config and local library
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	lib, err := core.OpenLibrary(cfg)
	if err != nil {
		exitError("%v", err)
	}

	return &cmdContext{Config: cfg, Library: lib}
}

// anonymousClient returns a client for endpoints that need no session.
func (c *cmdContext) anonymousClient() *remote.HTTPClient {
	return remote.NewHTTPClient(c.Config.ServerURL, "")
}

// client returns a retrying client carrying the stored session.
func (c *cmdContext) client() remote.RemoteClient {
	if !c.Config.SessionValid(time.Now()) {
		if c.Config.Token != "" {
			exitError("session for %s expired, run 'blockcast login'", c.Config.Username)
		}
		exitError("not logged in, run 'blockcast login'")
	}
	inner := remote.NewHTTPClient(c.Config.ServerURL, c.Config.Token)
	return remote.NewRetryClient(inner, remote.DefaultRetryConfig())
}

var rootCmd = &cobra.Command{
	Use:   "blockcast",
	Short: "Record and replay block editor sessions",
	Long: `blockcast records block editor sessions as timestamped document snapshots,
plays them back in step with a screen video, and shares them through a
blockcast library server.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(serverCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// readLine prompts on stderr and reads one trimmed line from in.
func readLine(in *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// recordingPath resolves a file argument, falling back to a recording of
// that name in the local library.
func recordingPath(lib *core.Library, arg string) string {
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	if lib != nil {
		if p := lib.Path(arg); fileExists(p) {
			return p
		}
	}
	return arg
}

// optionalLibrary returns the workspace library, or nil outside a workspace.
func optionalLibrary() *core.Library {
	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	lib, err := core.OpenLibrary(cfg)
	if err != nil {
		return nil
	}
	return lib
}

// optionalConfigURL returns the workspace's server URL, or "" outside a workspace.
func optionalConfigURL() string {
	cfg, err := config.Load()
	if err != nil {
		return ""
	}
	return cfg.ServerURL
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
