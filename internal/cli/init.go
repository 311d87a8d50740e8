package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blockcast/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a blockcast workspace",
	Long: `Initialize a blockcast workspace in the current directory.
This creates a .blockcast directory holding the config, local recordings
and captured videos.`,
	Args: cobra.NoArgs,
	Run:  runInit,
}

var initURL string

func init() {
	initCmd.Flags().StringVar(&initURL, "url", envOrDefault("BLOCKCAST_SERVER_URL", config.DefaultServerURL), "Library server URL")
}

func runInit(cmd *cobra.Command, args []string) {
	if _, err := config.FindRoot(""); err == nil {
		exitError("blockcast workspace already exists")
	}

	wd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(wd, initURL)
	if err != nil {
		exitError("failed to initialize workspace: %v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Initialized empty blockcast workspace in %s/\n", config.Dir)
	fmt.Printf("Library server: %s\n", cfg.ServerURL)
	fmt.Printf("\nRun 'blockcast register' or 'blockcast login' to connect.\n")
}
