package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sessionUsername string

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account on the library server",
	Long: `Create an account on the configured library server. The password is
read from stdin.

Examples:
  blockcast register --user alice
  echo "s3cret" | blockcast register --user alice`,
	Args: cobra.NoArgs,
	Run:  runRegister,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the library server",
	Long: `Log in to the configured library server and store the session token in
the workspace config. Sessions expire after a period set by the server.`,
	Args: cobra.NoArgs,
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	Run:   runLogout,
}

func init() {
	for _, cmd := range []*cobra.Command{registerCmd, loginCmd} {
		cmd.Flags().StringVarP(&sessionUsername, "user", "u", os.Getenv("BLOCKCAST_USER"), "Username (env: BLOCKCAST_USER)")
	}
}

// credentials returns the username flag, prompting for anything missing.
func credentials(cmd *cobra.Command) (string, string) {
	in := bufio.NewReader(cmd.InOrStdin())
	username := sessionUsername
	if username == "" {
		u, err := readLine(in, "Username: ")
		if err != nil {
			exitError("failed to read username: %v", err)
		}
		username = u
	}

	password, err := readLine(in, "Password: ")
	if err != nil {
		exitError("failed to read password: %v", err)
	}
	if username == "" || password == "" {
		exitError("username and password are required")
	}
	return username, password
}

func runRegister(cmd *cobra.Command, _ []string) {
	c := initContext()
	username, password := credentials(cmd)

	if err := c.anonymousClient().Register(context.Background(), username, password); err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Registered %s on %s\n", username, c.Config.ServerURL)
	fmt.Printf("Run 'blockcast login --user %s' to start a session.\n", username)
}

func runLogin(cmd *cobra.Command, _ []string) {
	c := initContext()
	username, password := credentials(cmd)

	resp, err := c.anonymousClient().Login(context.Background(), username, password)
	if err != nil {
		exitError("%v", err)
	}

	c.Config.SetSession(resp.Username, resp.Token, resp.ExpiresAt)
	if err := c.Config.Save(); err != nil {
		exitError("failed to save session: %v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Logged in as %s\n", resp.Username)
	fmt.Printf("Session expires %s\n", resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
}

func runLogout(_ *cobra.Command, _ []string) {
	c := initContext()

	if c.Config.Token == "" {
		fmt.Println("Not logged in")
		return
	}

	client := c.anonymousClient()
	client.SetToken(c.Config.Token)
	if err := client.Logout(context.Background()); err != nil {
		// The local token is dropped either way; an expired session is already gone.
		yellow := color.New(color.FgYellow)
		yellow.Fprintf(os.Stderr, "warning: server logout failed: %v\n", err)
	}

	user := c.Config.Username
	c.Config.ClearSession()
	if err := c.Config.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}
	fmt.Printf("Logged out %s\n", user)
}
