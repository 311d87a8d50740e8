// Command blockcast records, inspects, plays and shares block editor sessions.
package main

import (
	"os"

	"github.com/kilupskalvis/blockcast/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
