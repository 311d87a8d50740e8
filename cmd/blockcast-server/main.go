// Command blockcast-server runs the blockcast library server.
package main

import (
	"os"

	"github.com/kilupskalvis/blockcast/internal/cli"
)

func main() {
	if err := cli.NewServerCommand("blockcast-server").Execute(); err != nil {
		os.Exit(1)
	}
}
