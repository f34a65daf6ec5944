// Command server runs the teamsync API.
package main

import (
	"context"
	"os"

	"github.com/mmynk/teamsync/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
