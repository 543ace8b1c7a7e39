// Command magnolia explains, runs and replays chained document store
// operations.
package main

import (
	"os"

	"github.com/roach88/magnolia/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
