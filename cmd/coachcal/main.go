// Command coachcal runs the training calendar server and a terminal view
// of a client's board.
package main

import (
	"os"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
