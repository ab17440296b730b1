// enginectl is the operator CLI for the engine runtime: it talks to a
// running engine-service process over its administrative HTTP routes to
// list runners, inspect service state, and trigger settings reloads.
package main

import (
	"os"

	"github.com/edgerunner/engine/cmd/enginectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
