// Command librpcd hosts a librpc Context: it loads rpcconfig.Config, binds
// the configured transports, registers the demo instance tree, and serves
// until an interrupt arrives. Grounded on the teacher's cmd/dittofs/main.go
// signal-driven shutdown, trimmed to librpc's scope (no store/share/backup
// commands — those belong to the teacher's filesystem domain).
package main

import (
	"fmt"
	"os"

	"github.com/twoporeguys/go-librpc/cmd/librpcd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
