// cmd/cgbench/main.go
package main

import (
	cmd "github.com/mwiater/cgbench/internal/cli"
)

// Set by the linker, e.g. -ldflags "-X main.version=0.1.0".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main delegates to the cobra root command. The benchmark driver starts it
// as a subprocess.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
