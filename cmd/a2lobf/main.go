package main

import (
	"os"

	"github.com/a2lobf/a2lobf/cmd/a2lobf/cmds"
	"github.com/a2lobf/a2lobf/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.A2lobfVersion.Build = Build
	}
	os.Exit(cmds.Execute(os.Args[1:]))
}
