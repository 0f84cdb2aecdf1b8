package main

import (
	"os"

	"github.com/kattapik/texttosql-project/internal/cli"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(int(cli.Run(version + " (" + commit + ", " + date + ")")))
}
