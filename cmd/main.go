package main

import (
	"os"

	"github.com/UnknownOlympus/pinpoint/internal/cli"
)

var Version = "development"

// main is the entry point of the application.
func main() {
	os.Exit(cli.Execute(Version))
}
