// Package main is the sipp client: terminal browser, one-shot upload and
// the admin commands. See internal/cli.
package main

import (
	"os"

	"github.com/sakif/sipp/internal/cli"
)

func main() {
	os.Exit(cli.NewApp().Execute(os.Args[1:]))
}
