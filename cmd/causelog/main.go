// Command causelog inspects JSON-lines trace files written by causelog.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/causelog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
