package main

import (
	"fmt"
	"os"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
