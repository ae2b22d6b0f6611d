package main

import (
	"fmt"
	"os"

	"ROLLCALL-backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(cli.ExitCode(err))
	}
}
