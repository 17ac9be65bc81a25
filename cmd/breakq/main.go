package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/breakq/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		var e *cli.ExitError
		if !errors.As(err, &e) || e.Code == cli.ExitCommandError {
			fmt.Fprintln(os.Stderr, "breakq:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
