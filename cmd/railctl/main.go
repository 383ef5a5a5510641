package main

import (
	"os"

	"github.com/capitalize-ai/rail-support-bot/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
