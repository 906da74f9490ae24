package main

import (
	"fmt"
	"os"

	"github.com/kommetio/kommet-core/internal/cli/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
