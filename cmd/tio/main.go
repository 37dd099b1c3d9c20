package main

import (
	"fmt"
	"os"

	"github.com/twinleaf/tio-go/cmd/tio/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tio:", err)
		os.Exit(1)
	}
}
