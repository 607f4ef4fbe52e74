package main

import (
	"os"

	"github.com/nexd/nexd/cmd/nexd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
