package main

import (
	"os"

	"github.com/costlens/costlens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
