package main

import (
	"os"

	"github.com/scholary/streamscribe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
