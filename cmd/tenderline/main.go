package main

import (
	"os"

	"github.com/tenderline-labs/tenderline/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
