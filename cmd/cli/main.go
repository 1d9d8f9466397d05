package main

import (
	"os"

	"github.com/beam-cloud/salesmap/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
