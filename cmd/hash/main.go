package main

import (
	"os"

	"github.com/hash-lang/hash/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
