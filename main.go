// Copyright (c) 2024 cblomart
// Licensed under the MIT License

package main

import (
	"fmt"
	"os"

	"rssreader/internal/cli"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
