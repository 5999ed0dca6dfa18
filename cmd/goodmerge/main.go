// Package main provides the CLI entry point for goodmerge.
package main

import "os"

// version is set at build time with -ldflags "-X main.version=...".
var version = "v0.0.0"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
