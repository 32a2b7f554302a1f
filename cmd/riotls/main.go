// Command riotls fetches and frames over TLS through an io_uring backed connection.
//
// The io_uring binding links against runtime internals, so builds with Go 1.23 or newer need
//
//	go build -ldflags=-checklinkname=0 ./cmd/riotls
package main

import (
	"fmt"
	"os"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
