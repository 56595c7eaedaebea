// Command fusioncache exercises a fusioncache.Cache from the shell. Against a
// shared Redis or SQLite tier, values set by one invocation are visible to
// the next.
//
// Run:
//
//	go run ./cmd/fusioncache demo --callers 50
//	go run ./cmd/fusioncache --redis localhost:6379 set user:1 Ada --ttl 5m
//	go run ./cmd/fusioncache --redis localhost:6379 get user:1
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
