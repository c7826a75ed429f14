package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Pradhumn115/ruma-core/internal/learning"
)

func main() {
	// Scan for --extract-worker before cobra parses anything: this is
	// how the learning supervisor re-execs this same binary as the
	// detached extraction-worker process, mirroring the flag-scan
	// dispatch the GUI build uses for --mcp.
	for _, arg := range os.Args[1:] {
		if arg == "--extract-worker" {
			if err := runExtractWorker(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runExtractWorker is the child-process entry point: it opens its own
// storage handle, builds the same memory stack as the interactive
// process, and drains the learning queue until stopped or the parent
// supervisor kills it.
func runExtractWorker() error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	mem, engine, err := a.buildMemstoreOnly()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitForSignals(cancel)

	return learning.RunWorker(ctx, a.log, a.db, a.cfg, mem, engine)
}
