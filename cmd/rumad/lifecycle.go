package main

import (
	"os"
	"os/signal"
	"syscall"
)

// waitForSignals runs onSignal once SIGINT or SIGTERM arrives, ported
// from the GUI build's systray shutdown hook for a process with no
// window to close.
func waitForSignals(onSignal func()) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		if onSignal != nil {
			onSignal()
		}
	}()
}
