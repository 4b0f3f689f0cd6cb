// Package signalhandler ties OS interrupt signals to context cancellation so
// long-running commands can stop cleanly.
package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// WithSignals derives a context that is cancelled on SIGINT or SIGTERM.
// The first signal requests a graceful stop; a second one exits the
// process immediately for operators who will not wait.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
		<-sigChan
		os.Exit(1)
	}()

	return ctx, cancel
}

// OptimalWorkers returns the worker count used for bulk indexing. Leaving a
// quarter of the cores free keeps the machine responsive while a large
// folder is being processed.
func OptimalWorkers() int {
	numCPU := runtime.NumCPU()

	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
