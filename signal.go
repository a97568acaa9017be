package main

import (
	"context"
	"os"
	"os/signal"
)

// shutdownContext returns a context cancelled by the first of sigs. Signal
// handling is then reset to the default, so a second signal terminates the
// process even while a cycle is blocked. released is closed once that reset
// has happened.
func shutdownContext(parent context.Context, sigs ...os.Signal) (ctx context.Context, released <-chan struct{}) {
	ctx, stop := signal.NotifyContext(parent, sigs...)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		stop()
		close(done)
	}()
	return ctx, done
}
