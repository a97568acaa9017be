package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownContextReleasesSignalsAfterFirst(t *testing.T) {
	ctx, released := shutdownContext(context.Background(), syscall.SIGUSR1)

	// SIGUSR1 stays caught after shutdownContext lets go
	guard := make(chan os.Signal, 2)
	signal.Notify(guard, syscall.SIGUSR1)
	defer signal.Stop(guard)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by signal")
	}
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("signal handling not released after first signal")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestShutdownContextFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, released := shutdownContext(parent, syscall.SIGUSR2)
	cancel()

	<-ctx.Done()
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("signal handling not released after parent cancel")
	}
}
