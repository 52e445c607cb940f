package updater

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RunDaemon returns promptly on context cancellation without ever needing a
// real NETCONF/IRR endpoint, since cancellation is observed before the first
// tick fires.
func TestRunDaemonReturnsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- RunDaemon(ctx, Config{}, time.Hour) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunDaemon did not return after context cancellation")
	}
}

func TestPanicErrorMessage(t *testing.T) {
	err := &panicError{Value: "boom"}
	require.Contains(t, err.Error(), "boom")
}
