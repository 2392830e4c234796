package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubListener struct {
	payload string
	err     error
	block   bool // never deliver, wait for the context
	calls   int
}

func (l *stubListener) WaitForNotification(ctx context.Context, channel string) (string, error) {
	l.calls++
	if l.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return l.payload, l.err
}

func newTestNotifier(listener Listener, host HostChainReader) *HeightNotifier {
	cfg := DefaultConfig()
	cfg.GatewayChainID = 1
	cfg.NotifyTimeout = 20 * time.Millisecond
	return NewHeightNotifier(cfg, listener, host, testLogger())
}

func TestNextHeightFromNotification(t *testing.T) {
	t.Parallel()

	host := newStubHost()
	n := newTestNotifier(&stubListener{payload: "205"}, host)

	height, err := n.NextHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(205), height)
	require.Zero(t, host.blockNumberCalls)
}

func TestNextHeightFallsBackOnTimeout(t *testing.T) {
	t.Parallel()

	host := newStubHost()
	host.blockNumber = 205
	n := newTestNotifier(&stubListener{block: true}, host)

	height, err := n.NextHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(205), height)
	require.Equal(t, 1, host.blockNumberCalls)
}

func TestNextHeightFallsBackOnListenError(t *testing.T) {
	t.Parallel()

	host := newStubHost()
	host.blockNumber = 300
	n := newTestNotifier(&stubListener{err: errors.New("connection reset")}, host)

	height, err := n.NextHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(300), height)
}

func TestNextHeightFallsBackOnMalformedPayload(t *testing.T) {
	t.Parallel()

	host := newStubHost()
	host.blockNumber = 42
	n := newTestNotifier(&stubListener{payload: "not-a-height"}, host)

	height, err := n.NextHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), height)
}

func TestNextHeightFallbackQueryFailure(t *testing.T) {
	t.Parallel()

	host := newStubHost()
	host.blockNumberErr = errors.New("host rpc down")
	n := newTestNotifier(&stubListener{block: true}, host)

	_, err := n.NextHeight(context.Background())
	require.Error(t, err)
}
