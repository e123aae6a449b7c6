package reach

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (*net.TCPListener, uint16) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	return ln.(*net.TCPListener), uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestConnectProber(t *testing.T) {
	assert := assert.New(t)
	prober := NewConnectProber()

	_, open := listen(t)
	rtt, ok, err := prober.ProbeRTT(context.Background(), "127.0.0.1", open, time.Second)
	assert.NoError(err)
	assert.True(ok)
	assert.NotZero(rtt)

	ln, closed := listen(t)
	ln.Close()
	ok, err = prober.Probe(context.Background(), "127.0.0.1", closed, time.Second)
	assert.NoError(err)
	assert.False(ok)

	ok, err = prober.Probe(context.Background(), "nonexistent.invalid", 80, time.Second)
	assert.NoError(err)
	assert.False(ok)
}

func TestConnectProberErrors(t *testing.T) {
	assert := assert.New(t)
	prober := NewConnectProber()

	ok, err := prober.Probe(context.Background(), "127.0.0.1", 0, time.Second)
	assert.False(ok)
	assert.ErrorIs(err, ErrInvalidPort)

	_, open := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = prober.Probe(ctx, "127.0.0.1", open, time.Second)
	assert.False(ok)
	assert.ErrorIs(err, context.Canceled)
}

func TestConnectProberUnanswered(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	prober := NewConnectProber()
	timeout := 200 * time.Millisecond

	for _, address := range []string{"192.0.2.1", "192.168.0.255"} {
		start := time.Now()
		ok, err := prober.Probe(context.Background(), address, 22, timeout)
		assert.NoError(t, err, address)
		assert.False(t, ok, address)
		assert.Less(t, time.Since(start), timeout+300*time.Millisecond, address)
	}
}
