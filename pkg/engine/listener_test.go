package engine

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/Pankaj-chhatani/stumps/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort grabs a currently free TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

// get fetches a URL with a short timeout, retrying briefly while the
// listener goroutine comes up.
func get(t *testing.T, url string) (*http.Response, error) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	var resp *http.Response
	var err error
	for attempt := 0; attempt < 20; attempt++ {
		resp, err = client.Get(url)
		if err == nil {
			return resp, nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return nil, err
}

func TestListenerLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("starts in created state", func(t *testing.T) {
		t.Parallel()
		l := NewListener(freePort(t), okHandler(), logging.Nop())
		assert.Equal(t, ListenerCreated, l.State())
	})

	t.Run("serves requests while running", func(t *testing.T) {
		t.Parallel()
		port := freePort(t)
		l := NewListener(port, okHandler(), logging.Nop())
		require.NoError(t, l.Start())
		defer l.Dispose()
		assert.Equal(t, ListenerRunning, l.State())

		resp, err := get(t, fmt.Sprintf("http://127.0.0.1:%d/", port))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "pong", string(body))
	})

	t.Run("start while running is a no-op", func(t *testing.T) {
		t.Parallel()
		l := NewListener(freePort(t), okHandler(), logging.Nop())
		require.NoError(t, l.Start())
		defer l.Dispose()
		assert.NoError(t, l.Start())
		assert.Equal(t, ListenerRunning, l.State())
	})

	t.Run("shutdown stops accepting connections", func(t *testing.T) {
		t.Parallel()
		port := freePort(t)
		l := NewListener(port, okHandler(), logging.Nop())
		require.NoError(t, l.Start())
		require.NoError(t, l.Shutdown())
		assert.Equal(t, ListenerStopped, l.State())

		client := &http.Client{Timeout: 500 * time.Millisecond}
		_, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
		assert.Error(t, err)
	})

	t.Run("shutdown before start is a no-op", func(t *testing.T) {
		t.Parallel()
		l := NewListener(freePort(t), okHandler(), logging.Nop())
		assert.NoError(t, l.Shutdown())
		assert.Equal(t, ListenerCreated, l.State())
	})

	t.Run("stopped listener can restart", func(t *testing.T) {
		t.Parallel()
		port := freePort(t)
		l := NewListener(port, okHandler(), logging.Nop())
		require.NoError(t, l.Start())
		require.NoError(t, l.Shutdown())
		require.NoError(t, l.Start())
		defer l.Dispose()

		resp, err := get(t, fmt.Sprintf("http://127.0.0.1:%d/", port))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("bind failure surfaces as error", func(t *testing.T) {
		t.Parallel()
		ln, err := net.Listen("tcp", ":0")
		require.NoError(t, err)
		defer func() { _ = ln.Close() }()
		port := ln.Addr().(*net.TCPAddr).Port

		l := NewListener(port, okHandler(), logging.Nop())
		assert.Error(t, l.Start())
		assert.Equal(t, ListenerCreated, l.State())
	})
}

func TestListenerDispose(t *testing.T) {
	t.Parallel()

	t.Run("dispose stops a running listener", func(t *testing.T) {
		t.Parallel()
		l := NewListener(freePort(t), okHandler(), logging.Nop())
		require.NoError(t, l.Start())
		l.Dispose()
		assert.Equal(t, ListenerDisposed, l.State())
	})

	t.Run("dispose is idempotent", func(t *testing.T) {
		t.Parallel()
		l := NewListener(freePort(t), okHandler(), logging.Nop())
		l.Dispose()
		l.Dispose()
		assert.Equal(t, ListenerDisposed, l.State())
	})

	t.Run("operations on a disposed listener fail", func(t *testing.T) {
		t.Parallel()
		l := NewListener(freePort(t), okHandler(), logging.Nop())
		l.Dispose()
		assert.ErrorIs(t, l.Start(), ErrDisposed)
		assert.ErrorIs(t, l.Shutdown(), ErrDisposed)
	})
}

func TestListenerStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created", ListenerCreated.String())
	assert.Equal(t, "running", ListenerRunning.String())
	assert.Equal(t, "stopped", ListenerStopped.String())
	assert.Equal(t, "disposed", ListenerDisposed.String())
}
