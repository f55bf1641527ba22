package engine

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayUpstream(t *testing.T) {
	t.Parallel()

	t.Run("forwards method, headers and body", func(t *testing.T) {
		t.Parallel()
		var got *http.Request
		var gotBody []byte
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Clone(r.Context())
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("X-Upstream", "yes")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("accepted"))
		}))
		defer upstream.Close()

		client := newUpstreamClient()
		req := httptest.NewRequest(http.MethodPut, "http://mocked.local/things/7?v=2", strings.NewReader("payload"))
		req.Header.Set("X-Custom", "kept")
		req.Header.Set("Connection", "keep-alive")
		req.RemoteAddr = "198.51.100.7:52341"

		relayed, err := relayUpstream(client, req, []byte("payload"), upstreamHost(t, upstream.URL), false)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPut, got.Method)
		assert.Equal(t, "/things/7", got.URL.Path)
		assert.Equal(t, "v=2", got.URL.RawQuery)
		assert.Equal(t, "payload", string(gotBody))
		assert.Equal(t, "kept", got.Header.Get("X-Custom"))
		assert.Equal(t, "198.51.100.7", got.Header.Get("X-Forwarded-For"))
		assert.Equal(t, "mocked.local", got.Header.Get("X-Forwarded-Host"))

		assert.Equal(t, http.StatusAccepted, relayed.statusCode)
		assert.Equal(t, "yes", relayed.headers.Get("X-Upstream"))
		assert.Equal(t, []byte("accepted"), relayed.body)
	})

	t.Run("strips hop-by-hop request headers", func(t *testing.T) {
		t.Parallel()
		var gotProxyAuth string
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotProxyAuth = r.Header.Get("Proxy-Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer upstream.Close()

		req := httptest.NewRequest(http.MethodGet, "http://mocked.local/", nil)
		req.Header.Set("Proxy-Authorization", "secret")

		_, err := relayUpstream(newUpstreamClient(), req, nil, upstreamHost(t, upstream.URL), false)
		require.NoError(t, err)
		assert.Empty(t, gotProxyAuth)
	})

	t.Run("does not follow redirects", func(t *testing.T) {
		t.Parallel()
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		}))
		defer upstream.Close()

		req := httptest.NewRequest(http.MethodGet, "http://mocked.local/", nil)
		relayed, err := relayUpstream(newUpstreamClient(), req, nil, upstreamHost(t, upstream.URL), false)
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, relayed.statusCode)
		assert.Equal(t, "/elsewhere", relayed.headers.Get("Location"))
	})

	t.Run("connection failure returns an error", func(t *testing.T) {
		t.Parallel()
		upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		hostName := upstreamHost(t, upstream.URL)
		upstream.Close()

		req := httptest.NewRequest(http.MethodGet, "http://mocked.local/", nil)
		_, err := relayUpstream(newUpstreamClient(), req, nil, hostName, false)
		assert.Error(t, err)
	})
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "198.51.100.7", clientIP("198.51.100.7:52341"))
	assert.Equal(t, "::1", clientIP("[::1]:8080"))
	assert.Equal(t, "noport", clientIP("noport"))
}

func TestFallbackResponseStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusNotFound, FallbackNotFound.StatusCode())
	assert.Equal(t, http.StatusServiceUnavailable, FallbackServiceUnavailable.StatusCode())
	assert.Equal(t, http.StatusServiceUnavailable, FallbackResponse("").StatusCode())
}
