package engine

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Upstream relay limits. Failures are never retried; the caller turns
// them into a 502 for the client.
const (
	relayDialTimeout    = 10 * time.Second
	relayRequestTimeout = 30 * time.Second

	// maxRelayBodySize bounds how much of an upstream response is buffered.
	maxRelayBodySize = 10 << 20 // 10MB
)

// hopByHopHeaders are never forwarded in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// relayedResponse is a fully-buffered upstream response.
type relayedResponse struct {
	statusCode int
	status     string
	headers    http.Header
	body       []byte
}

// newUpstreamClient builds the shared HTTP client used for relaying.
// Redirects are not followed; the client sees them verbatim.
func newUpstreamClient() *http.Client {
	return &http.Client{
		Timeout: relayRequestTimeout,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: relayDialTimeout}).DialContext,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// relayUpstream forwards the request to the configured upstream host
// and returns the buffered response. The body must already be read from
// the client.
func relayUpstream(client *http.Client, r *http.Request, body []byte, hostName string, secure bool) (*relayedResponse, error) {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	target := fmt.Sprintf("%s://%s%s", scheme, hostName, r.URL.RequestURI())

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	copyHeaders(out.Header, r.Header)
	removeHopByHopHeaders(out.Header)
	out.Header.Set("X-Forwarded-For", clientIP(r.RemoteAddr))
	out.Header.Set("X-Forwarded-Host", r.Host)
	out.Host = hostName

	resp, err := client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("reach upstream %s: %w", hostName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBodySize))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	headers := resp.Header.Clone()
	removeHopByHopHeaders(headers)

	return &relayedResponse{
		statusCode: resp.StatusCode,
		status:     resp.Status,
		headers:    headers,
		body:       respBody,
	}, nil
}

// copyHeaders copies headers from src to dst, preserving duplicates.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that must not be forwarded.
func removeHopByHopHeaders(h http.Header) {
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}

// clientIP strips the port from a remote address.
func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
