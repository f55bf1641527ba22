package stump

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Pankaj-chhatani/stumps/pkg/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordedContext(t *testing.T) *recording.Context {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "http://mocked.local/orders?expand=items", strings.NewReader(`{"sku":"a1"}`))
	req.Header.Set("Content-Type", "application/json")

	ctx := recording.NewContext()
	ctx.CaptureRequest(req, []byte(`{"sku":"a1"}`))

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Content-Length", "14")
	headers.Set("X-Upstream", "orders-svc")
	ctx.CaptureResponse(http.StatusCreated, "201 Created", headers, []byte(`{"id":"o-9"}`))
	return ctx
}

func TestFromRecording(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil context", func(t *testing.T) {
		t.Parallel()
		_, err := FromRecording(nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("builds a contract from the captured pair", func(t *testing.T) {
		t.Parallel()
		ctx := recordedContext(t)

		c, err := FromRecording(ctx)
		require.NoError(t, err)

		assert.Empty(t, c.ID)
		assert.Contains(t, c.Name, "POST /orders")
		assert.Equal(t, http.StatusCreated, c.Response.StatusCode)
		assert.Equal(t, "Created", c.Response.StatusDescription)
		assert.Equal(t, []byte(`{"id":"o-9"}`), c.Response.Body)
		assert.True(t, c.Response.BodyIsText)
		assert.False(t, c.Response.BodyIsImage)

		// Content-Length is never carried over.
		for _, h := range c.Response.Headers {
			assert.NotEqual(t, "Content-Length", h.Name)
		}
	})

	t.Run("contract matches its own recorded request", func(t *testing.T) {
		t.Parallel()
		ctx := recordedContext(t)

		c, err := FromRecording(ctx)
		require.NoError(t, err)
		c.ID = "converted"

		s, err := c.Materialize()
		require.NoError(t, err)

		same := httptest.NewRequest(http.MethodPost, "http://mocked.local/orders?expand=items", nil)
		assert.True(t, s.IsMatch(same, []byte(`{"sku":"a1"}`)))

		otherPath := httptest.NewRequest(http.MethodPost, "http://mocked.local/other?expand=items", nil)
		assert.False(t, s.IsMatch(otherPath, []byte(`{"sku":"a1"}`)))

		otherBody := httptest.NewRequest(http.MethodPost, "http://mocked.local/orders?expand=items", nil)
		assert.False(t, s.IsMatch(otherBody, []byte(`{}`)))
	})

	t.Run("skips body rule when nothing was captured", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "http://mocked.local/ping", nil)
		ctx := recording.NewContext()
		ctx.CaptureRequest(req, nil)
		ctx.CaptureResponse(http.StatusOK, "200 OK", http.Header{}, nil)

		c, err := FromRecording(ctx)
		require.NoError(t, err)
		for _, def := range c.Rules {
			assert.NotEqual(t, RuleTypeBodyEquals, def.Type)
		}
	})
}
