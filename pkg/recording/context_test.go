package recording

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        BodyClassification
	}{
		{"text/plain", BodyText},
		{"text/html; charset=utf-8", BodyText},
		{"application/json", BodyText},
		{"application/json; charset=utf-8", BodyText},
		{"application/xml", BodyText},
		{"application/hal+json", BodyText},
		{"application/atom+xml", BodyText},
		{"application/x-www-form-urlencoded", BodyText},
		{"image/png", BodyImage},
		{"image/svg+xml", BodyImage},
		{"application/octet-stream", BodyBinary},
		{"application/pdf", BodyBinary},
		{"", BodyBinary},
		{"garbage;;;", BodyBinary},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("classifies "+tt.contentType, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyBody(tt.contentType))
		})
	}
}

func TestContextCaptureRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "http://mocked.local/orders?limit=5", strings.NewReader(`{"n":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "abc")

	ctx := NewContext()
	ctx.CaptureRequest(req, []byte(`{"n":1}`))

	require.NotEmpty(t, ctx.ID)
	assert.False(t, ctx.ReceivedAt.IsZero())
	assert.Equal(t, "POST", ctx.Request.Method)
	assert.Equal(t, "/orders", ctx.Request.Path)
	assert.Equal(t, "limit=5", ctx.Request.RawQuery)
	assert.Equal(t, "abc", ctx.Request.Headers.Get("X-Request-Id"))
	assert.Equal(t, []byte(`{"n":1}`), ctx.Request.Body)
	assert.Equal(t, BodyText, ctx.Request.BodyKind)
}

func TestContextCaptureRequestHeadersAreCopied(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "http://mocked.local/", nil)
	req.Header.Set("X-Mutated", "before")

	ctx := NewContext()
	ctx.CaptureRequest(req, nil)
	req.Header.Set("X-Mutated", "after")

	assert.Equal(t, "before", ctx.Request.Headers.Get("X-Mutated"))
}

func TestContextCaptureResponse(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "image/png")

	ctx := NewContext()
	ctx.CaptureResponse(200, "200 OK", rec.Header(), []byte{0x89, 0x50})

	assert.Equal(t, 200, ctx.Response.StatusCode)
	assert.Equal(t, BodyImage, ctx.Response.BodyKind)
	assert.Equal(t, []byte{0x89, 0x50}, ctx.Response.Body)
}
