// Package recording provides types and storage for captured HTTP traffic.
package recording

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Pankaj-chhatani/stumps/internal/id"
)

// BodyClassification describes the payload kind of a captured body,
// derived from its Content-Type header. The classification is advisory:
// it drives display and conversion defaults, never matching.
type BodyClassification string

const (
	// BodyText marks textual payloads (text/*, JSON, XML and friends).
	BodyText BodyClassification = "text"
	// BodyImage marks image payloads (image/*).
	BodyImage BodyClassification = "image"
	// BodyBinary marks everything else.
	BodyBinary BodyClassification = "binary"
)

// ClassifyBody derives a BodyClassification from a Content-Type header value.
func ClassifyBody(contentType string) BodyClassification {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return BodyImage
	case strings.HasPrefix(mediaType, "text/"):
		return BodyText
	case mediaType == "application/json",
		mediaType == "application/xml",
		mediaType == "application/xhtml+xml",
		mediaType == "application/javascript",
		mediaType == "application/x-www-form-urlencoded",
		strings.HasSuffix(mediaType, "+json"),
		strings.HasSuffix(mediaType, "+xml"):
		return BodyText
	default:
		return BodyBinary
	}
}

// Request is the captured half of a served request.
type Request struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	RawQuery    string              `json:"rawQuery,omitempty"`
	Host        string              `json:"host,omitempty"`
	Headers     http.Header         `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	ContentType string              `json:"contentType,omitempty"`
	BodyKind    BodyClassification  `json:"bodyKind"`
	RemoteAddr  string              `json:"remoteAddr,omitempty"`
}

// Response is the captured half of a served response.
type Response struct {
	StatusCode  int                `json:"statusCode"`
	Status      string             `json:"statusText,omitempty"`
	Headers     http.Header        `json:"headers,omitempty"`
	Body        []byte             `json:"body,omitempty"`
	ContentType string             `json:"contentType,omitempty"`
	BodyKind    BodyClassification `json:"bodyKind"`
}

// Context is an immutable snapshot of one served request/response pair.
// Build one with NewContext and do not mutate it afterwards; it may be
// read concurrently from the recording buffer.
type Context struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
	Request    Request   `json:"request"`
	Response   Response  `json:"response"`
}

// NewContext creates a recorded context with a fresh id and timestamp.
func NewContext() *Context {
	return &Context{
		ID:         id.Short(),
		ReceivedAt: time.Now(),
	}
}

// CaptureRequest snapshots the relevant parts of an incoming request.
// The body must already be fully read; the request stream is not touched.
func (c *Context) CaptureRequest(r *http.Request, body []byte) {
	contentType := r.Header.Get("Content-Type")
	c.Request = Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		Host:        r.Host,
		Headers:     r.Header.Clone(),
		Body:        body,
		ContentType: contentType,
		BodyKind:    ClassifyBody(contentType),
		RemoteAddr:  r.RemoteAddr,
	}
}

// CaptureResponse snapshots a response about to be (or already) written
// to the client.
func (c *Context) CaptureResponse(statusCode int, status string, headers http.Header, body []byte) {
	contentType := headers.Get("Content-Type")
	c.Response = Response{
		StatusCode:  statusCode,
		Status:      status,
		Headers:     headers.Clone(),
		Body:        body,
		ContentType: contentType,
		BodyKind:    ClassifyBody(contentType),
	}
}
