package engine

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Pankaj-chhatani/stumps/pkg/recording"
	"github.com/Pankaj-chhatani/stumps/pkg/stump"
)

// MaxRequestBodySize bounds how much of a client request body is
// buffered for matching and recording.
const MaxRequestBodySize = 10 << 20 // 10MB

// stage identifies which pipeline stage produced a response.
type stage int

const (
	stageFallback stage = iota
	stageStump
	stageProxy
)

// servedResponse is the response a pipeline stage decided on, captured
// before it is written so it can be recorded afterwards.
type servedResponse struct {
	stage      stage
	statusCode int
	status     string
	headers    http.Header
	body       []byte
}

// Handler runs the request pipeline of one instance: stump match, then
// upstream relay, then fallback. The first stage to accept a request
// terminates the pipeline and writes the response.
type Handler struct {
	inst *Instance
}

// newHandler creates the pipeline handler for an instance.
func newHandler(inst *Instance) *Handler {
	return &Handler{inst: inst}
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	inst := h.inst
	cfg := inst.configSnapshot()

	// Buffer the request body once; stages and rules see the same bytes.
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
		if err != nil {
			inst.log.Warn("failed to read request body", "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	served := h.run(r, body, cfg)
	writeServed(w, served)

	// Counters and the recording hook fire only after the response has
	// been written to the client.
	ctx := recording.NewContext()
	ctx.CaptureRequest(r, body)
	ctx.CaptureResponse(served.statusCode, served.status, served.headers, served.body)

	if cfg.RecordTraffic {
		inst.recordings.Append(ctx)
	}
	inst.counters.recordServed(served.stage)
	inst.notifyRequestFinished(ctx)
}

// run executes the pipeline stages in order and returns the response
// the terminating stage decided on.
func (h *Handler) run(r *http.Request, body []byte, cfg Config) *servedResponse {
	// Stage A: stump match, in insertion order over a snapshot taken now.
	if cfg.StumpsEnabled {
		for _, s := range h.inst.stumps.Snapshot() {
			if s.IsMatch(r, body) {
				h.inst.log.Debug("request matched stump",
					"method", r.Method, "path", r.URL.Path, "stump", s.ID())
				return cannedToServed(s.Response())
			}
		}
	}

	// Stage B: upstream relay.
	if cfg.ExternalHostName != "" {
		relayed, err := relayUpstream(h.inst.upstream, r, body, cfg.ExternalHostName, cfg.UseSecureTransport)
		if err != nil {
			h.inst.log.Warn("upstream relay failed",
				"host", cfg.ExternalHostName, "method", r.Method, "path", r.URL.Path, "error", err)
			return &servedResponse{
				stage:      stageProxy,
				statusCode: http.StatusBadGateway,
				status:     "502 " + http.StatusText(http.StatusBadGateway),
				headers:    http.Header{"Content-Length": []string{"0"}},
			}
		}
		return &servedResponse{
			stage:      stageProxy,
			statusCode: relayed.statusCode,
			status:     relayed.status,
			headers:    relayed.headers,
			body:       relayed.body,
		}
	}

	// Stage C: fallback.
	code := cfg.Fallback.StatusCode()
	return &servedResponse{
		stage:      stageFallback,
		statusCode: code,
		status:     strconv.Itoa(code) + " " + http.StatusText(code),
		headers:    http.Header{"Content-Length": []string{"0"}},
	}
}

// cannedToServed turns a stump's canned response into a served response.
// Headers keep their insertion order and duplicates; the content type
// is taken from the body content type unless a header already names it.
func cannedToServed(resp *stump.Response) *servedResponse {
	headers := http.Header{}
	hasContentType := false
	for _, hd := range resp.Headers {
		headers.Add(hd.Name, hd.Value)
		if strings.EqualFold(hd.Name, "Content-Type") {
			hasContentType = true
		}
	}
	if !hasContentType && resp.BodyContentType != "" {
		headers.Set("Content-Type", resp.BodyContentType)
	}

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusDescription != "" {
		status += " " + resp.StatusDescription
	} else if text := http.StatusText(resp.StatusCode); text != "" {
		status += " " + text
	}

	return &servedResponse{
		stage:      stageStump,
		statusCode: resp.StatusCode,
		status:     status,
		headers:    headers,
		body:       resp.Body,
	}
}

// writeServed writes a served response to the client.
func writeServed(w http.ResponseWriter, served *servedResponse) {
	for name, values := range served.headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if len(served.body) == 0 {
		w.Header().Set("Content-Length", "0")
	}
	w.WriteHeader(served.statusCode)
	if len(served.body) > 0 {
		_, _ = w.Write(served.body)
	}
}
