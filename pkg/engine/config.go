package engine

import (
	"fmt"
	"net/http"
)

// RecordingBehavior controls what happens to stump matching while
// traffic recording is enabled.
type RecordingBehavior string

const (
	// RecordingDisablesStumps turns stump matching off for the duration
	// of a recording session and restores the prior setting afterwards.
	RecordingDisablesStumps RecordingBehavior = "disable-stumps"

	// RecordingLeavesStumps leaves stump matching untouched while
	// recording.
	RecordingLeavesStumps RecordingBehavior = "leave-stumps"
)

// FallbackResponse selects the synthetic status served when neither a
// stump nor the upstream relay handles a request.
type FallbackResponse string

const (
	FallbackNotFound           FallbackResponse = "404"
	FallbackServiceUnavailable FallbackResponse = "503"
)

// StatusCode returns the HTTP status code for the fallback response.
// Unrecognised values fall back to 503.
func (f FallbackResponse) StatusCode() int {
	if f == FallbackNotFound {
		return http.StatusNotFound
	}
	return http.StatusServiceUnavailable
}

// Config is the configuration of one proxy instance.
type Config struct {
	// InstanceID uniquely identifies the instance process-wide.
	InstanceID string `json:"instanceId" yaml:"instanceId"`

	// ExternalHostName is the real upstream host ("api.example.com" or
	// "api.example.com:8443"). When empty the relay stage is absent and
	// unmatched requests go straight to the fallback.
	ExternalHostName string `json:"externalHostName,omitempty" yaml:"externalHostName,omitempty"`

	// UseSecureTransport selects https for the upstream relay.
	UseSecureTransport bool `json:"useSecureTransport,omitempty" yaml:"useSecureTransport,omitempty"`

	// ListeningPort is the local TCP port the instance serves on.
	ListeningPort int `json:"listeningPort" yaml:"listeningPort"`

	// AutoStart marks the instance for automatic startup.
	AutoStart bool `json:"autoStart,omitempty" yaml:"autoStart,omitempty"`

	// StumpsEnabled turns the stump-matching pipeline stage on or off.
	StumpsEnabled bool `json:"stumpsEnabled" yaml:"stumpsEnabled"`

	// RecordTraffic appends every served request to the recording buffer.
	RecordTraffic bool `json:"recordTraffic,omitempty" yaml:"recordTraffic,omitempty"`

	// RecordingBehavior controls stump matching while recording.
	RecordingBehavior RecordingBehavior `json:"recordingBehavior,omitempty" yaml:"recordingBehavior,omitempty"`

	// Fallback selects the synthetic response for unhandled requests.
	Fallback FallbackResponse `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Validate checks the configuration. The external host name may be
// empty (no relay); the listening port must be a real TCP port.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidArgument)
	}
	if c.InstanceID == "" {
		return fmt.Errorf("%w: instance id is required", ErrInvalidArgument)
	}
	if c.ListeningPort < 1 || c.ListeningPort > 65535 {
		return fmt.Errorf("%w: listening port %d out of range", ErrInvalidArgument, c.ListeningPort)
	}
	return nil
}

// withDefaults fills zero-valued enum fields.
func (c Config) withDefaults() Config {
	if c.RecordingBehavior == "" {
		c.RecordingBehavior = RecordingLeavesStumps
	}
	if c.Fallback == "" {
		c.Fallback = FallbackServiceUnavailable
	}
	return c
}
