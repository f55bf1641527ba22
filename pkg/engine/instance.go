// Package engine provides the per-host proxy runtime: the request
// pipeline, the stump registry, the upstream relay, and the instance
// lifecycle that ties them together.
package engine

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Pankaj-chhatani/stumps/pkg/logging"
	"github.com/Pankaj-chhatani/stumps/pkg/recording"
	"github.com/Pankaj-chhatani/stumps/pkg/store"
	"github.com/Pankaj-chhatani/stumps/pkg/stump"
)

// RequestFinishedFunc is notified after a request has been fully served,
// with the recorded context for that request. It runs on the request
// goroutine and must not block.
type RequestFinishedFunc func(*recording.Context)

// Instance is one mocked host: a listener, a stump registry, a
// recording buffer, and counters, driven by a shared configuration.
type Instance struct {
	stumps     *StumpRegistry
	recordings *recording.Buffer
	listener   *Listener
	counters   Counters
	upstream   *http.Client
	log        *slog.Logger

	mu                 sync.RWMutex
	cfg                Config
	stumpsBeforeRecord bool
	disposed           bool
	onRequestFinished  RequestFinishedFunc
}

// Option customizes an Instance.
type Option func(*Instance)

// WithLogger sets the operational logger for the instance.
func WithLogger(log *slog.Logger) Option {
	return func(i *Instance) {
		if log != nil {
			i.log = log
		}
	}
}

// WithRequestFinished registers the request-finished notification.
func WithRequestFinished(fn RequestFinishedFunc) Option {
	return func(i *Instance) {
		i.onRequestFinished = fn
	}
}

// WithUpstreamClient replaces the HTTP client used for upstream relaying.
func WithUpstreamClient(client *http.Client) Option {
	return func(i *Instance) {
		if client != nil {
			i.upstream = client
		}
	}
}

// NewInstance creates a stopped instance from a validated configuration,
// restoring any previously persisted stumps through the data access.
func NewInstance(cfg Config, da store.DataAccess, opts ...Option) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if da == nil {
		da = store.NewMemory()
	}

	inst := &Instance{
		cfg:        cfg.withDefaults(),
		recordings: recording.NewBuffer(),
		upstream:   newUpstreamClient(),
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(inst)
	}
	inst.log = inst.log.With("instance", cfg.InstanceID)

	inst.stumps = NewStumpRegistry(cfg.InstanceID, da, inst.log)
	if err := inst.stumps.load(); err != nil {
		return nil, err
	}
	inst.listener = NewListener(cfg.ListeningPort, newHandler(inst), inst.log)
	return inst, nil
}

// ID returns the instance identifier.
func (i *Instance) ID() string { return i.cfg.InstanceID }

// Start begins serving on the configured port. Starting a running
// instance is a no-op.
func (i *Instance) Start() error {
	if i.isDisposed() {
		return fmt.Errorf("start instance: %w", ErrDisposed)
	}
	return i.listener.Start()
}

// Shutdown stops serving. Stopping a stopped instance is a no-op.
func (i *Instance) Shutdown() error {
	if i.isDisposed() {
		return fmt.Errorf("shutdown instance: %w", ErrDisposed)
	}
	return i.listener.Shutdown()
}

// IsRunning reports whether the listener is serving.
func (i *Instance) IsRunning() bool {
	return i.listener.State() == ListenerRunning
}

// Dispose shuts the instance down and releases it permanently.
// Dispose is idempotent. Afterwards Start, Shutdown, CreateStump,
// DeleteStump and FindStump fail with ErrDisposed; FindAllContracts,
// StumpNameExists, StumpCount and the configuration, counter and
// recording accessors do not check for disposal.
func (i *Instance) Dispose() {
	i.mu.Lock()
	if i.disposed {
		i.mu.Unlock()
		return
	}
	i.disposed = true
	i.mu.Unlock()

	i.listener.Dispose()
	i.upstream.CloseIdleConnections()
	i.recordings.Clear()
	i.log.Info("instance disposed")
}

// IsDisposed reports whether the instance has been disposed.
func (i *Instance) IsDisposed() bool { return i.isDisposed() }

func (i *Instance) isDisposed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.disposed
}

// CreateStump registers a new stump at the end of the matching order.
func (i *Instance) CreateStump(c *stump.Contract) (*stump.Contract, error) {
	if i.isDisposed() {
		return nil, fmt.Errorf("create stump: %w", ErrDisposed)
	}
	return i.stumps.CreateStump(c)
}

// DeleteStump removes a stump by id.
func (i *Instance) DeleteStump(stumpID string) error {
	if i.isDisposed() {
		return fmt.Errorf("delete stump: %w", ErrDisposed)
	}
	return i.stumps.DeleteStump(stumpID)
}

// FindStump returns the live stump for an id.
func (i *Instance) FindStump(stumpID string) (*stump.Stump, error) {
	if i.isDisposed() {
		return nil, fmt.Errorf("find stump: %w", ErrDisposed)
	}
	return i.stumps.FindStump(stumpID)
}

// FindAllContracts returns a stable snapshot of the stump contracts.
func (i *Instance) FindAllContracts() []*stump.Contract {
	return i.stumps.FindAllContracts()
}

// StumpNameExists reports whether a stump name is taken,
// case-insensitively.
func (i *Instance) StumpNameExists(name string) bool {
	return i.stumps.StumpNameExists(name)
}

// StumpCount returns the number of registered stumps.
func (i *Instance) StumpCount() int {
	return i.stumps.Count()
}

// Recordings returns the instance's recording buffer.
func (i *Instance) Recordings() *recording.Buffer {
	return i.recordings
}

// Counters returns the instance's request counters.
func (i *Instance) Counters() *Counters {
	return &i.counters
}

// Config returns a copy of the current configuration.
func (i *Instance) Config() Config {
	return i.configSnapshot()
}

// ExternalHostName returns the configured upstream host name.
func (i *Instance) ExternalHostName() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.ExternalHostName
}

// SetExternalHostName changes the upstream host. An empty name removes
// the relay stage.
func (i *Instance) SetExternalHostName(hostName string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cfg.ExternalHostName = hostName
}

// UseSecureTransport reports whether the relay uses https.
func (i *Instance) UseSecureTransport() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.UseSecureTransport
}

// SetUseSecureTransport selects http or https for the relay.
func (i *Instance) SetUseSecureTransport(secure bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cfg.UseSecureTransport = secure
}

// ListeningPort returns the local port the instance serves on.
func (i *Instance) ListeningPort() int {
	return i.listener.Port()
}

// AutoStart reports whether the instance starts with StartAll.
func (i *Instance) AutoStart() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.AutoStart
}

// StumpsEnabled reports whether the stump-matching stage runs.
func (i *Instance) StumpsEnabled() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.StumpsEnabled
}

// SetStumpsEnabled turns the stump-matching stage on or off.
func (i *Instance) SetStumpsEnabled(enabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cfg.StumpsEnabled = enabled
}

// RecordTraffic reports whether served requests are being recorded.
func (i *Instance) RecordTraffic() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.RecordTraffic
}

// SetRecordTraffic turns traffic recording on or off. Under the
// disable-stumps recording behavior, enabling recording remembers the
// current stumps-enabled setting and forces it off; disabling recording
// restores the remembered setting. Repeated calls with the same value
// are no-ops.
func (i *Instance) SetRecordTraffic(enabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cfg.RecordTraffic == enabled {
		return
	}
	if enabled {
		if i.cfg.RecordingBehavior == RecordingDisablesStumps {
			i.stumpsBeforeRecord = i.cfg.StumpsEnabled
			i.cfg.StumpsEnabled = false
		}
		i.cfg.RecordTraffic = true
		return
	}
	i.cfg.RecordTraffic = false
	if i.cfg.RecordingBehavior == RecordingDisablesStumps {
		i.cfg.StumpsEnabled = i.stumpsBeforeRecord
	}
}

// RecordingBehavior returns the configured recording behavior.
func (i *Instance) RecordingBehavior() RecordingBehavior {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.RecordingBehavior
}

// Fallback returns the configured fallback response.
func (i *Instance) Fallback() FallbackResponse {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.Fallback
}

// SetFallback selects the synthetic response for unhandled requests.
func (i *Instance) SetFallback(f FallbackResponse) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cfg.Fallback = f
}

// configSnapshot returns the configuration as of now. The pipeline
// takes one snapshot per request.
func (i *Instance) configSnapshot() Config {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg
}

// notifyRequestFinished fires the request-finished notification.
func (i *Instance) notifyRequestFinished(ctx *recording.Context) {
	i.mu.RLock()
	fn := i.onRequestFinished
	i.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}
