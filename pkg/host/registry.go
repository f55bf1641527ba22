// Package host provides the process-wide directory of proxy instances.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Pankaj-chhatani/stumps/internal/id"
	"github.com/Pankaj-chhatani/stumps/pkg/engine"
	"github.com/Pankaj-chhatani/stumps/pkg/logging"
	"github.com/Pankaj-chhatani/stumps/pkg/store"
)

// Common errors.
var (
	ErrInvalidArgument = engine.ErrInvalidArgument
	ErrNotFound        = errors.New("instance not found")
)

// Registry owns every proxy instance in the process, keyed by instance
// id under case-insensitive comparison.
type Registry struct {
	da  store.DataAccess
	log *slog.Logger

	mu        sync.RWMutex
	instances map[string]*engine.Instance
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the operational logger for the registry and the
// instances it creates.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry persisting through the given
// data access. A nil data access falls back to an in-memory store.
func NewRegistry(da store.DataAccess, opts ...Option) *Registry {
	if da == nil {
		da = store.NewMemory()
	}
	r := &Registry{
		da:        da,
		log:       logging.Nop(),
		instances: make(map[string]*engine.Instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new stopped instance for an upstream host, persists
// its descriptor, and returns its configuration. The host name must be
// non-empty and the port a real TCP port.
func (r *Registry) Create(externalHostName string, port int, useSecureTransport, autoStart bool) (engine.Config, error) {
	if strings.TrimSpace(externalHostName) == "" {
		return engine.Config{}, fmt.Errorf("%w: external host name is required", ErrInvalidArgument)
	}
	if port < 1 || port > 65535 {
		return engine.Config{}, fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}

	cfg := engine.Config{
		InstanceID:         id.New(),
		ExternalHostName:   externalHostName,
		UseSecureTransport: useSecureTransport,
		ListeningPort:      port,
		AutoStart:          autoStart,
		StumpsEnabled:      true,
		RecordingBehavior:  engine.RecordingDisablesStumps,
		Fallback:           engine.FallbackServiceUnavailable,
	}

	inst, err := engine.NewInstance(cfg, r.da, engine.WithLogger(r.log))
	if err != nil {
		return engine.Config{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.da.ProxyServerCreate(&store.ProxyServerEntity{
		ID:                 cfg.InstanceID,
		ExternalHostName:   cfg.ExternalHostName,
		UseSecureTransport: cfg.UseSecureTransport,
		Port:               cfg.ListeningPort,
		AutoStart:          cfg.AutoStart,
		FallbackStatusCode: cfg.Fallback.StatusCode(),
	}); err != nil {
		inst.Dispose()
		return engine.Config{}, fmt.Errorf("persist proxy server: %w", err)
	}

	r.instances[registryKey(cfg.InstanceID)] = inst
	r.log.Info("instance created",
		"instance", cfg.InstanceID, "host", externalHostName, "port", port)
	return inst.Config(), nil
}

// Find returns the instance for an id.
func (r *Registry) Find(instanceID string) (*engine.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[registryKey(instanceID)]
	if !ok {
		return nil, fmt.Errorf("instance %q: %w", instanceID, ErrNotFound)
	}
	return inst, nil
}

// FindAll returns a snapshot of every registered instance, ordered by id.
func (r *Registry) FindAll() []*engine.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*engine.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of registered instances.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Delete stops and disposes an instance and removes its persisted
// descriptor.
func (r *Registry) Delete(instanceID string) error {
	r.mu.Lock()
	key := registryKey(instanceID)
	inst, ok := r.instances[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("instance %q: %w", instanceID, ErrNotFound)
	}
	delete(r.instances, key)
	r.mu.Unlock()

	inst.Dispose()

	if err := r.da.ProxyServerDelete(inst.ID()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("unpersist proxy server %q: %w", inst.ID(), err)
	}
	r.log.Info("instance deleted", "instance", inst.ID())
	return nil
}

// Start starts a single instance by id.
func (r *Registry) Start(instanceID string) error {
	inst, err := r.Find(instanceID)
	if err != nil {
		return err
	}
	return inst.Start()
}

// Stop stops a single instance by id.
func (r *Registry) Stop(instanceID string) error {
	inst, err := r.Find(instanceID)
	if err != nil {
		return err
	}
	return inst.Shutdown()
}

// StartAll starts every instance marked for auto-start. Instances that
// fail to bind are logged and skipped; the rest still start.
func (r *Registry) StartAll() {
	for _, inst := range r.FindAll() {
		if !inst.AutoStart() {
			continue
		}
		if err := inst.Start(); err != nil {
			r.log.Error("failed to start instance", "instance", inst.ID(), "error", err)
		}
	}
}

// StopAll stops every running instance.
func (r *Registry) StopAll() {
	for _, inst := range r.FindAll() {
		if err := inst.Shutdown(); err != nil {
			r.log.Error("failed to stop instance", "instance", inst.ID(), "error", err)
		}
	}
}

// Load registers every persisted instance descriptor without starting
// any of them. Already-registered ids are left untouched.
func (r *Registry) Load() error {
	entities, err := r.da.ProxyServerFindAll()
	if err != nil {
		return fmt.Errorf("load proxy servers: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entity := range entities {
		key := registryKey(entity.ID)
		if _, exists := r.instances[key]; exists {
			continue
		}

		fallback := engine.FallbackServiceUnavailable
		if entity.FallbackStatusCode == engine.FallbackNotFound.StatusCode() {
			fallback = engine.FallbackNotFound
		}
		cfg := engine.Config{
			InstanceID:         entity.ID,
			ExternalHostName:   entity.ExternalHostName,
			UseSecureTransport: entity.UseSecureTransport,
			ListeningPort:      entity.Port,
			AutoStart:          entity.AutoStart,
			StumpsEnabled:      true,
			RecordingBehavior:  engine.RecordingDisablesStumps,
			Fallback:           fallback,
		}

		inst, err := engine.NewInstance(cfg, r.da, engine.WithLogger(r.log))
		if err != nil {
			r.log.Error("failed to restore instance", "instance", entity.ID, "error", err)
			continue
		}
		r.instances[key] = inst
	}
	return nil
}

// registryKey normalizes instance ids for case-insensitive lookup.
func registryKey(instanceID string) string {
	return strings.ToLower(instanceID)
}
