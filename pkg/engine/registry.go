package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Pankaj-chhatani/stumps/internal/id"
	"github.com/Pankaj-chhatani/stumps/pkg/logging"
	"github.com/Pankaj-chhatani/stumps/pkg/store"
	"github.com/Pankaj-chhatani/stumps/pkg/stump"
)

// StumpRegistry holds the stumps of one instance: an ordered list for
// pipeline iteration plus an id index. Creation and deletion take the
// writer lock; lookups and snapshots take the reader lock. The lock is
// never acquired recursively; persistence calls happen while holding it
// so that the in-memory and persisted views cannot diverge.
type StumpRegistry struct {
	serverID string
	da       store.DataAccess
	log      *slog.Logger

	mu        sync.RWMutex
	ordered   []*stump.Stump
	byID      map[string]*stump.Stump
	contracts map[string]*stump.Contract
}

// NewStumpRegistry creates an empty registry for a server, persisting
// through the given data access.
func NewStumpRegistry(serverID string, da store.DataAccess, log *slog.Logger) *StumpRegistry {
	if log == nil {
		log = logging.Nop()
	}
	return &StumpRegistry{
		serverID:  serverID,
		da:        da,
		log:       log,
		byID:      make(map[string]*stump.Stump),
		contracts: make(map[string]*stump.Contract),
	}
}

// CreateStump validates a contract, assigns an id when absent, enforces
// case-insensitive name uniqueness, persists the stump, and registers
// it at the end of the matching order. A copy of the stored contract is
// returned.
func (reg *StumpRegistry) CreateStump(c *stump.Contract) (*stump.Contract, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: contract is required", ErrInvalidArgument)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.nameExistsLocked(c.Name) {
		return nil, fmt.Errorf("%w: %q", ErrNameExists, c.Name)
	}

	c = c.Clone()
	if c.ID == "" {
		c.ID = id.New()
	}
	if _, exists := reg.byID[c.ID]; exists {
		return nil, fmt.Errorf("%w: stump id %q", store.ErrAlreadyExists, c.ID)
	}

	s, err := c.Materialize()
	if err != nil {
		return nil, err
	}

	if err := reg.da.StumpCreate(reg.serverID, contractToEntity(c), c.MatchBody, c.Response.Body); err != nil {
		return nil, fmt.Errorf("persist stump %q: %w", c.ID, err)
	}

	reg.ordered = append(reg.ordered, s)
	reg.byID[c.ID] = s
	reg.contracts[c.ID] = c
	reg.log.Debug("stump created", "server", reg.serverID, "stump", c.ID, "name", c.Name)
	return c.Clone(), nil
}

// DeleteStump removes a stump from the matching order and from
// persistence. An unknown id yields ErrNotFound.
func (reg *StumpRegistry) DeleteStump(stumpID string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.byID[stumpID]; !exists {
		return fmt.Errorf("stump %q: %w", stumpID, ErrNotFound)
	}

	if err := reg.da.StumpDelete(reg.serverID, stumpID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("unpersist stump %q: %w", stumpID, err)
	}

	for i, s := range reg.ordered {
		if s.ID() == stumpID {
			reg.ordered = append(reg.ordered[:i], reg.ordered[i+1:]...)
			break
		}
	}
	delete(reg.byID, stumpID)
	delete(reg.contracts, stumpID)
	reg.log.Debug("stump deleted", "server", reg.serverID, "stump", stumpID)
	return nil
}

// FindStump returns the live stump for an id, or ErrNotFound.
func (reg *StumpRegistry) FindStump(stumpID string) (*stump.Stump, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	s, ok := reg.byID[stumpID]
	if !ok {
		return nil, fmt.Errorf("stump %q: %w", stumpID, ErrNotFound)
	}
	return s, nil
}

// FindAllContracts returns a stable snapshot of the registered
// contracts in matching order. The snapshot is unaffected by later
// creates and deletes.
func (reg *StumpRegistry) FindAllContracts() []*stump.Contract {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*stump.Contract, 0, len(reg.ordered))
	for _, s := range reg.ordered {
		if c, ok := reg.contracts[s.ID()]; ok {
			out = append(out, c.Clone())
		}
	}
	return out
}

// StumpNameExists reports whether a stump with the given name is
// registered, comparing case-insensitively.
func (reg *StumpRegistry) StumpNameExists(name string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.nameExistsLocked(name)
}

// Count returns the number of registered stumps.
func (reg *StumpRegistry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.ordered)
}

// Snapshot returns the live stumps in matching order as of now. The
// pipeline takes one snapshot per request; stumps added afterwards are
// not visible to that request.
func (reg *StumpRegistry) Snapshot() []*stump.Stump {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*stump.Stump, len(reg.ordered))
	copy(out, reg.ordered)
	return out
}

// load restores previously persisted stumps in stored order without
// re-persisting them.
func (reg *StumpRegistry) load() error {
	records, err := reg.da.StumpFindAll(reg.serverID)
	if err != nil {
		return fmt.Errorf("load stumps for %q: %w", reg.serverID, err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, rec := range records {
		c := recordToContract(rec)
		s, err := c.Materialize()
		if err != nil {
			reg.log.Warn("skipping unreadable stump", "server", reg.serverID, "stump", c.ID, "error", err)
			continue
		}
		reg.ordered = append(reg.ordered, s)
		reg.byID[c.ID] = s
		reg.contracts[c.ID] = c
	}
	return nil
}

func (reg *StumpRegistry) nameExistsLocked(name string) bool {
	for _, c := range reg.contracts {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// contractToEntity converts a contract to its persisted record form.
// Body blobs travel separately.
func contractToEntity(c *stump.Contract) *store.StumpEntity {
	entity := &store.StumpEntity{
		ID:                        c.ID,
		Name:                      c.Name,
		ResponseStatusCode:        c.Response.StatusCode,
		ResponseStatusDescription: c.Response.StatusDescription,
		ResponseContentType:       c.Response.BodyContentType,
		ResponseIsImage:           c.Response.BodyIsImage,
		ResponseIsText:            c.Response.BodyIsText,
	}
	for _, def := range c.Rules {
		entity.Rules = append(entity.Rules, store.RuleEntity{Type: def.Type, Name: def.Name, Value: def.Value})
	}
	for _, h := range c.Response.Headers {
		entity.ResponseHeaders = append(entity.ResponseHeaders, store.HeaderEntity{Name: h.Name, Value: h.Value})
	}
	return entity
}

// recordToContract converts a persisted record back into a contract.
func recordToContract(rec *store.StumpRecord) *stump.Contract {
	c := &stump.Contract{
		ID:        rec.Entity.ID,
		Name:      rec.Entity.Name,
		MatchBody: append([]byte(nil), rec.RequestBody...),
		Response: stump.Response{
			StatusCode:        rec.Entity.ResponseStatusCode,
			StatusDescription: rec.Entity.ResponseStatusDescription,
			Body:              append([]byte(nil), rec.ResponseBody...),
			BodyContentType:   rec.Entity.ResponseContentType,
			BodyIsImage:       rec.Entity.ResponseIsImage,
			BodyIsText:        rec.Entity.ResponseIsText,
		},
	}
	for _, r := range rec.Entity.Rules {
		c.Rules = append(c.Rules, stump.RuleDef{Type: r.Type, Name: r.Name, Value: r.Value})
	}
	for _, h := range rec.Entity.ResponseHeaders {
		c.Response.Headers = append(c.Response.Headers, stump.Header{Name: h.Name, Value: h.Value})
	}
	return c
}
