package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// shutdownGrace bounds how long in-flight handlers get to finish when a
// listener shuts down.
const shutdownGrace = 5 * time.Second

// ListenerState is the lifecycle state of a Listener.
type ListenerState int32

const (
	ListenerCreated ListenerState = iota
	ListenerRunning
	ListenerStopped
	ListenerDisposed
)

// String returns the state name.
func (s ListenerState) String() string {
	switch s {
	case ListenerCreated:
		return "created"
	case ListenerRunning:
		return "running"
	case ListenerStopped:
		return "stopped"
	case ListenerDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Listener binds a local TCP port, serves requests through the pipeline
// handler, and owns the start/stop/dispose state machine. A stopped
// listener can be restarted; a disposed one is terminal.
type Listener struct {
	port    int
	handler http.Handler
	log     *slog.Logger

	mu    sync.Mutex
	state ListenerState
	srv   *http.Server
	ln    net.Listener
}

// NewListener creates a listener in the created state. Nothing is bound
// until Start.
func NewListener(port int, handler http.Handler, log *slog.Logger) *Listener {
	return &Listener{
		port:    port,
		handler: handler,
		log:     log,
	}
}

// Port returns the configured listening port.
func (l *Listener) Port() int { return l.port }

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start binds the port on all interfaces and begins serving. Starting a
// running listener is a no-op; starting a disposed one fails.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case ListenerDisposed:
		return fmt.Errorf("start listener: %w", ErrDisposed)
	case ListenerRunning:
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("bind port %d: %w", l.port, err)
	}

	// A fresh http.Server per start: a shut-down server cannot serve again.
	srv := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.srv = srv
	l.ln = ln
	l.state = ListenerRunning
	l.log.Info("listener started", "port", l.port)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error("listener serve error", "port", l.port, "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting connections and lets in-flight handlers
// finish within the grace period. Stopping a non-running listener is a
// no-op; stopping a disposed one fails.
func (l *Listener) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdownLocked()
}

func (l *Listener) shutdownLocked() error {
	switch l.state {
	case ListenerDisposed:
		return fmt.Errorf("shutdown listener: %w", ErrDisposed)
	case ListenerCreated, ListenerStopped:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := l.srv.Shutdown(ctx)
	// Shutdown only closes listeners that Serve has already registered;
	// close the socket here too so the port is free once Shutdown returns.
	_ = l.ln.Close()
	l.ln = nil
	l.srv = nil
	l.state = ListenerStopped
	l.log.Info("listener stopped", "port", l.port)
	if err != nil {
		return fmt.Errorf("shutdown listener on port %d: %w", l.port, err)
	}
	return nil
}

// Dispose shuts the listener down if needed and moves it to the
// terminal disposed state. Dispose is idempotent.
func (l *Listener) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == ListenerDisposed {
		return
	}
	if l.state == ListenerRunning {
		_ = l.shutdownLocked()
	}
	l.state = ListenerDisposed
}
