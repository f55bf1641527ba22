// Package ports provides port availability checking and selection.
package ports

import (
	"fmt"
	"math/rand"
	"net"
)

// Port selection bounds for automatically assigned listeners.
const (
	MinPort = 7000
	MaxPort = 10000
)

// maxAttempts bounds the random sampling in FindRandomOpen.
const maxAttempts = 100

// IsAvailable checks if a port is available for binding.
// A port that appears as an active listener on the host is not available.
func IsAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// Check checks if a port is available and returns an error if not.
func Check(port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	_ = ln.Close()
	return nil
}

// FindRandomOpen picks a random open TCP port in [MinPort, MaxPort].
// It samples up to 100 candidates, rejecting ports that cannot be bound,
// and returns -1 when every attempt is exhausted. Callers must treat -1
// as "no port available".
func FindRandomOpen() int {
	return findRandomOpen(IsAvailable)
}

// findRandomOpen is the testable core of FindRandomOpen.
func findRandomOpen(available func(int) bool) int {
	for i := 0; i < maxAttempts; i++ {
		port := MinPort + rand.Intn(MaxPort-MinPort+1)
		if available(port) {
			return port
		}
	}
	return -1
}
