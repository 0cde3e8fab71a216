// Package ports allocates dev-server TCP ports from a reserved range.
// Candidate ports come from the store (ports held by live sessions and
// running dev servers are skipped) and each candidate is probed with a
// throwaway listener before being handed out.
package ports

import (
	"fmt"
	"net"
	"sync"

	"github.com/saadnvd1/agentos/internal/apperr"
)

// UsedPorts reports the ports currently held by durable entities.
type UsedPorts interface {
	PortsInUse() (map[int]bool, error)
}

// Allocator scans a reserved range for free ports.
type Allocator struct {
	min, max int
	store    UsedPorts
	// mu serializes concurrent allocations so two creates cannot probe
	// and claim the same port between store reads.
	mu sync.Mutex
}

// NewAllocator creates an Allocator for [min, max].
func NewAllocator(store UsedPorts, min, max int) *Allocator {
	return &Allocator{min: min, max: max, store: store}
}

// Allocate returns the lowest port in range that no live session or running
// dev server holds and that binds on 127.0.0.1. Release is implicit: the
// port is free again once the owning row is deleted or stopped.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	used, err := a.store.PortsInUse()
	if err != nil {
		return 0, fmt.Errorf("reading ports in use: %w", err)
	}

	for port := a.min; port <= a.max; port++ {
		if used[port] {
			continue
		}
		if !bindable(port) {
			continue
		}
		return port, nil
	}
	return 0, apperr.New(apperr.Conflict,
		"no free ports in range %d-%d", a.min, a.max)
}

// bindable probes the port with a throwaway listener.
func bindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
