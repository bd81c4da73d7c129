package system

import (
	"errors"
	"fmt"
	"sync"
)

// cleanupEntry pairs a release function with a label for the audit trail.
type cleanupEntry struct {
	label string
	fn    func() error
}

// CleanupStack tracks acquired resources (loop device, pool import, mount
// set) and releases them in reverse acquisition order, mimicking bash trap
// cleanup. Push a release immediately after acquiring its resource so any
// mid-pipeline failure still unwinds everything acquired so far.
type CleanupStack struct {
	entries []cleanupEntry
	mu      sync.Mutex
}

// NewCleanupStack creates an empty cleanup stack
func NewCleanupStack() *CleanupStack {
	return &CleanupStack{}
}

// Push registers a release function with a human-readable label.
func (s *CleanupStack) Push(label string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cleanupEntry{label: label, fn: fn})
}

// Unwind runs all registered releases in reverse order. Every release is
// attempted even if an earlier one fails; failures are joined into the
// returned error.
func (s *CleanupStack) Unwind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if err := e.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.label, err))
		}
	}
	s.entries = nil

	return errors.Join(errs...)
}

// Clear drops all registered releases without running them. Call on success
// after the explicit teardown tail has run.
func (s *CleanupStack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len reports the number of pending releases.
func (s *CleanupStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
