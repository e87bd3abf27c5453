package dedupe

import (
	"context"
	"fmt"
	"strings"
)

// Store persists the last fingerprint seen for each remote file name
type Store interface {
	// Get returns the recorded fingerprint for name
	Get(ctx context.Context, name string) (fingerprint string, found bool, err error)

	// Put records fingerprint for name, overwriting any previous value
	Put(ctx context.Context, name string, fingerprint string) error
}

// Policy decides when a file is recorded as seen
type Policy string

const (
	// RecordOnSubmit records a file before it is dispatched; failed files are
	// not retried until their content changes
	RecordOnSubmit Policy = "submit"

	// RecordOnSuccess records a file only after it was archived; failed files
	// are retried on the next cycle
	RecordOnSuccess Policy = "success"
)

// ParsePolicy parses a policy name; empty selects RecordOnSubmit
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RecordOnSubmit:
		return RecordOnSubmit, nil
	case RecordOnSuccess:
		return RecordOnSuccess, nil
	default:
		return "", fmt.Errorf("unknown dedupe policy %q", s)
	}
}

// Tracker decides whether a remote file needs processing
type Tracker struct {
	store  Store
	policy Policy
}

// NewTracker creates a tracker over store
func NewTracker(store Store, policy Policy) *Tracker {
	if policy == "" {
		policy = RecordOnSubmit
	}
	return &Tracker{store: store, policy: policy}
}

// Policy returns the recording policy
func (t *Tracker) Policy() Policy {
	return t.policy
}

// ShouldProcess returns true if name is unseen or was seen with a different fingerprint
func (t *Tracker) ShouldProcess(ctx context.Context, name string, fingerprint string) (bool, error) {
	recorded, found, err := t.store.Get(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to read dedupe record: %w", err)
	}
	return !found || recorded != fingerprint, nil
}

// Record stores fingerprint as the latest seen content for name
func (t *Tracker) Record(ctx context.Context, name string, fingerprint string) error {
	if err := t.store.Put(ctx, name, fingerprint); err != nil {
		return fmt.Errorf("failed to record dedupe: %w", err)
	}
	return nil
}
