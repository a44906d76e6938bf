// Package dedup suppresses re-issuing a fetch whose parameters are identical
// to the one issued immediately before it.
//
// The boundary is issuance, not completion: a signature becomes "last issued"
// as soon as Admit returns true, before the network call resolves. A request
// identical to an earlier one is allowed again once a different request has
// been issued in between.
package dedup

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/JonMunkholm/tablekit/internal/filter"
)

// Signature identifies a fetch by its defining parameters.
type Signature struct {
	URL     string         `json:"url"`
	Filters filter.Filters `json:"filters"`
	Page    int            `json:"page"`
	Cursor  string         `json:"cursor"`
}

// Serialize returns the deterministic encoding of s. Map keys are sorted by
// encoding/json, and nil filters encode the same as empty filters.
func (s Signature) Serialize() ([]byte, error) {
	if s.Filters == nil {
		s.Filters = filter.Filters{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serialize signature: %w", err)
	}
	return b, nil
}

// Fingerprint hashes the serialized signature.
func (s Signature) Fingerprint() (xxh3.Uint128, error) {
	b, err := s.Serialize()
	if err != nil {
		return xxh3.Uint128{}, err
	}
	return xxh3.Hash128(b), nil
}

// Deduplicator remembers the last issued signature. Safe for concurrent use.
type Deduplicator struct {
	mu   sync.Mutex
	last xxh3.Uint128
	has  bool
}

// Admit reports whether a fetch with signature s should be issued. When it
// returns true, s is recorded as the last issued signature.
func (d *Deduplicator) Admit(s Signature) (bool, error) {
	fp, err := s.Fingerprint()
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.has && d.last == fp {
		return false, nil
	}
	d.last = fp
	d.has = true
	return true, nil
}

// Reset forgets the last issued signature so the next Admit always passes.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.has = false
	d.last = xxh3.Uint128{}
	d.mu.Unlock()
}
