// Package kvstore provides per-actor scalar property stores: an in-memory one for sandboxes and
// tests, and a SQLite-backed one that survives restarts.
package kvstore

import (
	"fmt"
	"sort"
	"sync"

	"voxelhud.ai/internal/sim/host"
)

// DefaultEntryLimit matches the engine's per-property ceiling.
const DefaultEntryLimit = 32767

type Memory struct {
	mu    sync.Mutex
	limit int
	m     map[string]host.Value

	// FailSet, when non-nil, is consulted before every Set.
	FailSet func(key string) error
	Sets    int
}

var _ host.Store = (*Memory)(nil)

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultEntryLimit
	}
	return &Memory{limit: limit, m: map[string]host.Value{}}
}

func (s *Memory) Get(key string) (host.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *Memory) Set(key string, v host.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSet != nil {
		if err := s.FailSet(key); err != nil {
			return err
		}
	}
	if v.Size() > s.limit {
		return fmt.Errorf("%w: %s is %d bytes", host.ErrValueTooLarge, key, v.Size())
	}
	s.m[key] = v
	s.Sets++
	return nil
}

func (s *Memory) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Memory) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
