package locksvc

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process keyed lock. Suitable for single-instance deployments & tests.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{} // holds one token while the key is locked
	refs int
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]*slot)}
}

// Lock acquires every key in sorted order, so that concurrent callers sharing keys cannot deadlock.
func (m *Memory) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.release(held[i])
		}
	}

	for _, key := range keys {
		s := m.acquire(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			m.unref(key)
			release()
			return nil, lockTimeout(ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (m *Memory) acquire(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Memory) release(key string) {
	m.mu.Lock()
	s := m.slots[key]
	m.mu.Unlock()
	<-s.ch
	m.unref(key)
}

func (m *Memory) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[key]; ok {
		if s.refs--; s.refs == 0 {
			delete(m.slots, key)
		}
	}
}

// normalizeKeys sorts & dedupes keys.
func normalizeKeys(keys []string) []string {
	set := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := set[k]; ok || k == "" {
			continue
		}
		set[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
