package store

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// MemStore is an in-process Store implementation: a sync.RWMutex-guarded
// set of maps providing the full set/list/pub-sub capability the Store
// interface requires. It backs unit tests that don't need a real Redis
// instance and can stand in for small single-process demos.
//
// All data lives in heap memory; nothing survives process restart.
type MemStore struct {
	mu       sync.RWMutex
	kv       map[string][]byte
	sets     map[string]map[string][]byte // key -> member(string form) -> raw bytes
	lists    map[string][][]byte
	subsMu   sync.Mutex
	subs     map[string][]chan string
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// NewMemStore returns an empty, ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		kv:    make(map[string][]byte),
		sets:  make(map[string]map[string][]byte),
		lists: make(map[string][][]byte),
		subs:  make(map[string][]chan string),
		rng:   rand.New(rand.NewSource(1)),
	}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.kv[key] = stored
	return nil
}

func (m *MemStore) MSet(_ context.Context, pairs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range pairs {
		stored := make([]byte, len(v))
		copy(stored, v)
		m.kv[k] = stored
	}
	return nil
}

func (m *MemStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
		delete(m.sets, k)
		delete(m.lists, k)
	}
	return nil
}

func (m *MemStore) SAdd(_ context.Context, key string, members ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string][]byte)
		m.sets[key] = set
	}
	for _, mem := range members {
		set[string(mem)] = mem
	}
	return nil
}

func (m *MemStore) SRem(_ context.Context, key string, members ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(set, string(mem))
	}
	return nil
}

func (m *MemStore) SMembers(_ context.Context, key string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.sets[key]
	out := make([][]byte, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	return out, nil
}

func (m *MemStore) SCard(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.sets[key])), nil
}

func (m *MemStore) SPop(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok || len(set) == 0 {
		return nil, ErrKeyNotFound
	}
	for k, v := range set {
		delete(set, k)
		return v, nil
	}
	return nil, ErrKeyNotFound
}

func (m *MemStore) SRandMember(_ context.Context, key string, count int64) ([][]byte, error) {
	m.mu.RLock()
	set := m.sets[key]
	all := make([][]byte, 0, len(set))
	for _, v := range set {
		all = append(all, v)
	}
	m.mu.RUnlock()

	if count < 0 || int(count) > len(all) {
		count = int64(len(all))
	}
	m.rngMu.Lock()
	m.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	m.rngMu.Unlock()
	return all[:count], nil
}

func (m *MemStore) SUnionStore(_ context.Context, dest string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	union := make(map[string][]byte)
	for _, k := range keys {
		for mem, v := range m.sets[k] {
			union[mem] = v
		}
	}
	m.sets[dest] = union
	return nil
}

func (m *MemStore) LPush(_ context.Context, key string, values ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		stored := make([]byte, len(v))
		copy(stored, v)
		m.lists[key] = append([][]byte{stored}, m.lists[key]...)
	}
	return nil
}

func (m *MemStore) LRange(_ context.Context, key string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.lists[key]
	out := make([][]byte, len(items))
	copy(out, items)
	return out, nil
}

func (m *MemStore) LPop(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.lists[key]
	if len(items) == 0 {
		return nil, ErrKeyNotFound
	}
	v := items[0]
	m.lists[key] = items[1:]
	return v, nil
}

func (m *MemStore) Publish(_ context.Context, channel string, payload string) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs[channel] {
		ch <- payload
	}
	return nil
}

func (m *MemStore) Subscribe(_ context.Context, channel string) Subscription {
	ch := make(chan string, 64)
	m.subsMu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.subsMu.Unlock()
	return &memSubscription{store: m, channel: channel, ch: ch}
}

type memSubscription struct {
	store   *MemStore
	channel string
	ch      chan string
}

func (s *memSubscription) Receive(ctx context.Context) (string, error) {
	select {
	case payload, ok := <-s.ch:
		if !ok {
			return "", fmt.Errorf("store: subscription closed")
		}
		return payload, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *memSubscription) Close() error {
	s.store.subsMu.Lock()
	defer s.store.subsMu.Unlock()
	subs := s.store.subs[s.channel]
	for i, ch := range subs {
		if ch == s.ch {
			s.store.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	return nil
}
