package hostfuncs

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// KVStore is an in-memory string store shared by every plugin bound to the
// same KVBundle. Keys are scoped by the caller's plugin ID unless the store
// is created shared.
type KVStore struct {
	data   map[string]string
	mu     sync.RWMutex
	shared bool
}

// NewKVStore creates a store whose keys are private to each plugin.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]string)}
}

// NewSharedKVStore creates a store every plugin reads and writes in common.
func NewSharedKVStore() *KVStore {
	return &KVStore{data: make(map[string]string), shared: true}
}

func (s *KVStore) key(pluginID, key string) string {
	if s.shared {
		return key
	}
	return pluginID + "\x00" + key
}

// Get returns the value stored under key for pluginID.
func (s *KVStore) Get(pluginID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[s.key(pluginID, key)]
	return v, ok
}

// Put stores value under key for pluginID.
func (s *KVStore) Put(pluginID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.key(pluginID, key)] = value
}

// Delete removes key for pluginID and reports whether it existed.
func (s *KVStore) Delete(pluginID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(pluginID, key)
	_, ok := s.data[k]
	delete(s.data, k)
	return ok
}

// Keys lists the keys visible to pluginID, sorted.
func (s *KVStore) Keys(pluginID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shared {
		return slices.Sorted(maps.Keys(s.data))
	}
	prefix := pluginID + "\x00"
	var keys []string
	for k := range s.data {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			keys = append(keys, rest)
		}
	}
	slices.Sort(keys)
	return keys
}
