package store

import "sync"

// Memory is an in-process Store used by tests across every package in this
// module, and suitable as a scratch implementation before a device-backed
// store is wired in.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) GetBytes(namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) PutBytes(namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	ns[key] = stored
	return nil
}

func (m *Memory) Remove(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (m *Memory) GetUint64(namespace, key string) (uint64, bool, error) {
	b, ok, err := m.GetBytes(namespace, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, ok := decodeUint64(b)
	return v, ok, nil
}

func (m *Memory) PutUint64(namespace, key string, value uint64) error {
	return m.PutBytes(namespace, key, encodeUint64(value))
}

func (m *Memory) GetUint32(namespace, key string) (uint32, bool, error) {
	b, ok, err := m.GetBytes(namespace, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, ok := decodeUint32(b)
	return v, ok, nil
}

func (m *Memory) PutUint32(namespace, key string, value uint32) error {
	return m.PutBytes(namespace, key, encodeUint32(value))
}

var _ Store = (*Memory)(nil)
