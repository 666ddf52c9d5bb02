package store

import "testing"

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, opts ...Option) Store {
		s := NewMemoryStore(opts...)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
