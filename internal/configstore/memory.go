package configstore

import (
	"context"
	"sync"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

// MemoryStore keeps descriptors in memory
type MemoryStore struct {
	mu      sync.RWMutex
	servers []domain.ServerDescriptor
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, servers []domain.ServerDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = cloneServers(servers)
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]domain.ServerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneServers(s.servers), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
