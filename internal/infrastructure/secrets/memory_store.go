package secrets

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/compliance-advisor/pkg/errors"
)

type memorySecret struct {
	value     string
	enabled   bool
	updatedAt time.Time
}

// MemoryStore keeps secrets in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]*memorySecret
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]*memorySecret)}
}

func (s *MemoryStore) Put(_ context.Context, name, value string) error {
	if name == "" {
		return errors.Validation("secret name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = &memorySecret{value: value, enabled: true, updatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.secrets[name]
	if !ok {
		return "", errors.NotFound("secret %s not found", name)
	}
	if !sec.enabled {
		return "", errors.Referential("secret %s is disabled", name)
	}
	return sec.value, nil
}

func (s *MemoryStore) Disable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[name]
	if !ok {
		return errors.NotFound("secret %s not found", name)
	}
	if sec.enabled {
		sec.enabled = false
		sec.updatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]SecretInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SecretInfo, 0, len(s.secrets))
	for name, sec := range s.secrets {
		out = append(out, SecretInfo{Name: name, Enabled: sec.enabled, UpdatedAt: sec.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
