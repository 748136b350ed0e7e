// Package selection persists which workspace the client has selected. The value outlives a
// session; the resolver discards it when it no longer matches a membership.
package selection

import (
	"context"
	"sync"
)

// Key is the storage key of the selected workspace id.
const Key = "nova.activeWorkspaceId"

// Store is durable client-local selection storage. Get returns "" when nothing is stored.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, tenantID string) error
	Clear(ctx context.Context) error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	value string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *Memory) Set(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = tenantID
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	return m.Set(ctx, "")
}
