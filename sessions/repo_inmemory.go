package sessions

import (
	"context"
	"sync"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo keeps the record in process memory only
type InMemoryRepo struct {
	mu     sync.RWMutex
	fields Fields
}

// NewInMemoryRepo creates an empty in-memory repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{}
}

// Load returns a copy of the stored fields
func (r *InMemoryRepo) Load(_ context.Context) (Fields, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.fields == nil {
		return Fields{}, nil
	}
	return cloneFields(r.fields), nil
}

// Replace swaps the stored map
func (r *InMemoryRepo) Replace(_ context.Context, fields Fields) error {
	c := cloneFields(fields)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = c
	return nil
}

// Remove drops the stored map
func (r *InMemoryRepo) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = nil
	return nil
}
