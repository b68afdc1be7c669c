// Package store holds credential persistence. The in-memory implementation
// is the production store for this core; durability is delegated to the
// external anchoring layer via credential exports.
package store

import (
	"context"
	"fmt"
	"sync"

	"zkattend/internal/reputation/models"
	"zkattend/pkg/platform/sentinel"
)

// InMemory keeps credentials behind a single RWMutex. Writers swap whole
// credential values; readers get clones, so no caller ever holds a pointer
// into the guarded map.
type InMemory struct {
	mu          sync.RWMutex
	credentials map[string]*models.Credential
}

func NewInMemory() *InMemory {
	return &InMemory{credentials: make(map[string]*models.Credential)}
}

// Get returns a clone of the user's credential.
func (s *InMemory) Get(_ context.Context, userID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[userID]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", userID, sentinel.ErrNotFound)
	}
	return cred.Clone(), nil
}

// Put swaps in a fully built credential value. This is the commit point of
// every update; partial updates never reach the map.
func (s *InMemory) Put(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.UserID] = cred.Clone()
	return nil
}

// All returns a point-in-time snapshot of every credential. Used by noised
// aggregate reads, which tolerate slight staleness.
func (s *InMemory) All(_ context.Context) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Credential, 0, len(s.credentials))
	for _, cred := range s.credentials {
		out = append(out, cred.Clone())
	}
	return out, nil
}

// Delete removes a credential; only the external forget flow calls this.
func (s *InMemory) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[userID]; !ok {
		return fmt.Errorf("credential %s: %w", userID, sentinel.ErrNotFound)
	}
	delete(s.credentials, userID)
	return nil
}
