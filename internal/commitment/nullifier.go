package commitment

import (
	"context"
	"sync"
	"time"
)

// Nullifier domains. Reputation and ticket proofs hash their nullifiers
// under different tags so the two namespaces can never collide in the
// shared set.
const (
	DomainReputation = "reputation"
	DomainTicket     = "ticket"
	DomainAge        = "age_proof"
	DomainOwnership  = "ownership_proof"
	DomainMembership = "membership_proof"
	DomainBalance    = "balance_proof"
	DomainRange      = "range_proof"
)

// NullifierHash derives a domain-tagged nullifier from its parts.
func NullifierHash(domain string, parts ...string) string {
	all := append([]string{domain}, parts...)
	return HashStrings(all...)
}

// NullifierStore is the single replay-prevention primitive. Register is an
// atomic check-and-insert: under concurrent registration of the same hash,
// exactly one caller observes accepted=true. Entries are permanent.
type NullifierStore interface {
	// Register inserts the hash if absent. Returns true when this caller
	// won the insert, false when the nullifier was already present.
	Register(ctx context.Context, nullifierHash string) (bool, error)
	// Seen reports whether the hash has ever been registered.
	Seen(ctx context.Context, nullifierHash string) (bool, error)
	// Count returns the number of registered nullifiers.
	Count(ctx context.Context) (int, error)
}

// InMemoryNullifierStore keeps the set behind one mutex. The map value is
// the registration time, retained for audit queries.
type InMemoryNullifierStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

// NewInMemoryNullifierStore creates an empty nullifier set.
func NewInMemoryNullifierStore() *InMemoryNullifierStore {
	return &InMemoryNullifierStore{
		used: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (s *InMemoryNullifierStore) Register(_ context.Context, nullifierHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.used[nullifierHash]; exists {
		return false, nil
	}
	s.used[nullifierHash] = s.now().UTC()
	return true, nil
}

func (s *InMemoryNullifierStore) Seen(_ context.Context, nullifierHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.used[nullifierHash]
	return exists, nil
}

func (s *InMemoryNullifierStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used), nil
}

// UsedAt returns when a nullifier was registered, if it was.
func (s *InMemoryNullifierStore) UsedAt(nullifierHash string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.used[nullifierHash]
	return at, ok
}
