// Package store holds ticket and attendance-record persistence. Each entity
// kind sits behind its own lock so the nullifier guard, the ticket map, and
// the record log never contend with each other.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zkattend/internal/ticket/models"
	"zkattend/pkg/platform/sentinel"
)

// InMemory keeps tickets behind a single RWMutex, keyed by ticket ID with a
// per-event index for stats and pair lookups.
type InMemory struct {
	mu      sync.RWMutex
	tickets map[string]*models.Ticket
	byEvent map[string][]string // event ID -> ticket IDs, mint order
}

func NewInMemory() *InMemory {
	return &InMemory{
		tickets: make(map[string]*models.Ticket),
		byEvent: make(map[string][]string),
	}
}

// Put inserts a freshly minted ticket.
func (s *InMemory) Put(_ context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.TicketID]; exists {
		return fmt.Errorf("ticket %s: %w", ticket.TicketID, sentinel.ErrConflict)
	}
	s.tickets[ticket.TicketID] = ticket.Clone()
	s.byEvent[ticket.EventID] = append(s.byEvent[ticket.EventID], ticket.TicketID)
	return nil
}

// Get returns a clone of the ticket.
func (s *InMemory) Get(_ context.Context, ticketID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, sentinel.ErrNotFound)
	}
	return ticket.Clone(), nil
}

// ActiveForPair returns the first unused ticket the user holds for the
// event, in mint order.
func (s *InMemory) ActiveForPair(_ context.Context, eventID, userID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byEvent[eventID] {
		ticket := s.tickets[id]
		if ticket.OwnerID == userID && !ticket.Used {
			return ticket.Clone(), nil
		}
	}
	return nil, fmt.Errorf("active ticket for event %s: %w", eventID, sentinel.ErrNotFound)
}

// CountByEvent returns total and used ticket counts for the event.
func (s *InMemory) CountByEvent(_ context.Context, eventID string) (total, used int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byEvent[eventID] {
		total++
		if s.tickets[id].Used {
			used++
		}
	}
	return total, used, nil
}

// MarkUsed flips the ticket's used flag. The flip is monotonic: marking an
// already-used ticket is a no-op, since the nullifier set is the canonical
// replay guard and has already decided admission.
func (s *InMemory) MarkUsed(_ context.Context, ticketID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %s: %w", ticketID, sentinel.ErrNotFound)
	}
	if ticket.Used {
		return nil
	}
	ticket.Used = true
	ticket.UsedAt = &at
	return nil
}

// InMemoryRecords is the append-only attendance proof log.
type InMemoryRecords struct {
	mu      sync.RWMutex
	records []models.AttendanceProofRecord
}

func NewInMemoryRecords() *InMemoryRecords {
	return &InMemoryRecords{}
}

// Append stores one accepted verification.
func (s *InMemoryRecords) Append(_ context.Context, record models.AttendanceProofRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// ByEvent returns the records for one event, oldest first.
func (s *InMemoryRecords) ByEvent(_ context.Context, eventID string) ([]models.AttendanceProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AttendanceProofRecord, 0)
	for _, record := range s.records {
		if record.EventID == eventID {
			out = append(out, record)
		}
	}
	return out, nil
}
