// Package audit captures key actions from domain logic as structured events.
// Events are transport-agnostic so stores and sinks can fan out: memory for
// tests, postgres for the durable archive, Kafka for the anchoring pipeline.
package audit

import (
	"context"
	"time"
)

// Action identifies what happened.
type Action string

const (
	ActionAttendanceRecorded   Action = "attendance_recorded"
	ActionTicketMinted         Action = "ticket_minted"
	ActionProofGenerated       Action = "proof_generated"
	ActionAttendanceVerified   Action = "attendance_verified"
	ActionVerificationRejected Action = "verification_rejected"
	ActionCredentialExported   Action = "credential_exported"
)

// Event is emitted from domain logic to capture key actions. Subject holds a
// hashed owner reference where the raw identity is private.
type Event struct {
	Timestamp time.Time
	Action    Action
	Subject   string
	EventID   string
	Decision  string
	Reason    string
	RequestID string
}

// Store persists audit events. Append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps and fans events out to every configured sink. A sink
// failure is reported but never blocks the domain operation that emitted
// the event.
type Publisher struct {
	sinks []Store
	now   func() time.Time
}

func NewPublisher(sinks ...Store) *Publisher {
	return &Publisher{sinks: sinks, now: time.Now}
}

// Emit timestamps the event if needed and appends it to all sinks, returning
// the first sink error after trying every sink.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	var firstErr error
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
