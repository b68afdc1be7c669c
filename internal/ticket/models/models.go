// Package models defines the soulbound ticket record, its disclosure modes,
// and the proof bundle shapes.
package models

import (
	"time"

	"zkattend/internal/commitment"
	dErrors "zkattend/pkg/domain-errors"
)

// Type classifies a ticket tier.
type Type string

const (
	TypeFree    Type = "free"
	TypePaid    Type = "paid"
	TypeVIP     Type = "vip"
	TypeSpeaker Type = "speaker"
)

// Valid reports whether the tier is one of the known tiers.
func (t Type) Valid() bool {
	switch t {
	case TypeFree, TypePaid, TypeVIP, TypeSpeaker:
		return true
	}
	return false
}

// ParseType validates a tier received from outside the package.
func ParseType(raw string) (Type, error) {
	t := Type(raw)
	if !t.Valid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown ticket type %q", raw)
	}
	return t, nil
}

// Ticket is a non-transferable entitlement bound to its owner at mint time.
// Used flips exactly once, false to true, and never back.
type Ticket struct {
	TicketID string     `json:"ticket_id"`
	EventID  string     `json:"event_id"`
	OwnerID  string     `json:"owner_id"`
	Type     Type       `json:"type"`
	Price    float64    `json:"price"`
	MintedAt time.Time  `json:"minted_at"`
	Used     bool       `json:"used"`
	UsedAt   *time.Time `json:"used_at,omitempty"`
}

// Clone deep-copies the ticket so no caller holds a pointer into a store.
func (t *Ticket) Clone() *Ticket {
	out := *t
	if t.UsedAt != nil {
		at := *t.UsedAt
		out.UsedAt = &at
	}
	return &out
}

// DisclosureMode selects how much a ticket proof reveals.
type DisclosureMode string

const (
	// ModeAnonymous reveals only that some valid ticket exists.
	ModeAnonymous DisclosureMode = "anonymous"
	// ModePartial adds an age-range attestation to the anonymous proof.
	ModePartial DisclosureMode = "partial"
	// ModeFull discloses the owner, ticket, and tier.
	ModeFull DisclosureMode = "full"
)

// Valid reports whether the mode is one of the three tiers.
func (m DisclosureMode) Valid() bool {
	switch m {
	case ModeAnonymous, ModePartial, ModeFull:
		return true
	}
	return false
}

// ParseMode validates a mode received from outside the package.
func ParseMode(raw string) (DisclosureMode, error) {
	m := DisclosureMode(raw)
	if !m.Valid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown disclosure mode %q", raw)
	}
	return m, nil
}

// Disclosure is the full-mode payload: the fields the holder chose to
// reveal, plus a commitment binding them to the owner.
type Disclosure struct {
	OwnerID             string `json:"owner_id"`
	TicketID            string `json:"ticket_id"`
	TicketType          Type   `json:"ticket_type"`
	OwnershipCommitment string `json:"ownership_commitment"`
}

// Proof is the ticket proof bundle. The nullifier makes it single-use at
// verification time; partial mode embeds an age attestation that shares the
// bundle's nullifier rather than spending its own replay slot.
type Proof struct {
	ProofID    string         `json:"proof_id"`
	Mode       DisclosureMode `json:"mode"`
	EventID    string         `json:"event_id"`
	Commitment string         `json:"commitment"`
	Nullifier  string         `json:"nullifier"`
	CreatedAt  time.Time      `json:"created_at"`

	AgeProof  *commitment.StatementProof `json:"age_proof,omitempty"` // partial mode
	Disclosed *Disclosure                `json:"disclosed,omitempty"` // full mode
}

// Rejection reasons returned to verifiers. These are part of the wire
// contract; callers branch on them.
const (
	ReasonMalformedProof     = "MalformedProof"
	ReasonModeMismatch       = "ModeMismatch"
	ReasonNullifierReused    = "NullifierReused"
	ReasonVerificationFailed = "VerificationFailed"
)

// VerifyResult is returned for every verification attempt, valid or not.
type VerifyResult struct {
	Verified   bool      `json:"verified"`
	Admitted   bool      `json:"admitted"`
	Reason     string    `json:"reason,omitempty"`
	ProofID    string    `json:"proof_id,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitzero"`
}

// AttendanceProofRecord is the audit-side trace of one accepted
// verification. It never stores the holder's identity.
type AttendanceProofRecord struct {
	ProofID    string         `json:"proof_id"`
	EventID    string         `json:"event_id"`
	Mode       DisclosureMode `json:"mode"`
	Nullifier  string         `json:"nullifier"`
	VerifiedAt time.Time      `json:"verified_at"`
}

// EventStats is the noised per-event attendance release.
type EventStats struct {
	EventID         string  `json:"event_id"`
	TotalTicketsDP  float64 `json:"total_tickets"`
	UsedTicketsDP   float64 `json:"used_tickets"`
	AttendanceRate  float64 `json:"attendance_rate"`
	EpsilonPerQuery float64 `json:"epsilon_per_query"`
}

// Info is the privacy-preserving public view of a ticket: no owner.
type Info struct {
	TicketID string    `json:"ticket_id"`
	EventID  string    `json:"event_id"`
	Type     Type      `json:"ticket_type"`
	Used     bool      `json:"used"`
	MintedAt time.Time `json:"minted_at"`
}
