// Package service implements the soulbound ticket lifecycle: mint,
// three-tier disclosure proofs, replay-guarded verification, and noised
// per-event attendance stats.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"zkattend/internal/audit"
	"zkattend/internal/commitment"
	"zkattend/internal/platform/metrics"
	"zkattend/internal/platform/middleware"
	"zkattend/internal/ticket/models"
	dErrors "zkattend/pkg/domain-errors"
	"zkattend/pkg/platform/sentinel"
)

// DefaultMinAge is the age bound a partial-disclosure proof attests to.
const DefaultMinAge = 18

// statsEpsilon is the unit budget each per-event stats query spends.
const statsEpsilon = 1.0

// TicketStore is the ticket arena, one lock per map.
type TicketStore interface {
	Put(ctx context.Context, ticket *models.Ticket) error
	Get(ctx context.Context, ticketID string) (*models.Ticket, error)
	ActiveForPair(ctx context.Context, eventID, userID string) (*models.Ticket, error)
	CountByEvent(ctx context.Context, eventID string) (total, used int, err error)
	MarkUsed(ctx context.Context, ticketID string, at time.Time) error
}

// RecordStore is the append-only attendance proof log.
type RecordStore interface {
	Append(ctx context.Context, record models.AttendanceProofRecord) error
	ByEvent(ctx context.Context, eventID string) ([]models.AttendanceProofRecord, error)
}

// EventDirectory answers the delegated event-level capacity question. The
// external event record owns the cap; this core only asks.
type EventDirectory interface {
	HasCapacity(ctx context.Context, eventID string) (bool, error)
}

// AllowAllEvents is the directory used when no external event record is
// wired: every event has room.
type AllowAllEvents struct{}

func (AllowAllEvents) HasCapacity(context.Context, string) (bool, error) { return true, nil }

// NoiseMechanism is the slice of the Laplace mechanism stats queries use.
type NoiseMechanism interface {
	AddNoise(value, sensitivity float64) (float64, error)
}

// AuditPublisher fans out audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the ticket engine.
type Service struct {
	tickets    TicketStore
	records    RecordStore
	events     EventDirectory
	ledger     *commitment.Ledger
	nullifiers commitment.NullifierStore
	prover     *commitment.Prover
	noise      NoiseMechanism
	metrics    *metrics.Metrics
	publisher  AuditPublisher
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// New wires the ticket engine. A nil events directory defaults to
// AllowAllEvents.
func New(
	tickets TicketStore,
	records RecordStore,
	events EventDirectory,
	ledger *commitment.Ledger,
	nullifiers commitment.NullifierStore,
	prover *commitment.Prover,
	noise NoiseMechanism,
	m *metrics.Metrics,
	publisher AuditPublisher,
	logger *slog.Logger,
) (*Service, error) {
	if tickets == nil || records == nil {
		return nil, errors.New("ticket and record stores are required")
	}
	if ledger == nil || nullifiers == nil || prover == nil {
		return nil, errors.New("commitment layer is required")
	}
	if noise == nil {
		return nil, errors.New("noise mechanism is required")
	}
	if events == nil {
		events = AllowAllEvents{}
	}
	return &Service{
		tickets:    tickets,
		records:    records,
		events:     events,
		ledger:     ledger,
		nullifiers: nullifiers,
		prover:     prover,
		noise:      noise,
		metrics:    m,
		publisher:  publisher,
		logger:     logger,
		tracer:     otel.Tracer("zkattend/ticket"),
		now:        time.Now,
	}, nil
}

// Mint issues a soulbound ticket for the user at the event.
func (s *Service) Mint(ctx context.Context, eventID, userID string, typ models.Type, price float64) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "ticket.Mint")
	defer span.End()

	if eventID == "" || userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event and user are required")
	}
	if !typ.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown ticket type %q", typ)
	}
	if price < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "price must be non-negative")
	}

	hasRoom, err := s.events.HasCapacity(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !hasRoom {
		return nil, dErrors.Newf(dErrors.CodeCapacityExceeded, "event %s is at capacity", eventID)
	}

	ticket := &models.Ticket{
		TicketID: "ticket_" + uuid.NewString(),
		EventID:  eventID,
		OwnerID:  userID,
		Type:     typ,
		Price:    price,
		MintedAt: s.now().UTC(),
	}
	if err := s.tickets.Put(ctx, ticket); err != nil {
		return nil, err
	}

	s.metrics.IncTicketsMinted()
	s.emit(ctx, audit.Event{
		Action:  audit.ActionTicketMinted,
		Subject: commitment.HashOwner(userID),
		EventID: eventID,
	})
	s.logger.InfoContext(ctx, "ticket minted", "event_id", eventID, "type", typ)

	return ticket, nil
}

// HasTicket reports whether an unused ticket exists for the pair.
func (s *Service) HasTicket(ctx context.Context, eventID, userID string) (bool, error) {
	_, err := s.tickets.ActiveForPair(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GenerateProof builds a disclosure proof over the user's active ticket.
// The nullifier is derived here but registered only at verification, so an
// unredeemed proof never occupies a replay slot. Partial mode attests
// age >= minAge (DefaultMinAge when zero) and rejects short attributes
// before touching the ledger.
func (s *Service) GenerateProof(ctx context.Context, eventID, userID string, mode models.DisclosureMode, age, minAge int) (*models.Proof, error) {
	ctx, span := s.tracer.Start(ctx, "ticket.GenerateProof")
	defer span.End()

	if !mode.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown disclosure mode %q", mode)
	}

	ticket, err := s.tickets.ActiveForPair(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNoValidTicket, "no valid ticket for event %s", eventID)
		}
		return nil, err
	}

	// The age check runs before any commitment is created so a failed
	// generation leaves no ledger state behind.
	var ageProof *commitment.StatementProof
	if mode == models.ModePartial {
		if minAge <= 0 {
			minAge = DefaultMinAge
		}
		ageProof, err = s.prover.ProveAge(ctx, age, minAge, userID)
		if err != nil {
			return nil, err
		}
	}

	commitmentHash, _, err := s.ledger.Create(map[string]any{
		"event_id":   eventID,
		"ticket_id":  ticket.TicketID,
		"has_ticket": true,
	}, userID)
	if err != nil {
		return nil, err
	}

	proof := &models.Proof{
		ProofID:    "ticket_proof_" + uuid.NewString(),
		Mode:       mode,
		EventID:    eventID,
		Commitment: commitmentHash,
		Nullifier:  commitment.NullifierHash(commitment.DomainTicket, ticket.TicketID, eventID, userID),
		CreatedAt:  s.now().UTC(),
		AgeProof:   ageProof,
	}

	if mode == models.ModeFull {
		ownershipHash, _, err := s.ledger.Create(map[string]any{
			"owner_id":  userID,
			"ticket_id": ticket.TicketID,
			"owns":      true,
		}, userID)
		if err != nil {
			return nil, err
		}
		proof.Disclosed = &models.Disclosure{
			OwnerID:             userID,
			TicketID:            ticket.TicketID,
			TicketType:          ticket.Type,
			OwnershipCommitment: ownershipHash,
		}
	}

	s.metrics.IncProofsGenerated(string(mode))
	s.emit(ctx, audit.Event{
		Action:  audit.ActionProofGenerated,
		Subject: commitment.HashOwner(userID),
		EventID: eventID,
	})

	return proof, nil
}

// VerifyAttendance checks a ticket proof in fixed order: payload shape,
// required mode, per-mode structure, then the nullifier. The nullifier is
// spent only after structural validity passes, so a malformed proof never
// consumes a replay slot. Untrusted input always comes back as a result;
// the error return is for infrastructure failures only.
func (s *Service) VerifyAttendance(ctx context.Context, eventID string, proof *models.Proof, requiredMode models.DisclosureMode) (models.VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "ticket.VerifyAttendance")
	defer span.End()

	started := s.now()
	result, err := s.verify(ctx, eventID, proof, requiredMode)
	if err != nil {
		return models.VerifyResult{}, err
	}
	s.metrics.ObserveVerifyDuration(s.now().Sub(started).Seconds())

	if result.Verified {
		s.metrics.IncVerifications("accepted")
		s.emit(ctx, audit.Event{
			Action:   audit.ActionAttendanceVerified,
			EventID:  eventID,
			Decision: "admitted",
		})
	} else {
		s.metrics.IncVerifications("rejected")
		if result.Reason == models.ReasonNullifierReused {
			s.metrics.IncNullifierReplays()
		}
		s.emit(ctx, audit.Event{
			Action:   audit.ActionVerificationRejected,
			EventID:  eventID,
			Decision: "rejected",
			Reason:   result.Reason,
		})
	}
	return result, nil
}

func (s *Service) verify(ctx context.Context, eventID string, proof *models.Proof, requiredMode models.DisclosureMode) (models.VerifyResult, error) {
	reject := func(reason string) (models.VerifyResult, error) {
		return models.VerifyResult{Verified: false, Admitted: false, Reason: reason}, nil
	}

	if proof == nil || proof.Nullifier == "" {
		return reject(models.ReasonMalformedProof)
	}
	if requiredMode != "" && proof.Mode != requiredMode {
		return reject(models.ReasonModeMismatch)
	}
	if !proof.Mode.Valid() || !commitment.IsHexHash(proof.Nullifier) || !commitment.IsHexHash(proof.Commitment) {
		return reject(models.ReasonMalformedProof)
	}
	if proof.EventID != eventID {
		return reject(models.ReasonVerificationFailed)
	}

	switch proof.Mode {
	case models.ModeAnonymous:
		// Nothing beyond the shared fields.
	case models.ModePartial:
		if proof.AgeProof == nil {
			return reject(models.ReasonMalformedProof)
		}
		ageResult, err := s.prover.Verify(ctx, proof.AgeProof)
		if err != nil {
			return models.VerifyResult{}, err
		}
		if !ageResult.Verified {
			return reject(models.ReasonVerificationFailed)
		}
	case models.ModeFull:
		disclosed := proof.Disclosed
		if disclosed == nil || disclosed.OwnerID == "" || disclosed.TicketID == "" ||
			!disclosed.TicketType.Valid() || !commitment.IsHexHash(disclosed.OwnershipCommitment) {
			return reject(models.ReasonMalformedProof)
		}
		ticket, err := s.tickets.Get(ctx, disclosed.TicketID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return reject(models.ReasonVerificationFailed)
			}
			return models.VerifyResult{}, err
		}
		if ticket.EventID != eventID || ticket.OwnerID != disclosed.OwnerID {
			return reject(models.ReasonVerificationFailed)
		}
	}

	// Replay guard last: under concurrent verification of the same proof
	// exactly one caller wins this insert.
	accepted, err := s.nullifiers.Register(ctx, proof.Nullifier)
	if err != nil {
		return models.VerifyResult{}, err
	}
	if !accepted {
		return reject(models.ReasonNullifierReused)
	}

	now := s.now().UTC()
	if proof.Mode == models.ModeFull {
		if err := s.tickets.MarkUsed(ctx, proof.Disclosed.TicketID, now); err != nil {
			return models.VerifyResult{}, err
		}
	}
	if err := s.records.Append(ctx, models.AttendanceProofRecord{
		ProofID:    proof.ProofID,
		EventID:    eventID,
		Mode:       proof.Mode,
		Nullifier:  proof.Nullifier,
		VerifiedAt: now,
	}); err != nil {
		return models.VerifyResult{}, err
	}

	return models.VerifyResult{
		Verified:   true,
		Admitted:   true,
		ProofID:    proof.ProofID,
		VerifiedAt: now,
	}, nil
}

// EventStats releases noised total and used ticket counts for the event.
// Each query spends a unit budget; the rate divides the noised counts so no
// exact value is ever exposed.
func (s *Service) EventStats(ctx context.Context, eventID string) (*models.EventStats, error) {
	ctx, span := s.tracer.Start(ctx, "ticket.EventStats")
	defer span.End()

	total, used, err := s.tickets.CountByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	noisyTotal, err := s.noise.AddNoise(float64(total), 1.0)
	if err != nil {
		return nil, err
	}
	noisyUsed, err := s.noise.AddNoise(float64(used), 1.0)
	if err != nil {
		return nil, err
	}
	noisyTotal = math.Max(0, noisyTotal)
	noisyUsed = math.Max(0, noisyUsed)

	return &models.EventStats{
		EventID:         eventID,
		TotalTicketsDP:  noisyTotal,
		UsedTicketsDP:   noisyUsed,
		AttendanceRate:  noisyUsed / math.Max(noisyTotal, 1),
		EpsilonPerQuery: statsEpsilon,
	}, nil
}

// TicketInfo returns the ownerless public view of a ticket.
func (s *Service) TicketInfo(ctx context.Context, ticketID string) (*models.Info, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "ticket %s not found", ticketID)
		}
		return nil, err
	}
	return &models.Info{
		TicketID: ticket.TicketID,
		EventID:  ticket.EventID,
		Type:     ticket.Type,
		Used:     ticket.Used,
		MintedAt: ticket.MintedAt,
	}, nil
}

// AttendanceRecords returns the accepted-verification log for one event.
func (s *Service) AttendanceRecords(ctx context.Context, eventID string) ([]models.AttendanceProofRecord, error) {
	return s.records.ByEvent(ctx, eventID)
}

// emit publishes an audit event, logging but not propagating sink failures.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	event.RequestID = middleware.GetRequestID(ctx)
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
