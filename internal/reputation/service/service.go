// Package service implements the reputation engine: the credential state
// machine, its Merkle-committed history, and the privacy-preserving reads
// over it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"zkattend/internal/audit"
	"zkattend/internal/behavior"
	"zkattend/internal/commitment"
	"zkattend/internal/platform/metrics"
	"zkattend/internal/platform/middleware"
	"zkattend/internal/reputation/models"
	dErrors "zkattend/pkg/domain-errors"
	"zkattend/pkg/platform/sentinel"
)

// CredentialStore is the credential arena. Implementations clone on read
// and swap whole values on write.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (*models.Credential, error)
	Put(ctx context.Context, cred *models.Credential) error
	All(ctx context.Context) ([]*models.Credential, error)
}

// AuditPublisher fans out audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// NoiseMechanism is the slice of the Laplace mechanism this service needs.
type NoiseMechanism interface {
	AddNoise(value, sensitivity float64) (float64, error)
	PrivatizeTransitionMatrix(matrix map[string][]float64) map[string][]float64
}

// historyWindow bounds how much recent history conditions a state update.
const historyWindow = 10

// Service orchestrates attendance recording, proofs, and aggregate reads.
type Service struct {
	creds     CredentialStore
	model     *behavior.Model
	ledger    *commitment.Ledger
	score     NoiseMechanism // per-user activity scores
	stats     NoiseMechanism // per-state aggregate buckets, pre-split budget
	statsEps  float64
	metrics   *metrics.Metrics
	publisher AuditPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New wires the reputation engine. The credential store, behavior model,
// and ledger are required.
func New(
	creds CredentialStore,
	model *behavior.Model,
	ledger *commitment.Ledger,
	score NoiseMechanism,
	stats NoiseMechanism,
	statsEpsilon float64,
	m *metrics.Metrics,
	publisher AuditPublisher,
	logger *slog.Logger,
) (*Service, error) {
	if creds == nil {
		return nil, errors.New("credential store is required")
	}
	if model == nil {
		return nil, errors.New("behavior model is required")
	}
	if ledger == nil {
		return nil, errors.New("commitment ledger is required")
	}
	if score == nil || stats == nil {
		return nil, errors.New("noise mechanisms are required")
	}
	return &Service{
		creds:     creds,
		model:     model,
		ledger:    ledger,
		score:     score,
		stats:     stats,
		statsEps:  statsEpsilon,
		metrics:   m,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("zkattend/reputation"),
		now:       time.Now,
	}, nil
}

// RecordAttendance applies one attendance event to the user's credential:
// history commitment, behavior token, Markov-driven state update,
// achievement checks, and a recomputed Merkle root. The updated credential
// is built immutably and swapped into the store as the last step, so
// concurrent readers never observe a partial update.
func (s *Service) RecordAttendance(ctx context.Context, userID, eventID, eventType string) (*models.RecordResult, error) {
	ctx, span := s.tracer.Start(ctx, "reputation.RecordAttendance")
	defer span.End()

	if userID == "" || eventID == "" || eventType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user, event, and event type are required")
	}

	now := s.now().UTC()
	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		cred = models.NewCredential(userID, now)
	}

	next := cred.Clone()

	recordHash, _, err := s.ledger.Create(map[string]any{
		"user_id":    userID,
		"event_id":   eventID,
		"event_type": eventType,
		"timestamp":  now.Format(time.RFC3339Nano),
	}, userID)
	if err != nil {
		return nil, err
	}
	next.EncryptedHistory = append(next.EncryptedHistory, recordHash)
	next.AttendanceCount++

	token := eventType + "_" + strconv.Itoa(int(next.State))
	s.model.AddBehavior(userID, []string{token})

	next.State = s.updatedState(userID, next)

	newAchievements := grantAchievements(next)
	next.MerkleRoot = MerkleRoot(next.EncryptedHistory)
	next.UpdatedAt = now

	// Commit point: everything above touched only the local copy.
	if err := s.creds.Put(ctx, next); err != nil {
		return nil, err
	}

	s.metrics.IncAttendanceRecorded()
	s.emit(ctx, audit.Event{
		Action:   audit.ActionAttendanceRecorded,
		Subject:  commitment.HashOwner(userID),
		EventID:  eventID,
		Decision: "recorded",
	})
	s.logger.InfoContext(ctx, "attendance recorded",
		"event_id", eventID,
		"state", next.State.String(),
		"attendance_count", next.AttendanceCount,
	)

	return &models.RecordResult{
		UserID:          userID,
		EventID:         eventID,
		State:           next.State.String(),
		AttendanceCount: next.AttendanceCount,
		NewAchievements: newAchievements,
		MerkleRoot:      next.MerkleRoot,
	}, nil
}

// updatedState is the authoritative state-update path: the learned model
// predicts the next state ordinal from a window of recent history. When the
// model has no prediction the state stays put.
func (s *Service) updatedState(userID string, cred *models.Credential) models.State {
	window := min(len(cred.EncryptedHistory), historyWindow)
	if window < 2 || window < s.model.Order() {
		return cred.State
	}

	ordinal := strconv.Itoa(int(cred.State))
	recent := make([]string, window)
	for i := range recent {
		recent[i] = ordinal
	}

	predicted, ok, err := s.model.PredictNext(userID, recent)
	if err != nil || !ok {
		return cred.State
	}
	parsed, err := strconv.Atoi(predicted)
	if err != nil {
		return cred.State
	}
	nextState, err := models.ParseState(parsed)
	if err != nil || nextState == cred.State {
		return cred.State
	}
	s.logger.Info("reputation state updated",
		"from", cred.State.String(),
		"to", nextState.String(),
	)
	return nextState
}

// grantAchievements applies threshold and diversity badges exactly once
// each, mutating the working copy and returning the newly granted set.
func grantAchievements(cred *models.Credential) []models.Achievement {
	granted := []models.Achievement{}
	for _, t := range models.AttendanceThresholds {
		if cred.AttendanceCount >= t.Count && !cred.HasAchievement(t.Achievement) {
			cred.Achievements = append(cred.Achievements, t.Achievement)
			granted = append(granted, t.Achievement)
		}
	}
	if len(cred.EncryptedHistory) >= models.VeteranHistoryLen &&
		!cred.HasAchievement(models.AchievementWeb3Veteran) {
		cred.Achievements = append(cred.Achievements, models.AchievementWeb3Veteran)
		granted = append(granted, models.AchievementWeb3Veteran)
	}
	return granted
}

// PredictTrajectory forecasts the user's state path over the fixed
// transition matrix. Non-authoritative, read-only, display only. An unknown
// user yields an empty path.
func (s *Service) PredictTrajectory(ctx context.Context, userID string, steps int) ([]models.TrajectoryStep, error) {
	ctx, span := s.tracer.Start(ctx, "reputation.PredictTrajectory")
	defer span.End()

	if steps <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "steps must be positive")
	}
	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return []models.TrajectoryStep{}, nil
		}
		return nil, err
	}
	return walkTrajectory(cred.State, steps), nil
}

// GenerateProof builds a reputation proof bundle: a commitment over the
// hashed user, current state, Merkle root, and the asserted statement, plus
// a noised activity score.
func (s *Service) GenerateProof(ctx context.Context, userID, statement string) (*models.Proof, error) {
	ctx, span := s.tracer.Start(ctx, "reputation.GenerateProof")
	defer span.End()

	if statement == "" {
		statement = models.StatementReputationValid
	}

	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "user %s not found", userID)
		}
		return nil, err
	}

	noisy, err := s.score.AddNoise(float64(cred.AttendanceCount), 1.0)
	if err != nil {
		return nil, err
	}

	hashedUser := commitment.HashOwner(userID)
	proofCommitment, _, err := s.ledger.Create(map[string]any{
		"user_id":                   hashedUser,
		"reputation_state":          int(cred.State),
		"reputation_state_name":     cred.State.String(),
		"merkle_root":               cred.MerkleRoot,
		"has_sufficient_reputation": cred.State >= models.StateActive,
		"statement":                 statement,
	}, userID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncProofsGenerated("reputation")
	s.emit(ctx, audit.Event{
		Action:  audit.ActionProofGenerated,
		Subject: hashedUser,
	})

	return &models.Proof{
		ProofID:         "rep_proof_" + newProofID(),
		UserCommitment:  hashedUser,
		State:           int(cred.State),
		StateName:       cred.State.String(),
		MerkleRoot:      cred.MerkleRoot,
		NoisyScore:      math.Max(0, noisy),
		ProofCommitment: proofCommitment,
		Statement:       statement,
		CreatedAt:       s.now().UTC(),
	}, nil
}

// VerifyProof structurally checks an untrusted reputation proof bundle. It
// never errors on attacker-supplied input; rejections come back as results.
func (s *Service) VerifyProof(ctx context.Context, proof *models.Proof) models.ProofResult {
	_, span := s.tracer.Start(ctx, "reputation.VerifyProof")
	defer span.End()

	if proof == nil {
		return models.ProofResult{Verified: false, Reason: "missing proof"}
	}
	if !commitment.IsHexHash(proof.MerkleRoot) {
		return models.ProofResult{Verified: false, Reason: "invalid proof format"}
	}
	state, err := models.ParseState(proof.State)
	if err != nil {
		return models.ProofResult{Verified: false, Reason: "invalid proof format"}
	}
	if proof.Statement != models.StatementReputationValid {
		return models.ProofResult{Verified: false, Reason: "invalid statement"}
	}
	return models.ProofResult{
		Verified:  true,
		State:     proof.State,
		StateName: state.String(),
	}
}

// Stats releases the differentially private aggregate view: per-state user
// counts (budget split equally across states) and the mean attendance
// count, all clamped to zero. Operates on a snapshot; staleness under
// concurrent writes is accepted because the release is randomized anyway.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	ctx, span := s.tracer.Start(ctx, "reputation.Stats")
	defer span.End()

	creds, err := s.creds.All(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, models.NumStates)
	for i := range models.NumStates {
		counts[models.State(i).String()] = 0
	}
	total := 0
	for _, cred := range creds {
		counts[cred.State.String()]++
		total += cred.AttendanceCount
	}

	distribution := make(map[string]float64, len(counts))
	totalDP := 0.0
	for state, count := range counts {
		noisy, err := s.stats.AddNoise(float64(count), 1.0)
		if err != nil {
			return nil, err
		}
		noisy = math.Max(0, noisy)
		distribution[state] = noisy
		totalDP += noisy
	}

	avgDP := 0.0
	if len(creds) > 0 {
		avg := float64(total) / float64(len(creds))
		noisy, err := s.score.AddNoise(avg, 1.0)
		if err != nil {
			return nil, err
		}
		avgDP = math.Max(0, noisy)
	}

	return &models.Stats{
		StateDistribution:   distribution,
		TotalUsersDP:        totalDP,
		AverageAttendanceDP: avgDP,
		EpsilonUsed:         s.statsEps,
	}, nil
}

// PrivatizedMatrix releases the fixed transition matrix through the noise
// layer: per-entry noise, clamping, and row re-normalization.
func (s *Service) PrivatizedMatrix(ctx context.Context) map[string][]float64 {
	_, span := s.tracer.Start(ctx, "reputation.PrivatizedMatrix")
	defer span.End()
	return s.stats.PrivatizeTransitionMatrix(matrixByStateName())
}

// Export produces the JSON-serializable credential payload for the external
// anchoring layer, including the user's behavior model snapshot.
func (s *Service) Export(ctx context.Context, userID string) (*models.Export, error) {
	ctx, span := s.tracer.Start(ctx, "reputation.Export")
	defer span.End()

	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "user %s not found", userID)
		}
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Action:  audit.ActionCredentialExported,
		Subject: commitment.HashOwner(userID),
	})

	return &models.Export{
		UserID:          cred.UserID,
		State:           int(cred.State),
		StateName:       cred.State.String(),
		AttendanceCount: cred.AttendanceCount,
		Achievements:    append([]models.Achievement{}, cred.Achievements...),
		MerkleRoot:      cred.MerkleRoot,
		CreatedAt:       cred.CreatedAt,
		UpdatedAt:       cred.UpdatedAt,
		MarkovModel:     s.model.Export(userID),
		ExportVersion:   "1.0",
		ExportedAt:      s.now().UTC(),
	}, nil
}

func newProofID() string { return uuid.NewString() }

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
