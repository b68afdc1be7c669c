package service

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"zkattend/internal/audit"
	"zkattend/internal/behavior"
	"zkattend/internal/commitment"
	"zkattend/internal/reputation/models"
	"zkattend/internal/reputation/store"
	dErrors "zkattend/pkg/domain-errors"
)

// flatNoise is a zero-noise mechanism so assertions stay deterministic.
type flatNoise struct{}

func (flatNoise) AddNoise(value, _ float64) (float64, error) { return value, nil }

func (flatNoise) PrivatizeTransitionMatrix(matrix map[string][]float64) map[string][]float64 {
	return matrix
}

type ServiceSuite struct {
	suite.Suite

	ctx    context.Context
	creds  *store.InMemory
	events *audit.InMemoryStore
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.creds = store.NewInMemory()
	s.events = audit.NewInMemoryStore()

	logger := slog.New(slog.DiscardHandler)
	svc, err := New(
		s.creds,
		behavior.New(behavior.DefaultOrder),
		commitment.NewLedger(logger),
		flatNoise{},
		flatNoise{},
		0.05,
		nil,
		audit.NewPublisher(s.events),
		logger,
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) record(userID string, n int) *models.RecordResult {
	var last *models.RecordResult
	for i := 0; i < n; i++ {
		result, err := s.svc.RecordAttendance(s.ctx, userID, fmt.Sprintf("evt%d", i), "Web3")
		s.Require().NoError(err)
		last = result
	}
	return last
}

func (s *ServiceSuite) TestRecordFirstAttendance() {
	result, err := s.svc.RecordAttendance(s.ctx, "bob", "evt1", "Web3")
	s.Require().NoError(err)

	s.Equal("bob", result.UserID)
	s.Equal(1, result.AttendanceCount)
	s.Equal([]models.Achievement{models.AchievementFirstEvent}, result.NewAchievements)
	s.True(commitment.IsHexHash(result.MerkleRoot))

	cred, err := s.creds.Get(s.ctx, "bob")
	s.Require().NoError(err)
	s.Len(cred.EncryptedHistory, 1)
	s.Equal(result.MerkleRoot, cred.MerkleRoot)

	s.Run("audit event emitted", func() {
		events := s.events.Events()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionAttendanceRecorded, events[0].Action)
		s.Equal("evt1", events[0].EventID)
		s.NotEqual("bob", events[0].Subject) // hashed, never raw
	})
}

func (s *ServiceSuite) TestRecordRejectsMissingFields() {
	_, err := s.svc.RecordAttendance(s.ctx, "", "evt1", "Web3")
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	_, err = s.svc.RecordAttendance(s.ctx, "bob", "evt1", "")
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestAchievementThresholds() {
	result := s.record("alice", 10)
	s.Equal(10, result.AttendanceCount)
	s.Contains(result.NewAchievements, models.AchievementTenEvents)
	s.Contains(result.NewAchievements, models.AchievementWeb3Veteran)

	result = s.record("alice", 40)
	s.Equal(50, result.AttendanceCount)
	s.Equal([]models.Achievement{models.AchievementFiftyEvents}, result.NewAchievements)
}

func (s *ServiceSuite) TestAchievementsGrantedOnce() {
	s.record("alice", 55)
	cred, err := s.creds.Get(s.ctx, "alice")
	s.Require().NoError(err)

	seen := make(map[models.Achievement]int)
	for _, a := range cred.Achievements {
		seen[a]++
	}
	for a, n := range seen {
		s.Equalf(1, n, "achievement %s granted %d times", a, n)
	}
	s.Contains(cred.Achievements, models.AchievementFirstEvent)
	s.Contains(cred.Achievements, models.AchievementTenEvents)
	s.Contains(cred.Achievements, models.AchievementFiftyEvents)
}

func (s *ServiceSuite) TestMerkleRootTracksHistory() {
	first, err := s.svc.RecordAttendance(s.ctx, "bob", "evt1", "Web3")
	s.Require().NoError(err)
	second, err := s.svc.RecordAttendance(s.ctx, "bob", "evt2", "Web3")
	s.Require().NoError(err)
	s.NotEqual(first.MerkleRoot, second.MerkleRoot)

	cred, err := s.creds.Get(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(MerkleRoot(cred.EncryptedHistory), cred.MerkleRoot)
}

func (s *ServiceSuite) TestPredictTrajectory() {
	s.record("bob", 1)

	steps, err := s.svc.PredictTrajectory(s.ctx, "bob", 3)
	s.Require().NoError(err)
	s.Require().Len(steps, 3)
	s.Equal(1, steps[0].Step)
	s.Equal("Novice", steps[0].FromState)
	s.Equal(30, steps[0].EstimatedDays)
	s.Equal(90, steps[2].EstimatedDays)
	for _, step := range steps {
		s.Greater(step.Probability, 0.0)
	}

	s.Run("unknown user yields empty path", func() {
		steps, err := s.svc.PredictTrajectory(s.ctx, "nobody", 3)
		s.Require().NoError(err)
		s.Empty(steps)
	})

	s.Run("non-positive steps rejected", func() {
		_, err := s.svc.PredictTrajectory(s.ctx, "bob", 0)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestGenerateAndVerifyProof() {
	s.record("bob", 3)

	proof, err := s.svc.GenerateProof(s.ctx, "bob", "")
	s.Require().NoError(err)
	s.Contains(proof.ProofID, "rep_proof_")
	s.Equal(models.StatementReputationValid, proof.Statement)
	s.Equal(commitment.HashOwner("bob"), proof.UserCommitment)
	s.True(commitment.IsHexHash(proof.ProofCommitment))
	s.GreaterOrEqual(proof.NoisyScore, 0.0)

	result := s.svc.VerifyProof(s.ctx, proof)
	s.True(result.Verified)
	s.Equal(proof.State, result.State)
	s.Equal(proof.StateName, result.StateName)
}

func (s *ServiceSuite) TestGenerateProofUnknownUser() {
	_, err := s.svc.GenerateProof(s.ctx, "nobody", "")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestVerifyProofRejections() {
	s.record("bob", 1)
	proof, err := s.svc.GenerateProof(s.ctx, "bob", "")
	s.Require().NoError(err)

	s.Run("nil proof", func() {
		s.False(s.svc.VerifyProof(s.ctx, nil).Verified)
	})
	s.Run("tampered merkle root", func() {
		bad := *proof
		bad.MerkleRoot = "not-a-hash"
		result := s.svc.VerifyProof(s.ctx, &bad)
		s.False(result.Verified)
		s.Equal("invalid proof format", result.Reason)
	})
	s.Run("out of range state", func() {
		bad := *proof
		bad.State = 99
		s.False(s.svc.VerifyProof(s.ctx, &bad).Verified)
	})
	s.Run("wrong statement", func() {
		bad := *proof
		bad.Statement = "something_else"
		result := s.svc.VerifyProof(s.ctx, &bad)
		s.False(result.Verified)
		s.Equal("invalid statement", result.Reason)
	})
}

func (s *ServiceSuite) TestStats() {
	s.record("alice", 2)
	s.record("bob", 4)

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)

	// Zero-noise mechanism, so the release equals the exact aggregates.
	s.Len(stats.StateDistribution, models.NumStates)
	s.InDelta(2.0, stats.TotalUsersDP, 1e-9)
	s.InDelta(3.0, stats.AverageAttendanceDP, 1e-9)
	s.Equal(0.05, stats.EpsilonUsed)
}

func (s *ServiceSuite) TestStatsEmptyPopulation() {
	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.InDelta(0.0, stats.TotalUsersDP, 1e-9)
	s.Equal(0.0, stats.AverageAttendanceDP)
}

func (s *ServiceSuite) TestPrivatizedMatrix() {
	matrix := s.svc.PrivatizedMatrix(s.ctx)
	s.Len(matrix, models.NumStates)
	for state, row := range matrix {
		s.Lenf(row, models.NumStates, "row %s", state)
		total := 0.0
		for _, p := range row {
			total += p
		}
		s.InDeltaf(1.0, total, 1e-9, "row %s should sum to one", state)
	}
}

func (s *ServiceSuite) TestExport() {
	s.record("bob", 2)

	export, err := s.svc.Export(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal("bob", export.UserID)
	s.Equal(2, export.AttendanceCount)
	s.Equal("1.0", export.ExportVersion)
	s.True(commitment.IsHexHash(export.MerkleRoot))
	s.NotNil(export.MarkovModel)
	s.False(export.ExportedAt.IsZero())

	var exported int
	for _, event := range s.events.Events() {
		if event.Action == audit.ActionCredentialExported {
			exported++
		}
	}
	s.Equal(1, exported)
}

func (s *ServiceSuite) TestExportUnknownUser() {
	_, err := s.svc.Export(s.ctx, "nobody")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}
