// Package models defines the reputation credential and its state machine
// vocabulary.
package models

import (
	"time"

	dErrors "zkattend/pkg/domain-errors"
)

// State is a reputation level, ordinal 0-4. The ordinal is part of the wire
// contract: behavior tokens and proof bundles embed it.
type State int

const (
	StateNovice State = iota
	StateOccasional
	StateActive
	StateCoreContributor
	StateAmbassador
)

// NumStates is the width of the transition matrix.
const NumStates = 5

func (s State) String() string {
	switch s {
	case StateNovice:
		return "Novice"
	case StateOccasional:
		return "Occasional"
	case StateActive:
		return "Active"
	case StateCoreContributor:
		return "CoreContributor"
	case StateAmbassador:
		return "Ambassador"
	default:
		return "Unknown"
	}
}

// Valid reports whether the ordinal names a real state.
func (s State) Valid() bool {
	return s >= StateNovice && s <= StateAmbassador
}

// ParseState validates an ordinal received from outside the package.
func ParseState(ordinal int) (State, error) {
	s := State(ordinal)
	if !s.Valid() {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid reputation state ordinal %d", ordinal)
	}
	return s, nil
}

// Achievement is an enumerated badge tag.
type Achievement string

const (
	AchievementFirstEvent      Achievement = "first_event"
	AchievementTenEvents       Achievement = "ten_events"
	AchievementFiftyEvents     Achievement = "fifty_events"
	AchievementHostFirst       Achievement = "host_first"
	AchievementHostTen         Achievement = "host_ten"
	AchievementCommunityHelper Achievement = "community_helper"
	AchievementPrivacyAdvocate Achievement = "privacy_advocate"
	AchievementWeb3Veteran     Achievement = "web3_veteran"
)

// AttendanceThresholds maps auto-granted achievements to the attendance
// count that unlocks them. Each is granted exactly once.
var AttendanceThresholds = []struct {
	Achievement Achievement
	Count       int
}{
	{AchievementFirstEvent, 1},
	{AchievementTenEvents, 10},
	{AchievementFiftyEvents, 50},
}

// VeteranHistoryLen is the diversity heuristic: this many recorded events
// marks a veteran.
const VeteranHistoryLen = 10

// Credential is a user's reputation record. Services treat stored values as
// immutable: updates build a new Credential and swap it in as the last step,
// so a reader never observes a half-applied attendance record.
type Credential struct {
	UserID           string
	State            State
	AttendanceCount  int
	Achievements     []Achievement
	EncryptedHistory []string // ordered commitment hashes, append-only
	MerkleRoot       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewCredential initializes a first-attendance credential.
func NewCredential(userID string, now time.Time) *Credential {
	return &Credential{
		UserID:    userID,
		State:     StateNovice,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone deep-copies the credential so a service can mutate freely before
// swapping the result into the store.
func (c *Credential) Clone() *Credential {
	out := *c
	out.Achievements = append([]Achievement(nil), c.Achievements...)
	out.EncryptedHistory = append([]string(nil), c.EncryptedHistory...)
	return &out
}

// HasAchievement reports whether the badge was already granted.
func (c *Credential) HasAchievement(a Achievement) bool {
	for _, held := range c.Achievements {
		if held == a {
			return true
		}
	}
	return false
}

// RecordResult is returned from every attendance record.
type RecordResult struct {
	UserID          string        `json:"user_id"`
	EventID         string        `json:"event_id"`
	State           string        `json:"state"`
	AttendanceCount int           `json:"attendance_count"`
	NewAchievements []Achievement `json:"new_achievements"`
	MerkleRoot      string        `json:"merkle_root"`
}

// TrajectoryStep is one hop of the fixed-matrix forecast.
type TrajectoryStep struct {
	Step          int     `json:"step"`
	FromState     string  `json:"from_state"`
	ToState       string  `json:"to_state"`
	Probability   float64 `json:"probability"`
	EstimatedDays int     `json:"estimated_days"`
}

// StatementReputationValid is the literal every reputation proof asserts.
const StatementReputationValid = "reputation_state_valid"

// Proof is the reputation proof bundle. The commitment covers a statement
// about the credential, not the attendance history itself.
type Proof struct {
	ProofID         string    `json:"proof_id"`
	UserCommitment  string    `json:"user_commitment"`
	State           int       `json:"reputation_state"`
	StateName       string    `json:"reputation_state_name"`
	MerkleRoot      string    `json:"merkle_root"`
	NoisyScore      float64   `json:"noisy_score"`
	ProofCommitment string    `json:"proof_commitment"`
	Statement       string    `json:"statement"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProofResult is returned for any untrusted proof bundle.
type ProofResult struct {
	Verified  bool   `json:"verified"`
	Reason    string `json:"reason,omitempty"`
	State     int    `json:"reputation_state,omitempty"`
	StateName string `json:"reputation_state_name,omitempty"`
}

// Stats is the differentially private aggregate release.
type Stats struct {
	StateDistribution   map[string]float64 `json:"state_distribution"`
	TotalUsersDP        float64            `json:"total_users_dp"`
	AverageAttendanceDP float64            `json:"average_attendance_dp"`
	EpsilonUsed         float64            `json:"epsilon_used"`
}

// Export is the JSON-serializable payload handed to the external
// anchoring/storage layer.
type Export struct {
	UserID          string                    `json:"user_id"`
	State           int                       `json:"reputation_state"`
	StateName       string                    `json:"reputation_state_name"`
	AttendanceCount int                       `json:"attendance_count"`
	Achievements    []Achievement             `json:"achievements"`
	MerkleRoot      string                    `json:"merkle_root"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	MarkovModel     map[string]map[string]int `json:"markov_model"`
	ExportVersion   string                    `json:"export_version"`
	ExportedAt      time.Time                 `json:"exported_at"`
}
