// Package commitment implements the hash-commitment ledger and the one-time
// nullifier set that every proof flow in this system leans on.
//
// The construction is a commitment to canonical data plus a fresh blinding
// factor, not a proof-of-knowledge system: verification requires the opener
// to present the original data and blind factor. See the proofs file for the
// documented soundness limitation of the statement-proof layer.
package commitment

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"crypto/sha256"
	"encoding/hex"

	"zkattend/pkg/platform/sentinel"
)

// Record is what the ledger retains per commitment. Immutable once stored;
// the committed data itself is never kept, only its hash.
type Record struct {
	OwnerRef    string
	BlindFactor string
	DataHash    string
	CreatedAt   time.Time
}

// Ledger stores commitments keyed by commitment hash. One lock guards the
// map; every operation is hashing plus a map touch, so contention is cheap.
type Ledger struct {
	mu          sync.RWMutex
	commitments map[string]Record
	logger      *slog.Logger
	now         func() time.Time
	rand        io.Reader
}

// NewLedger creates an empty commitment ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{
		commitments: make(map[string]Record),
		logger:      logger,
		now:         time.Now,
		rand:        rand.Reader,
	}
}

// Create commits to data on behalf of ownerRef. The blind factor mixes the
// owner, the current time, and a fresh random nonce through HKDF-SHA256, so
// repeated commitments to identical data are always distinct.
func (l *Ledger) Create(data map[string]any, ownerRef string) (commitmentHash, blindFactor string, err error) {
	canonical, err := Canonicalize(data)
	if err != nil {
		return "", "", err
	}

	blindFactor, err = l.deriveBlindFactor(ownerRef)
	if err != nil {
		return "", "", err
	}

	commitmentHash = HashHex(append(canonical, []byte(blindFactor)...))
	record := Record{
		OwnerRef:    ownerRef,
		BlindFactor: blindFactor,
		DataHash:    HashHex(canonical),
		CreatedAt:   l.now().UTC(),
	}

	l.mu.Lock()
	l.commitments[commitmentHash] = record
	l.mu.Unlock()

	l.logger.Debug("commitment created", "owner", ownerRef, "commitment", commitmentHash[:16])
	return commitmentHash, blindFactor, nil
}

// Verify recomputes the commitment from data and blind factor and compares.
// True only on an exact byte-for-byte match of the canonical serialization.
func (l *Ledger) Verify(commitmentHash string, data map[string]any, blindFactor string) bool {
	canonical, err := Canonicalize(data)
	if err != nil {
		return false
	}
	return HashHex(append(canonical, []byte(blindFactor)...)) == commitmentHash
}

// Get returns the stored record for a commitment hash.
func (l *Ledger) Get(commitmentHash string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.commitments[commitmentHash]
	if !ok {
		return Record{}, fmt.Errorf("commitment %s: %w", commitmentHash, sentinel.ErrNotFound)
	}
	return record, nil
}

// Count returns how many commitments the ledger holds.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.commitments)
}

// deriveBlindFactor expands (nonce, owner, timestamp) into 32 bytes via
// HKDF-SHA256 and hex-encodes them. The nonce is fresh per call and never
// reused.
func (l *Ledger) deriveBlindFactor(ownerRef string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := io.ReadFull(l.rand, nonce); err != nil {
		return "", fmt.Errorf("draw blind nonce: %w", err)
	}
	info := []byte(strconv.FormatInt(l.now().UnixNano(), 10))
	kdf := hkdf.New(sha256.New, nonce, []byte(ownerRef), info)
	blind := make([]byte, 32)
	if _, err := io.ReadFull(kdf, blind); err != nil {
		return "", fmt.Errorf("derive blind factor: %w", err)
	}
	return hex.EncodeToString(blind), nil
}
