package commitment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	dErrors "zkattend/pkg/domain-errors"
)

// Kind is the closed set of statement-proof variants. Dispatch is always an
// exhaustive switch on this type, never a comparison against caller-supplied
// strings, so a sound zero-knowledge backend can later slot in behind the
// same variants without touching call sites.
type Kind string

const (
	KindOwnership  Kind = "ownership"
	KindAge        Kind = "age"
	KindMembership Kind = "membership"
	KindBalance    Kind = "balance"
	KindRange      Kind = "range"
)

func (k Kind) valid() bool {
	switch k {
	case KindOwnership, KindAge, KindMembership, KindBalance, KindRange:
		return true
	}
	return false
}

// domain returns the nullifier namespace for the kind.
func (k Kind) domain() string {
	switch k {
	case KindOwnership:
		return DomainOwnership
	case KindAge:
		return DomainAge
	case KindMembership:
		return DomainMembership
	case KindBalance:
		return DomainBalance
	case KindRange:
		return DomainRange
	default:
		return "unknown"
	}
}

// MembershipClaim is the kind-specific payload of a membership proof.
type MembershipClaim struct {
	Root string `json:"root"`
}

// RangeClaim is the kind-specific payload of a range proof. Bounds are
// public; the committed value is not.
type RangeClaim struct {
	Lower int64 `json:"lower"`
	Upper int64 `json:"upper"`
}

// StatementProof is the bundle every constructor returns. The commitment
// binds a statement about the secret, never the secret itself; the nullifier
// makes the bundle single-use. This layer deliberately does not bind the
// statement to the secret with a proof of knowledge.
type StatementProof struct {
	Kind            Kind      `json:"kind"`
	Statement       string    `json:"statement"`
	OwnerCommitment string    `json:"owner_commitment"`
	CommitmentHash  string    `json:"commitment"`
	NullifierHash   string    `json:"nullifier"`
	CreatedAt       time.Time `json:"created_at"`

	Membership *MembershipClaim `json:"membership,omitempty"`
	Range      *RangeClaim      `json:"range,omitempty"`
}

// VerifyResult is returned for any attacker-supplied bundle; verification
// never turns untrusted input into an error.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// Prover builds and verifies statement proofs on top of the ledger and the
// shared nullifier set.
type Prover struct {
	ledger     *Ledger
	nullifiers NullifierStore
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	byKind map[Kind]int
}

// NewProver wires the proof layer to its ledger and nullifier set.
func NewProver(ledger *Ledger, nullifiers NullifierStore, logger *slog.Logger) *Prover {
	return &Prover{
		ledger:     ledger,
		nullifiers: nullifiers,
		logger:     logger,
		now:        time.Now,
		byKind:     make(map[Kind]int),
	}
}

// HashOwner commits to an owner reference without revealing it.
func HashOwner(ownerRef string) string {
	return HashStrings(ownerRef)
}

// ProveOwnership commits to data and returns a single-use ownership bundle.
func (p *Prover) ProveOwnership(ctx context.Context, data map[string]any, ownerRef string) (*StatementProof, error) {
	return p.build(ctx, KindOwnership, "owns committed data", data, ownerRef, nil, nil)
}

// ProveAge proves age >= minAge without disclosing the age. Rejected before
// any commitment is created when the attribute falls short, so failed
// generation leaves no ledger state behind.
func (p *Prover) ProveAge(ctx context.Context, age, minAge int, ownerRef string) (*StatementProof, error) {
	if age < minAge {
		return nil, dErrors.Newf(dErrors.CodeInsufficientAttribute,
			"age does not meet minimum requirement %d", minAge)
	}
	data := map[string]any{
		"user_id":   ownerRef,
		"age_range": fmt.Sprintf("%d+", minAge),
	}
	return p.build(ctx, KindAge, fmt.Sprintf("age >= %d", minAge), data, ownerRef, nil, nil)
}

// ProveMembership proves the owner's commitment appears in the given list
// without pointing at which entry. The root covers the sorted list.
func (p *Prover) ProveMembership(ctx context.Context, ownerRef string, commitmentList []string) (*StatementProof, error) {
	owner := HashOwner(ownerRef)
	found := false
	for _, c := range commitmentList {
		if c == owner {
			found = true
			break
		}
	}
	if !found {
		return nil, dErrors.New(dErrors.CodeInsufficientAttribute, "owner not in commitment list")
	}
	claim := &MembershipClaim{Root: MembershipRoot(commitmentList)}
	data := map[string]any{"member_of": claim.Root}
	return p.build(ctx, KindMembership, "member of committed set", data, ownerRef, claim, nil)
}

// ProveBalance proves balance >= minBalance without disclosing the balance.
func (p *Prover) ProveBalance(ctx context.Context, balance, minBalance float64, ownerRef string) (*StatementProof, error) {
	if balance < minBalance {
		return nil, dErrors.Newf(dErrors.CodeInsufficientAttribute,
			"balance below minimum %s", strconv.FormatFloat(minBalance, 'g', -1, 64))
	}
	data := map[string]any{
		"user_id":                ownerRef,
		"has_sufficient_balance": true,
		"min_required":           minBalance,
	}
	statement := "balance >= " + strconv.FormatFloat(minBalance, 'g', -1, 64)
	return p.build(ctx, KindBalance, statement, data, ownerRef, nil, nil)
}

// ProveRange proves lower <= value <= upper without disclosing the value.
func (p *Prover) ProveRange(ctx context.Context, value, lower, upper int64, ownerRef string) (*StatementProof, error) {
	if value < lower || value > upper {
		return nil, dErrors.Newf(dErrors.CodeInsufficientAttribute,
			"value not in range [%d, %d]", lower, upper)
	}
	claim := &RangeClaim{Lower: lower, Upper: upper}
	data := map[string]any{
		"user_id":  ownerRef,
		"in_range": fmt.Sprintf("[%d, %d]", lower, upper),
		"valid":    true,
	}
	statement := fmt.Sprintf("value in [%d, %d]", lower, upper)
	return p.build(ctx, KindRange, statement, data, ownerRef, nil, claim)
}

// build runs the shared constructor pattern: commit to the statement data,
// derive a domain-tagged nullifier from (commitment, owner), register it,
// and assemble the bundle.
func (p *Prover) build(ctx context.Context, kind Kind, statement string, data map[string]any,
	ownerRef string, membership *MembershipClaim, rng *RangeClaim) (*StatementProof, error) {

	commitmentHash, _, err := p.ledger.Create(data, ownerRef)
	if err != nil {
		return nil, err
	}

	nullifier := NullifierHash(kind.domain(), commitmentHash, ownerRef)
	accepted, err := p.nullifiers.Register(ctx, nullifier)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, dErrors.New(dErrors.CodeNullifierReused, "nullifier already registered")
	}

	p.mu.Lock()
	p.byKind[kind]++
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "statement proof generated", "kind", kind, "statement", statement)

	return &StatementProof{
		Kind:            kind,
		Statement:       statement,
		OwnerCommitment: HashOwner(ownerRef),
		CommitmentHash:  commitmentHash,
		NullifierHash:   nullifier,
		CreatedAt:       p.now().UTC(),
		Membership:      membership,
		Range:           rng,
	}, nil
}

// Verify structurally checks the bundle and confirms its nullifier was
// registered by the generation flow. Untrusted input yields a structured
// result; the error return is reserved for infrastructure failures.
func (p *Prover) Verify(ctx context.Context, proof *StatementProof) (VerifyResult, error) {
	if proof == nil {
		return VerifyResult{Verified: false, Reason: "missing proof"}, nil
	}
	if reason := proof.structuralReason(); reason != "" {
		return VerifyResult{Verified: false, Reason: reason}, nil
	}

	seen, err := p.nullifiers.Seen(ctx, proof.NullifierHash)
	if err != nil {
		return VerifyResult{}, err
	}
	if !seen {
		return VerifyResult{Verified: false, Reason: "nullifier not registered"}, nil
	}
	return VerifyResult{Verified: true}, nil
}

// BatchVerify verifies a set of bundles, keyed by position and kind.
func (p *Prover) BatchVerify(ctx context.Context, proofs []*StatementProof) (map[string]VerifyResult, error) {
	results := make(map[string]VerifyResult, len(proofs))
	for i, proof := range proofs {
		kind := Kind("unknown")
		if proof != nil {
			kind = proof.Kind
		}
		res, err := p.Verify(ctx, proof)
		if err != nil {
			return nil, err
		}
		results[fmt.Sprintf("proof_%d_%s", i, kind)] = res
	}
	return results, nil
}

// structuralReason returns a rejection reason, or "" when the bundle is
// well-formed for its kind.
func (sp *StatementProof) structuralReason() string {
	if !sp.Kind.valid() {
		return "unknown proof kind"
	}
	if !IsHexHash(sp.CommitmentHash) {
		return "malformed commitment"
	}
	if !IsHexHash(sp.NullifierHash) {
		return "malformed nullifier"
	}
	if sp.Statement == "" {
		return "missing statement"
	}
	switch sp.Kind {
	case KindMembership:
		if sp.Membership == nil || !IsHexHash(sp.Membership.Root) {
			return "malformed membership root"
		}
	case KindRange:
		if sp.Range == nil || sp.Range.Lower > sp.Range.Upper {
			return "malformed range bounds"
		}
	case KindOwnership, KindAge, KindBalance:
		// No kind-specific payload beyond the shared fields.
	}
	return ""
}

// Metrics is a point-in-time snapshot of ledger activity for dashboards.
type Metrics struct {
	Commitments   int          `json:"commitments"`
	Nullifiers    int          `json:"nullifiers"`
	ProofsByKind  map[Kind]int `json:"proofs_by_kind"`
	ProofsCreated int          `json:"proofs_created"`
}

// PrivacyMetrics reports aggregate ledger counts. Reads are snapshots; a
// slightly stale view is fine for dashboards.
func (p *Prover) PrivacyMetrics(ctx context.Context) (Metrics, error) {
	nullifiers, err := p.nullifiers.Count(ctx)
	if err != nil {
		return Metrics{}, err
	}

	p.mu.Lock()
	byKind := make(map[Kind]int, len(p.byKind))
	total := 0
	for k, n := range p.byKind {
		byKind[k] = n
		total += n
	}
	p.mu.Unlock()

	return Metrics{
		Commitments:   p.ledger.Count(),
		Nullifiers:    nullifiers,
		ProofsByKind:  byKind,
		ProofsCreated: total,
	}, nil
}

// MembershipRoot builds an order-insensitive root over a commitment list:
// leaves are sorted, hashed, and paired level by level, an unpaired trailing
// hash carries up unchanged.
func MembershipRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	sorted := make([]string, len(leaves))
	copy(sorted, leaves)
	sort.Strings(sorted)

	level := make([]string, len(sorted))
	for i, leaf := range sorted {
		level[i] = HashStrings(leaf)
	}
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, HashStrings(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}
