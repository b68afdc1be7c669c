package commitment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "zkattend/pkg/domain-errors"
)

type ProverSuite struct {
	suite.Suite
	prover *Prover
	nulls  *InMemoryNullifierStore
	ctx    context.Context
}

func TestProverSuite(t *testing.T) {
	suite.Run(t, new(ProverSuite))
}

func (s *ProverSuite) SetupTest() {
	s.nulls = NewInMemoryNullifierStore()
	s.prover = NewProver(NewLedger(testLogger()), s.nulls, testLogger())
	s.ctx = context.Background()
}

func (s *ProverSuite) TestProveAge() {
	s.Run("meets threshold", func() {
		proof, err := s.prover.ProveAge(s.ctx, 25, 18, "bob")
		s.Require().NoError(err)
		s.Equal(KindAge, proof.Kind)
		s.Equal("age >= 18", proof.Statement)
		s.True(IsHexHash(proof.CommitmentHash))
		s.True(IsHexHash(proof.NullifierHash))
		s.Equal(HashOwner("bob"), proof.OwnerCommitment)

		res, err := s.prover.Verify(s.ctx, proof)
		s.Require().NoError(err)
		s.True(res.Verified)
	})

	s.Run("below threshold rejected before any ledger mutation", func() {
		before := s.prover.ledger.Count()
		_, err := s.prover.ProveAge(s.ctx, 16, 18, "kid")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInsufficientAttribute))
		s.Equal(before, s.prover.ledger.Count(), "failed generation must leave no partial state")
	})
}

func (s *ProverSuite) TestProveOwnership() {
	proof, err := s.prover.ProveOwnership(s.ctx, map[string]any{"doc": "x"}, "alice")
	s.Require().NoError(err)
	s.Equal(KindOwnership, proof.Kind)

	res, err := s.prover.Verify(s.ctx, proof)
	s.Require().NoError(err)
	s.True(res.Verified)
}

func (s *ProverSuite) TestProveMembership() {
	s.Run("member generates a rooted proof", func() {
		list := []string{HashOwner("alice"), HashOwner("bob"), HashOwner("carol")}
		proof, err := s.prover.ProveMembership(s.ctx, "bob", list)
		s.Require().NoError(err)
		s.Require().NotNil(proof.Membership)
		s.Equal(MembershipRoot(list), proof.Membership.Root)

		res, err := s.prover.Verify(s.ctx, proof)
		s.Require().NoError(err)
		s.True(res.Verified)
	})

	s.Run("non-member rejected", func() {
		_, err := s.prover.ProveMembership(s.ctx, "mallory", []string{HashOwner("alice")})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInsufficientAttribute))
	})
}

func (s *ProverSuite) TestProveBalance() {
	s.Run("sufficient balance", func() {
		proof, err := s.prover.ProveBalance(s.ctx, 5000, 1000, "bob")
		s.Require().NoError(err)
		s.Equal("balance >= 1000", proof.Statement)
	})

	s.Run("insufficient balance", func() {
		_, err := s.prover.ProveBalance(s.ctx, 10, 1000, "bob")
		s.True(dErrors.Is(err, dErrors.CodeInsufficientAttribute))
	})
}

func (s *ProverSuite) TestProveRange() {
	s.Run("in range", func() {
		proof, err := s.prover.ProveRange(s.ctx, 42, 0, 100, "bob")
		s.Require().NoError(err)
		s.Require().NotNil(proof.Range)
		s.Equal(int64(0), proof.Range.Lower)
		s.Equal(int64(100), proof.Range.Upper)
	})

	s.Run("out of range", func() {
		_, err := s.prover.ProveRange(s.ctx, 200, 0, 100, "bob")
		s.True(dErrors.Is(err, dErrors.CodeInsufficientAttribute))
	})
}

func (s *ProverSuite) TestVerifyStructural() {
	s.Run("nil proof", func() {
		res, err := s.prover.Verify(s.ctx, nil)
		s.Require().NoError(err)
		s.False(res.Verified)
	})

	s.Run("unknown kind", func() {
		res, err := s.prover.Verify(s.ctx, &StatementProof{Kind: Kind("bogus")})
		s.Require().NoError(err)
		s.False(res.Verified)
		s.Equal("unknown proof kind", res.Reason)
	})

	s.Run("unregistered nullifier", func() {
		res, err := s.prover.Verify(s.ctx, &StatementProof{
			Kind:           KindAge,
			Statement:      "age >= 18",
			CommitmentHash: HashStrings("c"),
			NullifierHash:  HashStrings("never registered"),
		})
		s.Require().NoError(err)
		s.False(res.Verified)
		s.Equal("nullifier not registered", res.Reason)
	})

	s.Run("membership proof without root", func() {
		res, err := s.prover.Verify(s.ctx, &StatementProof{
			Kind:           KindMembership,
			Statement:      "member of committed set",
			CommitmentHash: HashStrings("c"),
			NullifierHash:  HashStrings("n"),
		})
		s.Require().NoError(err)
		s.False(res.Verified)
		s.Equal("malformed membership root", res.Reason)
	})
}

func (s *ProverSuite) TestBatchVerify() {
	age, err := s.prover.ProveAge(s.ctx, 30, 18, "a")
	s.Require().NoError(err)
	own, err := s.prover.ProveOwnership(s.ctx, map[string]any{"d": 1}, "b")
	s.Require().NoError(err)

	results, err := s.prover.BatchVerify(s.ctx, []*StatementProof{age, own, nil})
	s.Require().NoError(err)
	s.Len(results, 3)
	s.True(results["proof_0_age"].Verified)
	s.True(results["proof_1_ownership"].Verified)
	s.False(results["proof_2_unknown"].Verified)
}

func (s *ProverSuite) TestPrivacyMetrics() {
	_, err := s.prover.ProveAge(s.ctx, 30, 18, "a")
	s.Require().NoError(err)
	_, err = s.prover.ProveAge(s.ctx, 30, 21, "a")
	s.Require().NoError(err)

	metrics, err := s.prover.PrivacyMetrics(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, metrics.Commitments)
	s.Equal(2, metrics.Nullifiers)
	s.Equal(2, metrics.ProofsByKind[KindAge])
	s.Equal(2, metrics.ProofsCreated)
}

func TestMembershipRoot(t *testing.T) {
	leaves := []string{"c", "a", "b"}

	root1 := MembershipRoot(leaves)
	root2 := MembershipRoot([]string{"a", "b", "c"})
	if root1 != root2 {
		t.Fatal("membership root must be order-insensitive")
	}
	if root1 == MembershipRoot([]string{"a", "b"}) {
		t.Fatal("different sets must not share a root")
	}
	if MembershipRoot(nil) != "" {
		t.Fatal("empty set has the empty root")
	}
}
