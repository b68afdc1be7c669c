package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type failingSink struct{ err error }

func (s failingSink) Append(context.Context, Event) error { return s.err }

type PublisherSuite struct {
	suite.Suite

	ctx context.Context
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *PublisherSuite) TestEmitStampsTimestamp() {
	sink := NewInMemoryStore()
	pub := NewPublisher(sink)

	s.Require().NoError(pub.Emit(s.ctx, Event{Action: ActionTicketMinted}))

	events := sink.Events()
	s.Require().Len(events, 1)
	s.False(events[0].Timestamp.IsZero())
}

func (s *PublisherSuite) TestEmitKeepsExplicitTimestamp() {
	sink := NewInMemoryStore()
	pub := NewPublisher(sink)

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(pub.Emit(s.ctx, Event{Action: ActionProofGenerated, Timestamp: at}))

	s.Equal(at, sink.Events()[0].Timestamp)
}

func (s *PublisherSuite) TestEmitTriesEverySink() {
	sinkErr := errors.New("sink down")
	healthy := NewInMemoryStore()
	pub := NewPublisher(failingSink{err: sinkErr}, healthy)

	err := pub.Emit(s.ctx, Event{Action: ActionAttendanceRecorded})
	s.ErrorIs(err, sinkErr)
	// The failing sink does not block the healthy one.
	s.Len(healthy.Events(), 1)
}
