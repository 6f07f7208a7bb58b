package model

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeTerminal(t *testing.T) {
	assert.False(t, OutcomePending.Terminal())
	assert.False(t, OutcomeAccepted.Terminal())
	assert.True(t, OutcomeSent.Terminal())
	assert.True(t, OutcomeExhausted.Terminal())
	assert.True(t, OutcomeError.Terminal())
	assert.True(t, OutcomeCancelled.Terminal())
}

func TestBestAttempt(t *testing.T) {
	s := &OutreachSession{Attempts: []DraftAttempt{
		{Seq: 1, Score: 0.4, ScorerVersion: "v1"},
		{Seq: 2, Score: 0.58, ScorerVersion: "v1"},
		{Seq: 3, Score: 0.58, ScorerVersion: "v1"},
		{Seq: 4, Error: "boom"},
	}}
	best := s.BestAttempt()
	require.NotNil(t, best)
	assert.Equal(t, 3, best.Seq)
}

func TestBestAttempt_NoneScored(t *testing.T) {
	s := &OutreachSession{Attempts: []DraftAttempt{{Seq: 1, Error: "generator down"}}}
	assert.Nil(t, s.BestAttempt())
	assert.Nil(t, (&OutreachSession{}).BestAttempt())
}

func TestAcceptedAttempt(t *testing.T) {
	s := &OutreachSession{Attempts: []DraftAttempt{{Seq: 1}, {Seq: 2, Accepted: true}}}
	require.NotNil(t, s.AcceptedAttempt())
	assert.Equal(t, 2, s.AcceptedAttempt().Seq)
}

func TestClassify(t *testing.T) {
	cause := eris.New("dial tcp: i/o timeout")
	err := Classify(ErrFetch, cause)

	assert.True(t, errors.Is(err, ErrFetch))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrGeneration))
	assert.Contains(t, err.Error(), "company fetch failed")
	assert.Contains(t, err.Error(), "i/o timeout")

	// Already classified errors are returned as-is.
	assert.Same(t, err, Classify(ErrFetch, err))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Classify(ErrGeneration, context.DeadlineExceeded), "generation_error"},
		{Classify(ErrScoring, eris.New("bad model")), "scoring_error"},
		{eris.Wrap(Classify(ErrDelivery, eris.New("550")), "send"), "delivery_error"},
		{Classify(ErrProfileBuild, Classify(ErrSourceUnavailable, nil)), "source_unavailable"},
		{ErrNoContactAvailable, "no_contact_available"},
		{context.Canceled, "cancelled"},
		{context.DeadlineExceeded, "timeout"},
		{eris.New("something else"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err))
	}
}
