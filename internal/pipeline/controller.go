// Package pipeline runs outreach sessions: profile, company and contact
// resolution, the regeneration loop, and the send.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/activity"
	"github.com/coldreach/coldreach/internal/draft"
	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/quality"
)

// State is a regeneration controller state.
type State string

const (
	StateStart      State = "start"
	StateGenerating State = "generating"
	StateScoring    State = "scoring"
	StateRetry      State = "retry"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// defaultFeedback is used when the gate has nothing more specific to say.
const defaultFeedback = "Be more specific about the company's work and why it matters to the recipient."

// Appender writes activity log entries.
type Appender interface {
	Append(ctx context.Context, e *model.LogEntry) error
}

// ControllerConfig fixes the retry budget and threshold for every session a
// controller runs.
type ControllerConfig struct {
	MaxAttempts      int
	GeneratorTimeout time.Duration
	ScorerTimeout    time.Duration
}

// Controller drives one session through generate, score, and retry until a
// draft passes the gate, the budget runs out, or a collaborator fails.
type Controller struct {
	gen   draft.Generator
	gate  *quality.Gate
	log   Appender
	cfg   ControllerConfig
	now   func() time.Time
	trace func(sessionID string, s State)
}

// NewController creates a Controller. MaxAttempts must be at least 1.
func NewController(gen draft.Generator, gate *quality.Gate, log Appender, cfg ControllerConfig) (*Controller, error) {
	if cfg.MaxAttempts < 1 {
		return nil, eris.Errorf("pipeline: max attempts %d must be at least 1", cfg.MaxAttempts)
	}
	return &Controller{gen: gen, gate: gate, log: log, cfg: cfg, now: time.Now}, nil
}

// Input is what drafts are written from.
type Input struct {
	ProfileSummary string
	Company        *model.CompanySummary
	Contact        *model.Contact
}

// Run executes the loop on sess, appending each attempt to sess and to the
// activity log before moving on. It returns the final state:
//
//   - StateAccepted: sess.Outcome is accepted, ready to send.
//   - StateExhausted: no draft passed; sess is terminal.
//   - StateFailed: the generator, scorer or log failed; sess is terminal
//     and the returned error is classified model.ErrGeneration.
//   - StateCancelled: ctx was done between attempts; sess is terminal.
func (c *Controller) Run(ctx context.Context, sess *model.OutreachSession, in Input) (State, error) {
	if sess.Outcome.Terminal() {
		return "", eris.Wrapf(model.ErrSessionTerminal, "pipeline: session %s is %s", sess.ID, sess.Outcome)
	}
	if sess.Outcome == model.OutcomeAccepted {
		return "", eris.Errorf("pipeline: session %s already accepted", sess.ID)
	}

	log := zap.L().With(zap.String("session_id", sess.ID), zap.String("company", sess.CompanyURL))
	c.enter(sess, StateStart)

	sc := quality.ScoreContext{Company: in.Company, ProfileSummary: in.ProfileSummary, Contact: in.Contact}
	feedback := ""
	for attempt := len(sess.Attempts) + 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			c.enter(sess, StateCancelled)
			c.terminate(sess, model.OutcomeCancelled, model.Classify(model.ErrCancelled, err))
			log.Info("pipeline: session cancelled", zap.Int("attempts", len(sess.Attempts)))
			return StateCancelled, nil
		}

		c.enter(sess, StateGenerating)
		a := model.DraftAttempt{Seq: attempt, Feedback: feedback}

		gctx, cancel := withTimeout(ctx, c.cfg.GeneratorTimeout)
		d, err := c.gen.Generate(gctx, draft.Request{
			ProfileSummary: in.ProfileSummary,
			Company:        in.Company,
			Contact:        in.Contact,
			Feedback:       feedback,
			Attempt:        attempt,
		})
		cancel()
		if err != nil {
			return c.fail(ctx, sess, a, model.Classify(model.ErrGeneration, err))
		}
		a.Subject, a.Text, a.GeneratorModel = d.Subject, d.Body, d.Model

		c.enter(sess, StateScoring)
		sctx, cancel := withTimeout(ctx, c.cfg.ScorerTimeout)
		v, err := c.gate.Evaluate(sctx, d.Body, sc)
		cancel()
		if err != nil {
			return c.fail(ctx, sess, a, model.Classify(model.ErrScoring, err))
		}
		a.Score, a.ScorerVersion, a.Accepted = v.Score, v.ModelVersion, v.Passed

		if err := c.record(ctx, sess, a); err != nil {
			c.enter(sess, StateFailed)
			c.terminate(sess, model.OutcomeError, err)
			return StateFailed, model.Classify(model.ErrGeneration, err)
		}
		log.Info("pipeline: attempt scored",
			zap.Int("attempt", attempt),
			zap.Float64("score", v.Score),
			zap.Float64("threshold", c.gate.Threshold()),
			zap.Bool("passed", v.Passed),
		)

		if v.Passed {
			c.enter(sess, StateAccepted)
			sess.Outcome = model.OutcomeAccepted
			sess.FinalScore = v.Score
			return StateAccepted, nil
		}
		if attempt >= c.cfg.MaxAttempts {
			c.enter(sess, StateExhausted)
			c.terminate(sess, model.OutcomeExhausted, nil)
			return StateExhausted, nil
		}

		feedback = v.Feedback
		if feedback == "" {
			feedback = defaultFeedback
		}
		c.enter(sess, StateRetry)
	}
}

// fail records the broken attempt and ends the session. A failure caused by
// ctx ending mid-call counts as a cancellation.
func (c *Controller) fail(ctx context.Context, sess *model.OutreachSession, a model.DraftAttempt, cause error) (State, error) {
	a.Error = cause.Error()
	recErr := c.record(ctx, sess, a)

	if ctx.Err() != nil {
		c.enter(sess, StateCancelled)
		c.terminate(sess, model.OutcomeCancelled, model.Classify(model.ErrCancelled, ctx.Err()))
		return StateCancelled, nil
	}

	c.enter(sess, StateFailed)
	c.terminate(sess, model.OutcomeError, cause)
	zap.L().Warn("pipeline: attempt failed",
		zap.String("session_id", sess.ID),
		zap.Int("attempt", a.Seq),
		zap.String("error_kind", sess.ErrorKind),
		zap.Error(cause),
	)
	if recErr != nil {
		return StateFailed, model.Classify(model.ErrGeneration, errors.Join(cause, recErr))
	}
	return StateFailed, model.Classify(model.ErrGeneration, cause)
}

// record writes the attempt to the activity log, then adds it to the
// session. The log write outlives cancellation so an attempt that was made
// is never lost.
func (c *Controller) record(ctx context.Context, sess *model.OutreachSession, a model.DraftAttempt) error {
	a.CreatedAt = c.now().UTC()
	err := c.log.Append(context.WithoutCancel(ctx), activity.AttemptEntry(sess, a))
	sess.Attempts = append(sess.Attempts, a)
	if err != nil {
		return eris.Wrapf(err, "pipeline: log attempt %d", a.Seq)
	}
	return nil
}

func (c *Controller) terminate(sess *model.OutreachSession, outcome model.Outcome, err error) {
	finish(sess, outcome, err, c.now())
}

func (c *Controller) enter(sess *model.OutreachSession, s State) {
	if c.trace != nil {
		c.trace(sess.ID, s)
	}
}

// finish moves sess to a terminal outcome.
func finish(sess *model.OutreachSession, outcome model.Outcome, err error, now time.Time) {
	sess.Outcome = outcome
	if best := sess.BestAttempt(); best != nil {
		sess.FinalScore = best.Score
	}
	if err != nil {
		sess.Error = err.Error()
		sess.ErrorKind = model.ErrorKind(err)
	}
	t := now.UTC()
	sess.CompletedAt = &t
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
