package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/model"
)

// ProfileSource returns the sender's profile, building it when needed.
type ProfileSource interface {
	GetOrBuild(ctx context.Context, userID string, sources model.ProfileSources) (*model.UserProfile, error)
}

// CompanySummarizer turns a company URL into a summary.
type CompanySummarizer interface {
	Summarize(ctx context.Context, url string) (*model.CompanySummary, error)
}

// ContactResolver ranks candidate contacts for a company.
type ContactResolver interface {
	Resolve(ctx context.Context, company *model.CompanySummary) ([]model.Contact, error)
}

// ContactSelector reserves the first free candidate for a session.
type ContactSelector interface {
	Select(ctx context.Context, sessionID string, candidates []model.Contact) (*model.Contact, error)
	Release(ctx context.Context, sessionID string, c *model.Contact) error
}

// ReviewQueue receives sessions whose drafts never cleared the gate.
type ReviewQueue interface {
	Submit(ctx context.Context, sess *model.OutreachSession) error
}

// Request starts one session.
type Request struct {
	UserID     string
	CompanyURL string
	Sources    model.ProfileSources
	// SessionID is generated when empty.
	SessionID string
}

// Result is the terminal session of a run. Best is the draft to show a
// human: the sent draft, or the highest-scoring one otherwise. Err carries
// the classified cause of a rejected-error or cancelled session.
type Result struct {
	Session *model.OutreachSession
	Best    *model.DraftAttempt
	Err     error
}

// Deps are the collaborators of a Pipeline. Review is optional.
type Deps struct {
	Profiles   ProfileSource
	Companies  CompanySummarizer
	Resolver   ContactResolver
	Selector   ContactSelector
	Controller *Controller
	Sender     Sender
	Sessions   SessionStore
	Log        Appender
	Review     ReviewQueue
}

// Pipeline runs outreach sessions end to end.
type Pipeline struct {
	deps Deps
	rec  recorder
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{
		deps: deps,
		rec:  recorder{sessions: deps.Sessions, log: deps.Log},
		now:  time.Now,
	}
}

// Run executes one session. Domain outcomes, including collaborator
// failures, come back in Result; the error is reserved for an invalid
// request or a failure to record the outcome.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" || req.CompanyURL == "" {
		return nil, eris.New("pipeline: user id and company url are required")
	}
	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	sess := &model.OutreachSession{
		ID:         id,
		UserID:     req.UserID,
		CompanyURL: req.CompanyURL,
		Outcome:    model.OutcomePending,
		CreatedAt:  p.now().UTC(),
	}
	log := zap.L().With(zap.String("session_id", id), zap.String("company", req.CompanyURL))
	log.Info("pipeline: starting session", zap.String("user_id", req.UserID))

	var prof *model.UserProfile
	if err := p.phase(log, "profile", func() (err error) {
		prof, err = p.deps.Profiles.GetOrBuild(ctx, req.UserID, req.Sources)
		return err
	}); err != nil {
		return p.reject(ctx, sess, err)
	}

	var company *model.CompanySummary
	if err := p.phase(log, "company", func() (err error) {
		company, err = p.deps.Companies.Summarize(ctx, req.CompanyURL)
		return err
	}); err != nil {
		return p.reject(ctx, sess, err)
	}

	var contact *model.Contact
	if err := p.phase(log, "contact", func() error {
		candidates, err := p.deps.Resolver.Resolve(ctx, company)
		if err != nil {
			return err
		}
		contact, err = p.deps.Selector.Select(ctx, id, candidates)
		return err
	}); err != nil {
		return p.reject(ctx, sess, err)
	}
	sess.Contact = contact
	defer func() {
		if err := p.deps.Selector.Release(context.WithoutCancel(ctx), id, contact); err != nil {
			log.Warn("pipeline: release contact", zap.Error(err))
		}
	}()

	var state State
	var loopErr error
	_ = p.phase(log, "regenerate", func() error {
		state, loopErr = p.deps.Controller.Run(ctx, sess, Input{
			ProfileSummary: prof.Summary,
			Company:        company,
			Contact:        contact,
		})
		return loopErr
	})
	if loopErr != nil && state == "" {
		return nil, loopErr
	}

	if state == StateAccepted {
		return p.deliver(ctx, log, sess)
	}

	if state == StateExhausted && p.deps.Review != nil {
		if err := p.deps.Review.Submit(ctx, sess); err != nil {
			log.Warn("pipeline: submit for review", zap.Error(err))
		}
	}

	res := &Result{Session: sess, Best: sess.BestAttempt(), Err: loopErr}
	if state == StateCancelled {
		res.Err = model.Classify(model.ErrCancelled, ctx.Err())
	}
	if err := p.rec.finalize(ctx, sess); err != nil {
		return res, err
	}
	log.Info("pipeline: session finished",
		zap.String("outcome", string(sess.Outcome)),
		zap.Int("attempts", len(sess.Attempts)),
		zap.Float64("final_score", sess.FinalScore),
	)
	return res, nil
}

// deliver sends an accepted session. Cancellation is only honoured between
// attempts, so once a draft is accepted the save and the delivery run
// detached from ctx and the session always ends in a recorded terminal state.
func (p *Pipeline) deliver(ctx context.Context, log *zap.Logger, sess *model.OutreachSession) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	// Persist the accepted draft before delivery so a crash between the
	// two leaves a sendable session behind.
	if err := p.deps.Sessions.SaveSession(ctx, sess); err != nil {
		log.Warn("pipeline: save accepted session", zap.Error(err))
	}
	var sent *model.OutreachSession
	err := p.phase(log, "send", func() (err error) {
		sent, err = p.deps.Sender.Send(ctx, sess)
		return err
	})
	if sent == nil {
		if err == nil {
			err = eris.Errorf("pipeline: send returned no session for %s", sess.ID)
		}
		return p.reject(ctx, sess, model.Classify(model.ErrDelivery, err))
	}
	res := &Result{Session: sent, Best: sent.AcceptedAttempt()}
	if sent.Outcome == model.OutcomeError {
		res.Err = model.Classify(model.ErrDelivery, eris.New(sent.Error))
	}
	return res, err
}

// reject ends a session that failed outside the regeneration loop.
func (p *Pipeline) reject(ctx context.Context, sess *model.OutreachSession, cause error) (*Result, error) {
	outcome := model.OutcomeError
	if ctx.Err() != nil {
		outcome = model.OutcomeCancelled
		cause = model.Classify(model.ErrCancelled, cause)
	}
	finish(sess, outcome, cause, p.now())
	res := &Result{Session: sess, Err: cause}
	if err := p.rec.finalize(ctx, sess); err != nil {
		return res, err
	}
	zap.L().Info("pipeline: session rejected",
		zap.String("session_id", sess.ID),
		zap.String("outcome", string(sess.Outcome)),
		zap.String("error_kind", sess.ErrorKind),
	)
	return res, nil
}

// phase runs fn and logs its duration and failure.
func (p *Pipeline) phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.String("error_kind", model.ErrorKind(err)),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", duration))
	return nil
}
