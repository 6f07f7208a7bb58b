package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/coldreach/coldreach/internal/activity"
	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/store"
	"github.com/coldreach/coldreach/internal/transport"
)

// SessionStore persists sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s *model.OutreachSession) error
	GetSession(ctx context.Context, id string) (*model.OutreachSession, error)
}

// Sender delivers an accepted session and returns it in its terminal state.
type Sender interface {
	Send(ctx context.Context, sess *model.OutreachSession) (*model.OutreachSession, error)
}

// recorder persists a terminal session and writes its summary log row.
type recorder struct {
	sessions SessionStore
	log      Appender
}

func (r recorder) finalize(ctx context.Context, sess *model.OutreachSession) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if err := r.sessions.SaveSession(ctx, sess); err != nil {
		errs = append(errs, eris.Wrapf(err, "pipeline: save session %s", sess.ID))
	}
	if err := r.log.Append(ctx, activity.SessionEntry(sess)); err != nil {
		errs = append(errs, eris.Wrapf(err, "pipeline: log session %s", sess.ID))
	}
	return errors.Join(errs...)
}

// maxUnrecorded bounds the outcomes held in memory because the store
// refused them.
const maxUnrecorded = 1024

// SendCoordinator delivers accepted sessions exactly once. The store is the
// record of what was delivered; done only holds outcomes that could not be
// recorded there.
type SendCoordinator struct {
	transport transport.Transport
	rec       recorder
	now       func() time.Time

	flight singleflight.Group
	mu     sync.Mutex
	done   map[string]*model.OutreachSession
}

// NewSendCoordinator creates a SendCoordinator.
func NewSendCoordinator(t transport.Transport, sessions SessionStore, log Appender) *SendCoordinator {
	return &SendCoordinator{
		transport: t,
		rec:       recorder{sessions: sessions, log: log},
		now:       time.Now,
		done:      make(map[string]*model.OutreachSession),
	}
}

// Send delivers the accepted draft of sess and returns the terminal session.
// sess itself is not modified. A session whose delivery was already
// attempted, according to the store or to this process, is returned as is
// without touching the transport;
// concurrent calls for one session share a single delivery. A transport
// failure yields a rejected-error session, not an error. When recording the
// outcome fails, the terminal session is returned together with the error.
func (c *SendCoordinator) Send(ctx context.Context, sess *model.OutreachSession) (*model.OutreachSession, error) {
	if sess == nil {
		return nil, eris.New("pipeline: send nil session")
	}

	c.mu.Lock()
	if prev, ok := c.done[sess.ID]; ok {
		c.mu.Unlock()
		return cloneSession(prev), nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(sess.ID, func() (any, error) {
		return c.send(ctx, sess)
	})
	out, _ := v.(*model.OutreachSession)
	if out == nil {
		return nil, err
	}
	return cloneSession(out), err
}

func (c *SendCoordinator) send(ctx context.Context, in *model.OutreachSession) (*model.OutreachSession, error) {
	c.mu.Lock()
	if prev, ok := c.done[in.ID]; ok {
		c.mu.Unlock()
		return prev, nil
	}
	c.mu.Unlock()

	persisted, err := c.rec.sessions.GetSession(context.WithoutCancel(ctx), in.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, eris.Wrapf(err, "pipeline: load session %s", in.ID)
	case deliveryAttempted(persisted):
		return persisted, nil
	case persisted.Outcome.Terminal():
		return nil, eris.Wrapf(model.ErrSessionTerminal, "pipeline: session %s is %s", in.ID, persisted.Outcome)
	}

	if deliveryAttempted(in) {
		return in, nil
	}
	if in.Outcome.Terminal() {
		return nil, eris.Wrapf(model.ErrSessionTerminal, "pipeline: session %s is %s", in.ID, in.Outcome)
	}
	if in.Outcome != model.OutcomeAccepted {
		return nil, eris.Errorf("pipeline: session %s is %s, only accepted sessions can be sent", in.ID, in.Outcome)
	}
	accepted := in.AcceptedAttempt()
	if accepted == nil || in.Contact == nil {
		return nil, eris.Errorf("pipeline: session %s has no accepted draft or contact", in.ID)
	}

	sess := cloneSession(in)
	log := zap.L().With(zap.String("session_id", sess.ID), zap.String("transport", c.transport.Name()))

	receipt, sendErr := c.transport.Send(ctx, transport.Message{
		SessionID: sess.ID,
		To:        sess.Contact.Email,
		ToName:    sess.Contact.Name,
		Subject:   accepted.Subject,
		Body:      accepted.Text,
	})
	if sendErr != nil {
		finish(sess, model.OutcomeError, model.Classify(model.ErrDelivery, sendErr), c.now())
		log.Warn("pipeline: send failed", zap.Error(sendErr))
	} else {
		sess.ReceiptID = receipt
		finish(sess, model.OutcomeSent, nil, c.now())
		sess.FinalScore = accepted.Score
		log.Info("pipeline: sent", zap.String("to", sess.Contact.Email), zap.String("receipt", receipt))
	}

	// The transport has been invoked; the outcome is final even if
	// recording it fails.
	if err := c.rec.finalize(ctx, sess); err != nil {
		log.Error("pipeline: record send outcome", zap.Error(err))
		c.remember(sess)
		return sess, err
	}
	return sess, nil
}

func (c *SendCoordinator) remember(s *model.OutreachSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.done[s.ID]; !ok && len(c.done) >= maxUnrecorded {
		for id := range c.done {
			delete(c.done, id)
			break
		}
	}
	c.done[s.ID] = s
}

// deliveryAttempted reports whether the transport already ran for s.
func deliveryAttempted(s *model.OutreachSession) bool {
	switch s.Outcome {
	case model.OutcomeSent:
		return true
	case model.OutcomeError:
		return s.ErrorKind == model.ErrorKind(model.ErrDelivery)
	}
	return false
}

func cloneSession(s *model.OutreachSession) *model.OutreachSession {
	out := *s
	out.Attempts = append([]model.DraftAttempt(nil), s.Attempts...)
	if s.Contact != nil {
		ct := *s.Contact
		out.Contact = &ct
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
