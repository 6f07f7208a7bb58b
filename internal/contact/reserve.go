package contact

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/company"
	"github.com/coldreach/coldreach/internal/model"
)

// Reserver marks a (company, contact) pair as in use for a cooldown window.
// Reserve is atomic: of several concurrent callers for the same pair, exactly
// one gets true. Reserving a pair the same holder already owns succeeds and
// refreshes the window.
type Reserver interface {
	Reserve(ctx context.Context, companyURL, email, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, companyURL, email, holder string) error
}

// reservationKey identifies a (company, contact) pair regardless of URL
// spelling or email case.
func reservationKey(companyURL, email string) string {
	c, err := company.NormalizeDomain(companyURL)
	if err != nil {
		c = strings.ToLower(strings.TrimSpace(companyURL))
	}
	return c + "|" + strings.ToLower(strings.TrimSpace(email))
}

type reservation struct {
	holder  string
	expires time.Time
}

// MemoryReserver keeps reservations in process memory.
type MemoryReserver struct {
	mu    sync.Mutex
	held  map[string]reservation
	nowFn func() time.Time
}

// NewMemoryReserver creates an empty MemoryReserver.
func NewMemoryReserver() *MemoryReserver {
	return &MemoryReserver{held: make(map[string]reservation), nowFn: time.Now}
}

func (m *MemoryReserver) Reserve(_ context.Context, companyURL, email, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, eris.New("contact: reservation ttl must be positive")
	}
	key := reservationKey(companyURL, email)
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.held[key]; ok && now.Before(r.expires) && r.holder != holder {
		return false, nil
	}
	m.held[key] = reservation{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

// Release drops the reservation if holder still owns it.
func (m *MemoryReserver) Release(_ context.Context, companyURL, email, holder string) error {
	key := reservationKey(companyURL, email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.held[key]; ok && r.holder == holder {
		delete(m.held, key)
	}
	return nil
}

// Selector picks the first candidate that can be reserved.
type Selector struct {
	reserver Reserver
	cooldown time.Duration
}

// NewSelector creates a Selector holding reservations for cooldown.
func NewSelector(r Reserver, cooldown time.Duration) *Selector {
	return &Selector{reserver: r, cooldown: cooldown}
}

// Select walks candidates in order, skipping any reserved by another
// session, and reserves the first free one for sessionID. Running out of
// candidates is model.ErrNoContactAvailable.
func (s *Selector) Select(ctx context.Context, sessionID string, candidates []model.Contact) (*model.Contact, error) {
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "contact: select")
		}
		c := candidates[i]
		ok, err := s.reserver.Reserve(ctx, c.CompanyURL, c.Email, sessionID, s.cooldown)
		if err != nil {
			return nil, eris.Wrapf(err, "contact: reserve %s", c.Email)
		}
		if ok {
			return &c, nil
		}
		zap.L().Debug("contact: candidate in use, skipping",
			zap.String("session_id", sessionID),
			zap.String("email", c.Email),
		)
	}
	return nil, model.Classify(model.ErrNoContactAvailable,
		eris.Errorf("contact: all %d candidates reserved", len(candidates)))
}

// Release frees the reservation sessionID holds on c.
func (s *Selector) Release(ctx context.Context, sessionID string, c *model.Contact) error {
	if c == nil {
		return nil
	}
	return s.reserver.Release(ctx, c.CompanyURL, c.Email, sessionID)
}
