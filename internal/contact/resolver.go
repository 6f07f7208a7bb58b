// Package contact ranks candidate recipients for a company and reserves the
// chosen one so concurrent sessions never reach the same person twice.
package contact

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/model"
)

// Lookup is a provider's answer for one company.
type Lookup struct {
	Contacts []model.Contact
	// Headcount as reported by the provider, e.g. "11-50". Used when the
	// company summary carries none.
	Headcount string
}

// Provider finds people at a company.
type Provider interface {
	Lookup(ctx context.Context, company *model.CompanySummary) (*Lookup, error)
}

// Resolver orders provider candidates by confidence, breaking ties on the
// role-priority list for the company's size.
type Resolver struct {
	provider Provider
	roles    RolePriorities
}

// NewResolver creates a Resolver. A nil roles map uses the defaults.
func NewResolver(p Provider, roles RolePriorities) *Resolver {
	if roles == nil {
		roles = DefaultRolePriorities()
	}
	return &Resolver{provider: p, roles: roles}
}

// Resolve returns candidates most-relevant first. An empty provider answer
// is model.ErrNoMatch.
func (r *Resolver) Resolve(ctx context.Context, company *model.CompanySummary) ([]model.Contact, error) {
	lookup, err := r.provider.Lookup(ctx, company)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "contact: resolve")
		}
		return nil, model.Classify(model.ErrNoMatch, eris.Wrapf(err, "contact: lookup %s", company.URL))
	}
	if lookup == nil || len(lookup.Contacts) == 0 {
		return nil, model.Classify(model.ErrNoMatch, eris.Errorf("contact: no candidates for %s", company.URL))
	}

	headcount := company.EmployeeCount
	if headcount == "" {
		headcount = lookup.Headcount
	}
	roles := r.roles.Roles(headcount)

	out := make([]model.Contact, 0, len(lookup.Contacts))
	for _, c := range lookup.Contacts {
		if c.Email == "" {
			continue
		}
		if c.CompanyURL == "" {
			c.CompanyURL = company.URL
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, model.Classify(model.ErrNoMatch, eris.Errorf("contact: no candidates with email for %s", company.URL))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return RoleScore(out[i].Title, roles) > RoleScore(out[j].Title, roles)
	})

	zap.L().Debug("contact: resolved candidates",
		zap.String("company", company.URL),
		zap.String("size", SizeCategory(headcount)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}
