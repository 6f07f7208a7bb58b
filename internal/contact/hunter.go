package contact

import (
	"context"

	"github.com/coldreach/coldreach/internal/company"
	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/pkg/hunter"
)

// HunterProvider looks contacts up with Hunter domain search.
type HunterProvider struct {
	client hunter.Client
	limit  int
}

// NewHunterProvider creates a Provider backed by Hunter. limit is clamped to
// Hunter's accepted range.
func NewHunterProvider(client hunter.Client, limit int) *HunterProvider {
	return &HunterProvider{client: client, limit: hunter.ClampLimit(limit)}
}

// Lookup searches by domain, or by company name when the URL has no usable
// domain.
func (h *HunterProvider) Lookup(ctx context.Context, c *model.CompanySummary) (*Lookup, error) {
	req := hunter.DomainSearchRequest{Limit: h.limit}
	switch {
	case c.Domain != "":
		req.Domain = c.Domain
	default:
		if d, err := company.NormalizeDomain(c.URL); err == nil {
			req.Domain = d
		} else {
			req.Company = c.Name
		}
	}

	res, err := h.client.DomainSearch(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Lookup{Headcount: res.Headcount}
	for _, e := range res.Emails {
		out.Contacts = append(out.Contacts, model.Contact{
			Name:        e.FullName(),
			Title:       e.Position,
			Email:       e.Value,
			Confidence:  float64(e.Confidence) / 100,
			CompanyURL:  c.URL,
			LinkedInURL: e.LinkedIn,
			Source:      "hunter",
		})
	}
	return out, nil
}
