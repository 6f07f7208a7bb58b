// Package company turns a company URL into a structured CompanySummary by
// fetching and parsing its landing page.
package company

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/scrape"
)

// Summarizer produces a CompanySummary for a company URL.
type Summarizer interface {
	Summarize(ctx context.Context, url string) (*model.CompanySummary, error)
}

// WebSummarizer summarizes a company from its website using a scraper chain.
type WebSummarizer struct {
	scraper scrape.Scraper
	now     func() time.Time
}

// NewWebSummarizer creates a WebSummarizer that fetches pages via s.
func NewWebSummarizer(s scrape.Scraper) *WebSummarizer {
	return &WebSummarizer{scraper: s, now: time.Now}
}

// Summarize fetches url and extracts title, descriptions, headings and
// keywords. Fetch failures are classified as model.ErrFetch. A page that
// stayed behind an anti-bot wall is still summarized from whatever it
// contained, with Blocked set.
func (w *WebSummarizer) Summarize(ctx context.Context, rawURL string) (*model.CompanySummary, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, model.Classify(model.ErrFetch, err)
	}
	domain, err := NormalizeDomain(target)
	if err != nil {
		return nil, model.Classify(model.ErrFetch, err)
	}

	res, err := w.scraper.Scrape(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "company: summarize")
		}
		return nil, model.Classify(model.ErrFetch, eris.Wrapf(err, "company: fetch %s", target))
	}

	var page *pageData
	if len(res.Page.HTML) > 0 {
		page, err = parseHTML(res.Page.HTML)
		if err != nil {
			return nil, model.Classify(model.ErrFetch, eris.Wrapf(err, "company: parse %s", target))
		}
	} else {
		page = parseMarkdown(res.Page.Title, res.Page.Markdown)
	}
	if page.Title == "" {
		page.Title = res.Page.Title
	}

	blocked := res.Page.Blocked || scrape.BlockedTitle(page.Title)
	summary := buildSummary(target, domain, page, blocked)
	summary.FetchedAt = w.now().UTC()

	zap.L().Debug("company: summarized",
		zap.String("url", target),
		zap.String("source", res.Source),
		zap.Bool("blocked", blocked),
		zap.Int("keywords", len(summary.Keywords)),
	)
	return summary, nil
}

func buildSummary(target, domain string, p *pageData, blocked bool) *model.CompanySummary {
	headlines := append(append([]string{}, p.H1...), p.H2...)

	return &model.CompanySummary{
		URL:           target,
		Domain:        domain,
		Name:          companyName(p, domain),
		Title:         p.Title,
		Summary:       joinUnique(p.Description, p.OGDescription, p.Text),
		Keywords:      Keywords(MaxKeywords, append([]string{p.Title, p.Description, p.OGDescription}, headlines...)...),
		Headlines:     headlines,
		Blocked:       blocked,
		EmployeeCount: p.Employees,
	}
}

// companyName prefers og:site_name, then the JSON-LD organization name, then
// the leading segment of the page title, then the domain.
func companyName(p *pageData, domain string) string {
	if p.SiteName != "" {
		return p.SiteName
	}
	if p.SchemaName != "" {
		return p.SchemaName
	}
	if p.Title != "" && !scrape.BlockedTitle(p.Title) {
		for _, sep := range []string{" | ", " - ", " \u2013 ", " \u2014 ", ": "} {
			if i := strings.Index(p.Title, sep); i > 0 {
				return strings.TrimSpace(p.Title[:i])
			}
		}
		return p.Title
	}
	return domain
}

func joinUnique(parts ...string) string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range parts {
		k := strings.ToLower(p)
		if p == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, " ")
}
