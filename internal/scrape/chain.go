package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in priority order.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in order.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

// Scrape returns the first unblocked result. When a page was blocked, later
// scrapers are tried and their result keeps Blocked set; if none succeeds
// the blocked page itself is returned so its metadata is still usable.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var blocked *Result
	var lastErr error
	for _, s := range c.scrapers {
		result, err := s.Scrape(ctx, targetURL)
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if result.Page.Blocked {
			zap.L().Info("scrape: page blocked, falling back",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.String("block_type", string(result.Page.BlockType)),
			)
			if blocked == nil {
				blocked = result
			}
			continue
		}
		if blocked != nil {
			result.Page.Blocked = true
			result.Page.BlockType = blocked.Page.BlockType
		}
		return result, nil
	}
	if blocked != nil {
		return blocked, nil
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no scrapers configured for %s", targetURL)
}
