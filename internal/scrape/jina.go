package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/resilience"
	"github.com/coldreach/coldreach/pkg/jina"
)

const readerPageTimeout = 20 * time.Second

// JinaAdapter wraps a Jina Reader client as a Scraper behind a circuit
// breaker, so a failing reader is skipped quickly.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client. Three consecutive
// failures open the circuit for 60s.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client: client,
		breaker: resilience.NewCircuitBreaker("jina", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     60 * time.Second,
		}),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	return resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*Result, error) {
		resp, err := j.client.Read(ctx, targetURL, jina.PageTimeout(readerPageTimeout))
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.New("jina: response has no usable content")
		}
		url := resp.Data.URL
		if url == "" {
			url = targetURL
		}
		return &Result{
			Page: Page{
				URL:        url,
				Title:      resp.Data.Title,
				Markdown:   resp.Data.Content,
				StatusCode: resp.Code,
			},
			Source: j.Name(),
		}, nil
	})
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// needsFallback reports whether a Jina response is empty or is itself a
// challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
