package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

const maxBodyBytes = 1 << 20

// LocalScraper fetches raw HTML via net/http and flags anti-bot pages.
type LocalScraper struct {
	client    *http.Client
	userAgent string
}

// LocalOption configures a LocalScraper.
type LocalOption func(*LocalScraper)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) LocalOption {
	return func(l *LocalScraper) { l.client = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) LocalOption {
	return func(l *LocalScraper) { l.userAgent = ua }
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper(opts ...LocalOption) *LocalScraper {
	l := &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: "Mozilla/5.0 (compatible; coldreach/1.0)",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LocalScraper) Name() string { return "local_http" }

// Scrape fetches a URL. A blocked page is returned as a result with Blocked
// set so callers can still use its metadata; other HTTP errors fail.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	page := Page{
		URL:        targetURL,
		Title:      extractTitle(body),
		HTML:       body,
		StatusCode: resp.StatusCode,
	}

	if blocked, bt := DetectBlock(resp, body); blocked {
		page.Blocked, page.BlockType = true, bt
	} else if BlockedTitle(page.Title) {
		page.Blocked, page.BlockType = true, BlockTitle
	}
	if page.Blocked {
		return &Result{Page: page, Source: l.Name()}, nil
	}

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(body) == 0 {
		return nil, eris.New("local_http: empty page")
	}

	return &Result{Page: page, Source: l.Name()}, nil
}

// extractTitle pulls the first <title> text from HTML.
func extractTitle(body []byte) string {
	z := html.NewTokenizer(bytesReader(body))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = string(name) == "title"
		case html.TextToken:
			if inTitle {
				return collapseSpace(string(z.Text()))
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}
