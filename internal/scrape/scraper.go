// Package scrape fetches company web pages, falling back from a direct HTTP
// fetch to a reader service when the site blocks bots.
package scrape

import "context"

// Page is a fetched web page. HTML is set when the page came from a direct
// fetch; Markdown when it came from a reader service.
type Page struct {
	URL        string
	Title      string
	HTML       []byte
	Markdown   string
	StatusCode int
	Blocked    bool
	BlockType  BlockType
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
}
