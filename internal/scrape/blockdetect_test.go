package scrape

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare 403 ray header", 403, http.Header{"Cf-Ray": {"abc123"}}, "", BlockCloudflare},
		{"cloudflare 503 server header", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"cloudflare challenge body", 200, nil, "<p>Checking your browser before accessing clearcutar.com</p>", BlockCloudflare},
		{"rate limited", 429, nil, "slow down", BlockRateLimit},
		{"incapsula", 200, nil, `<script src="/_Incapsula_Resource?x=1"></script>`, BlockWAF},
		{"akamai reference", 403, nil, "Akamai Reference #18.abc", BlockWAF},
		{"recaptcha", 200, nil, "<body>Please complete the reCAPTCHA to continue</body>", BlockCaptcha},
		{"js shell noscript", 200, nil, "<html><noscript>Enable JavaScript to continue</noscript></html>", BlockJSShell},
		{"js shell refresh", 200, nil, `<meta http-equiv="refresh" content="0;url=/app">`, BlockJSShell},
		{"large noscript page is content", 200, nil,
			"<noscript>javascript</noscript>" + strings.Repeat("<p>We build AR tooling.</p>", 100), BlockNone},
		{"clean page", 200, nil, "<html><body>ClearCut AR builds try-on tooling.</body></html>", BlockNone},
		{"plain 404", 404, nil, "not found", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, bt := DetectBlock(&http.Response{StatusCode: tt.status, Header: tt.header}, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, bt := DetectBlock(nil, []byte("captcha"))
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}

func TestBlockedTitle(t *testing.T) {
	for title, want := range map[string]bool{
		"You have been blocked":            true,
		"Access Denied":                    true,
		"Attention Required! | Cloudflare": true,
		"Just a moment...":                 true,
		"Security Check":                   true,
		"ClearCut AR - Home":               false,
		"":                                 false,
	} {
		assert.Equal(t, want, BlockedTitle(title), title)
	}
}
