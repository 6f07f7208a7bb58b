package scrape

import (
	"bytes"
	"net/http"
	"strings"
)

// BlockType names the anti-bot mechanism that stopped a fetch.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockWAF        BlockType = "waf"
	BlockCaptcha    BlockType = "captcha"
	BlockRateLimit  BlockType = "rate_limit"
	BlockJSShell    BlockType = "js_shell"
	BlockTitle      BlockType = "title"
)

// jsShellMaxBytes bounds how small a page must be to count as a script shell.
const jsShellMaxBytes = 2000

var blockedTitleMarkers = []string{
	"blocked",
	"access denied",
	"attention required",
	"just a moment",
	"are you a robot",
	"security check",
}

// BlockedTitle reports whether a page title announces an anti-bot block.
func BlockedTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range blockedTitleMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// probe is what a block rule sees. body is lowercased once.
type probe struct {
	status int
	header http.Header
	body   []byte
	size   int
}

func (p probe) has(markers ...string) bool {
	for _, m := range markers {
		if bytes.Contains(p.body, []byte(m)) {
			return true
		}
	}
	return false
}

type blockRule struct {
	kind  BlockType
	match func(p probe) bool
}

// Rules run in order; the first match names the block.
var blockRules = []blockRule{
	{BlockRateLimit, func(p probe) bool {
		return p.status == http.StatusTooManyRequests
	}},
	{BlockCloudflare, func(p probe) bool {
		if p.status != http.StatusForbidden && p.status != http.StatusServiceUnavailable {
			return false
		}
		return p.header.Get("Cf-Ray") != "" || p.header.Get("Cf-Cache-Status") != "" ||
			strings.EqualFold(p.header.Get("Server"), "cloudflare")
	}},
	{BlockCloudflare, func(p probe) bool {
		return p.has("checking your browser", "cf-browser-verification", "cf-challenge") ||
			(p.has("cloudflare") && p.has("challenge"))
	}},
	{BlockWAF, func(p probe) bool {
		return p.has("_incapsula_resource", "incapsula incident", "akamai reference #", "request unsuccessful. incapsula")
	}},
	{BlockCaptcha, func(p probe) bool {
		return p.has("captcha")
	}},
	{BlockJSShell, func(p probe) bool {
		if p.size >= jsShellMaxBytes {
			return false
		}
		return (p.has("<noscript") && p.has("javascript")) || p.has(`meta http-equiv="refresh"`)
	}},
}

// DetectBlock checks an HTTP response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}
	p := probe{status: resp.StatusCode, header: resp.Header, body: bytes.ToLower(body), size: len(body)}
	if p.header == nil {
		p.header = http.Header{}
	}
	for _, r := range blockRules {
		if r.match(p) {
			return true, r.kind
		}
	}
	return false, BlockNone
}
