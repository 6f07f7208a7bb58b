package company

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/idna"
)

// NormalizeDomain reduces a URL or host to its bare lowercase ASCII domain:
// scheme, credentials, port, path and a leading "www." are dropped and
// internationalized names are converted to punycode.
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", eris.New("company: empty domain")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", eris.Wrapf(err, "company: parse %q", raw)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", eris.Errorf("company: no host in %q", raw)
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", eris.Wrapf(err, "company: idna %q", host)
	}
	return ascii, nil
}

// NormalizeURL returns an absolute http(s) URL for raw, defaulting to https.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", eris.New("company: empty url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", eris.Wrapf(err, "company: parse %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("company: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", eris.Errorf("company: no host in %q", raw)
	}
	return u.String(), nil
}
