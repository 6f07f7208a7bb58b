package draft

import (
	"strings"
)

// DefaultSubject is used when the model response carries no subject line.
const DefaultSubject = "Quick question"

// ParseResponse splits a "Subject: ..." first line from the body.
// Surrounding code fences are dropped.
func ParseResponse(text string) (subject, body string) {
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`"))
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimLeft(line, "*# "))
		if trimmed == "" {
			continue
		}
		if len(trimmed) >= 8 && strings.EqualFold(trimmed[:8], "subject:") {
			subject = strings.TrimSpace(strings.Trim(trimmed[8:], "* "))
			body = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
		break
	}
	if body == "" && subject == "" {
		body = text
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return subject, body
}
