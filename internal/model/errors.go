package model

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
)

// Outreach error taxonomy. Adapters tag their failures with one of these via
// Classify so the pipeline can tell input, infrastructure and quality
// failures apart.
var (
	ErrSourceUnavailable  = eris.New("source unavailable")
	ErrFetch              = eris.New("company fetch failed")
	ErrNoMatch            = eris.New("contact provider returned no match")
	ErrNoContactAvailable = eris.New("no contact available")
	ErrGeneration         = eris.New("draft generation failed")
	ErrScoring            = eris.New("draft scoring failed")
	ErrQualityRejected    = eris.New("quality rejected")
	ErrDelivery           = eris.New("delivery failed")
	ErrProfileBuild       = eris.New("profile build failed")
	ErrCancelled          = eris.New("session cancelled")
	ErrSessionTerminal    = eris.New("session already terminal")
)

// kindError attaches a taxonomy sentinel to an underlying cause.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// Classify tags err with kind. errors.Is matches both the kind and anything
// in err's own chain.
func Classify(kind, err error) error {
	if err != nil && errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

var kindOrder = []struct {
	err  error
	name string
}{
	{ErrCancelled, "cancelled"},
	{ErrSourceUnavailable, "source_unavailable"},
	{ErrFetch, "fetch_error"},
	{ErrNoMatch, "no_match"},
	{ErrNoContactAvailable, "no_contact_available"},
	{ErrGeneration, "generation_error"},
	{ErrScoring, "scoring_error"},
	{ErrQualityRejected, "quality_rejected"},
	{ErrDelivery, "delivery_error"},
	{ErrProfileBuild, "profile_build_error"},
}

// ErrorKind maps an error chain to a stable label for logs and analytics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "internal"
}
