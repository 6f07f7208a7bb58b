package quality

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/coldreach/coldreach/internal/company"
	"github.com/coldreach/coldreach/internal/model"
)

// Signal names, in feedback priority order for ties.
const (
	SignalKeywords = "company_keywords"
	SignalProfile  = "profile_terms"
	SignalContact  = "contact_reference"
	SignalGeneric  = "generic_phrases"
	SignalLength   = "length"
)

const (
	minWords = 50
	maxWords = 120
)

var genericPhrases = []string{
	"i hope this email finds you well",
	"i hope this finds you well",
	"i came across your company",
	"i am reaching out",
	"i'm reaching out",
	"touch base",
	"synergy",
	"leverage",
	"cutting-edge",
	"cutting edge",
	"game-changer",
	"world-class",
	"innovative solutions",
	"passionate about",
	"exciting opportunity",
	"to whom it may concern",
}

// ScoreContext is what a draft is judged against.
type ScoreContext struct {
	Company        *model.CompanySummary
	ProfileSummary string
	Contact        *model.Contact
}

// Signals are normalized [0,1] features of a draft; higher is better.
type Signals struct {
	Keywords float64
	Profile  float64
	Contact  float64
	Generic  float64
	Length   float64

	WordCount      int
	MissingTerms   []string
	GenericMatches []string
}

// Analyze extracts personalization signals from a draft.
func Analyze(text string, sc ScoreContext) Signals {
	fold := cases.Fold()
	lower := fold.String(text)
	words := tokenize(lower)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	var s Signals
	s.WordCount = len(words)

	s.Keywords, s.MissingTerms = coverage(foldAll(fold, companyTerms(sc.Company)), wordSet, 3)
	s.Profile, _ = coverage(foldAll(fold, company.Keywords(8, sc.ProfileSummary)), wordSet, 2)

	s.Contact = contactReference(lower, wordSet, sc.Contact, fold)

	for _, p := range genericPhrases {
		if strings.Contains(lower, p) {
			s.GenericMatches = append(s.GenericMatches, p)
		}
	}
	s.Generic = max(0, 1-0.34*float64(len(s.GenericMatches)))

	s.Length = lengthFit(s.WordCount)
	return s
}

// Weakest returns the lowest signal; earlier signals win ties.
func (s Signals) Weakest() (name string, value float64) {
	ordered := []struct {
		name string
		v    float64
	}{
		{SignalKeywords, s.Keywords},
		{SignalProfile, s.Profile},
		{SignalContact, s.Contact},
		{SignalGeneric, s.Generic},
		{SignalLength, s.Length},
	}
	name, value = ordered[0].name, ordered[0].v
	for _, o := range ordered[1:] {
		if o.v < value {
			name, value = o.name, o.v
		}
	}
	return name, value
}

func companyTerms(c *model.CompanySummary) []string {
	if c == nil {
		return nil
	}
	if len(c.Keywords) > 0 {
		kw := c.Keywords
		if len(kw) > 10 {
			kw = kw[:10]
		}
		return kw
	}
	return company.Keywords(10, c.Title, c.Summary)
}

// coverage is the share of terms found, saturating at want hits.
func coverage(terms []string, words map[string]bool, want int) (float64, []string) {
	if len(terms) == 0 {
		return 1, nil
	}
	want = min(want, len(terms))
	var hits int
	var missing []string
	for _, t := range terms {
		if words[t] {
			hits++
		} else {
			missing = append(missing, t)
		}
	}
	return min(1, float64(hits)/float64(want)), missing
}

func contactReference(lower string, words map[string]bool, c *model.Contact, fold cases.Caser) float64 {
	if c == nil || (c.Name == "" && c.Title == "") {
		return 1
	}
	var score float64
	if first := firstName(c.Name); first != "" && words[fold.String(first)] {
		score += 0.6
	}
	if c.Title != "" && strings.Contains(lower, fold.String(c.Title)) {
		score += 0.4
	}
	return score
}

func foldAll(fold cases.Caser, in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fold.String(s)
	}
	return out
}

func firstName(name string) string {
	f := strings.Fields(name)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// lengthFit is 1 inside the target band and decays linearly outside it.
func lengthFit(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n < minWords:
		return float64(n) / minWords
	case n > maxWords:
		return max(0, 1-float64(n-maxWords)/maxWords)
	default:
		return 1
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}
