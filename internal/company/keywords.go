package company

import (
	"sort"
	"strings"
	"unicode"
)

// MaxKeywords bounds the keyword list of a summary.
const MaxKeywords = 20

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a about above after again all also am an and any are as at be
		because been before being below between both but by can could did do does doing down
		during each few for from further get got had has have having he her here hers him his how
		i if in into is it its itself just let me more most my no nor not now of off on once only
		or other our ours out over own same she should so some such than that the their theirs
		them then there these they this those through to too under until up us very was we were
		what when where which while who whom why will with would you your yours
		home page welcome learn read click menu contact login sign log search skip content main
		privacy policy terms cookie cookies copyright rights reserved more new`) {
		stopWords[w] = true
	}
}

// Keywords ranks content words across texts by frequency, dropping stop
// words, numbers and words shorter than three letters. Ties keep first-seen
// order. At most limit words are returned.
func Keywords(limit int, texts ...string) []string {
	if limit <= 0 {
		limit = MaxKeywords
	}

	counts := make(map[string]int)
	var order []string
	for _, t := range texts {
		for _, w := range tokenize(t) {
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) < 3 || stopWords[f] || isNumeric(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}
