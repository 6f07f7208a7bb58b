package contact

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Size categories derived from a company headcount.
const (
	SizeSmall   = "small_1_10"
	SizeMid     = "mid_11_50"
	SizeLarge   = "large_50_plus"
	SizeUnknown = "unknown"
)

// RolePriorities maps a size category to titles in descending priority.
type RolePriorities map[string][]string

// DefaultRolePriorities favours founders at tiny companies, engineering
// leadership at growth stage and recruiters at larger organizations.
func DefaultRolePriorities() RolePriorities {
	return RolePriorities{
		SizeSmall: {
			"Co-Founder", "Cofounder", "Founder", "CTO", "CEO",
			"Technical Co-Founder", "Founding Engineer", "Head of Engineering",
		},
		SizeMid: {
			"CTO", "VP Engineering", "Head of Engineering", "Engineering Director",
			"Director of Engineering", "Engineering Manager", "Tech Lead",
			"Lead Engineer", "Project Lead", "Founder",
		},
		SizeLarge: {
			"Technical Recruiter", "Talent Acquisition", "Senior Recruiter",
			"Recruiter", "Hiring Manager", "Engineering Manager",
			"Director of Engineering", "VP Engineering", "Head of Engineering",
		},
		SizeUnknown: {
			"CTO", "Founder", "Head of Engineering", "Engineering Manager",
			"Technical Recruiter",
		},
	}
}

// LoadRolePriorities reads a YAML file of size category to role list. Missing
// categories keep their defaults. An empty path returns the defaults.
//
//	mid_11_50:
//	  - CTO
//	  - Head of Recruiting
func LoadRolePriorities(path string) (RolePriorities, error) {
	rp := DefaultRolePriorities()
	if path == "" {
		return rp, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "contact: read roles file %s", path)
	}
	var override map[string][]string
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "contact: parse roles file %s", path)
	}
	for size, roles := range override {
		switch size {
		case SizeSmall, SizeMid, SizeLarge, SizeUnknown:
		default:
			return nil, eris.Errorf("contact: unknown size category %q in %s", size, path)
		}
		rp[size] = roles
	}
	return rp, nil
}

// Roles returns the priority list for a headcount string.
func (rp RolePriorities) Roles(headcount string) []string {
	if roles, ok := rp[SizeCategory(headcount)]; ok {
		return roles
	}
	return rp[SizeUnknown]
}

// normalizeHeadcount turns "12", "11-50" or "50+" into the upper bound of the
// range. ok is false when nothing numeric can be read.
func normalizeHeadcount(s string) (int, bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, false
	}
	if i := strings.LastIndex(v, "-"); i >= 0 {
		v = v[i+1:]
	}
	v = strings.TrimSuffix(strings.TrimSpace(v), "+")
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// SizeCategory buckets a headcount string.
func SizeCategory(headcount string) string {
	n, ok := normalizeHeadcount(headcount)
	switch {
	case !ok:
		return SizeUnknown
	case n <= 10:
		return SizeSmall
	case n <= 50:
		return SizeMid
	default:
		return SizeLarge
	}
}

// RoleScore rates title against roles: the earliest matching role wins and
// scores len(roles)-index. A role matches when its words appear as a
// contiguous run in the case-folded title, so "CTO" does not match
// "Director". An unmatched or empty title scores zero.
func RoleScore(title string, roles []string) int {
	if title == "" {
		return 0
	}
	fold := cases.Fold()
	t := words(fold.String(title))
	for i, role := range roles {
		if containsRun(t, words(fold.String(role))) {
			return len(roles) - i
		}
	}
	return 0
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}
