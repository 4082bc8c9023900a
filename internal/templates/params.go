package templates

import (
	"fmt"
	"regexp"
	"strings"

	"course-kb/internal/domain"
)

// ParamType is the allow-list a parameter value must match before it is
// substituted into a query.
type ParamType int

const (
	// CourseCode is rendered as a string literal, e.g. "IA-401".
	CourseCode ParamType = iota + 1
	// Identifier is an ontology local name, rendered as course:Name.
	Identifier
	// Email is rendered as a string literal.
	Email
	// Keyword is free text limited to letters, digits, space, '_' and '-'.
	Keyword
	// LevelName is one of the level scale, rendered as the level individual.
	LevelName
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)
	emailPattern      = regexp.MustCompile(`^[A-Za-z0-9._%+-]{1,64}@[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}$`)
	keywordPattern    = regexp.MustCompile(`^[\p{L}\p{N} _-]{1,64}$`)
)

func (p ParamType) String() string {
	switch p {
	case CourseCode:
		return "course_code"
	case Identifier:
		return "identifier"
	case Email:
		return "email"
	case Keyword:
		return "keyword"
	case LevelName:
		return "level"
	default:
		return "unknown"
	}
}

// Canonical validates raw and returns its canonical form. Course codes are
// trimmed and upper-cased; levels are mapped to their store names.
func (p ParamType) Canonical(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	switch p {
	case CourseCode:
		v = strings.ToUpper(v)
		if !domain.CourseCodePattern.MatchString(v) {
			return "", fmt.Errorf("%q is not a course code", raw)
		}
	case Identifier:
		if !identifierPattern.MatchString(v) {
			return "", fmt.Errorf("%q is not an identifier", raw)
		}
	case Email:
		if len(v) > 254 || !emailPattern.MatchString(v) {
			return "", fmt.Errorf("%q is not an email address", raw)
		}
	case Keyword:
		if !keywordPattern.MatchString(v) {
			return "", fmt.Errorf("%q is not a plain keyword", raw)
		}
	case LevelName:
		l, err := domain.ParseLevel(v)
		if err != nil {
			return "", err
		}
		v = l.StoreName()
	default:
		return "", fmt.Errorf("unsupported parameter type %d", int(p))
	}
	return v, nil
}

// render returns the SPARQL term for an already canonical value.
func (p ParamType) render(v string) string {
	switch p {
	case Identifier, LevelName:
		return "course:" + v
	default:
		return `"` + v + `"`
	}
}
