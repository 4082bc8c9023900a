// Package templates holds the parameterized SPARQL queries the knowledge
// base answers, one per intent.
//
// Parameters are never concatenated into query text as given: each value is
// checked against the allow-list of its ParamType and rendered as a literal
// or a prefixed name. Templates are immutable once a Library is built.
package templates

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"course-kb/internal/domain"
	"course-kb/internal/kberr"
	"course-kb/internal/normalize"
)

// Prefix is prepended to every built-in query.
const Prefix = "PREFIX course: <" + domain.Namespace + ">\n"

var placeholderPattern = regexp.MustCompile(`\{\{([a-z][a-z0-9_]*)\}\}`)

// Template is the query for one intent.
type Template struct {
	Intent string
	Kind   domain.Kind
	Query  string
	Params map[string]ParamType
	Shape  []normalize.Column
}

// Placeholders returns the distinct placeholder names used in Query, sorted.
func (t *Template) Placeholders() []string {
	names := make([]string, 0)
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.Query, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Required returns the parameter names the template needs, sorted. Every
// declared parameter is required.
func (t *Template) Required() []string {
	names := make([]string, 0, len(t.Params))
	for name := range t.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Canonicalize validates params and returns their canonical values. Missing
// parameters are reported before unknown or invalid ones.
func (t *Template) Canonicalize(params map[string]string) (map[string]string, error) {
	for _, name := range t.Required() {
		if v, ok := params[name]; !ok || strings.TrimSpace(v) == "" {
			return nil, kberr.New(kberr.ErrMissingParameter, "bind", "intent %s requires %q", t.Intent, name)
		}
	}

	extra := make([]string, 0)
	for name := range params {
		if _, ok := t.Params[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, kberr.New(kberr.ErrInvalidParameter, "bind", "intent %s does not accept %s", t.Intent, strings.Join(extra, ", "))
	}

	out := make(map[string]string, len(t.Params))
	for _, name := range t.Required() {
		v, err := t.Params[name].Canonical(params[name])
		if err != nil {
			return nil, &kberr.Error{Kind: kberr.ErrInvalidParameter, Op: "bind", Detail: name, Err: err}
		}
		out[name] = v
	}
	return out, nil
}

// Bind validates params and substitutes them into the query text.
func (t *Template) Bind(params map[string]string) (string, error) {
	canon, err := t.Canonicalize(params)
	if err != nil {
		return "", err
	}

	var missing string
	query := placeholderPattern.ReplaceAllStringFunc(t.Query, func(m string) string {
		name := m[2 : len(m)-2]
		v, ok := canon[name]
		if !ok {
			missing = name
			return m
		}
		return t.Params[name].render(v)
	})
	if missing != "" {
		// Only reachable for a template that failed Library.Validate.
		return "", kberr.New(kberr.ErrQuerySyntax, "bind", "intent %s has undeclared placeholder %q", t.Intent, missing)
	}
	return query, nil
}

// validate checks that placeholders and declared parameters agree and that
// the shape only names projected variables.
func (t *Template) validate() error {
	if t.Intent == "" {
		return fmt.Errorf("template without intent")
	}
	if len(t.Shape) == 0 {
		return fmt.Errorf("%s: empty result shape", t.Intent)
	}
	if !slices.Equal(t.Placeholders(), t.Required()) {
		return fmt.Errorf("%s: placeholders %v do not match parameters %v", t.Intent, t.Placeholders(), t.Required())
	}
	for name, typ := range t.Params {
		if typ.String() == "unknown" {
			return fmt.Errorf("%s: parameter %q has no type", t.Intent, name)
		}
	}
	for _, col := range t.Shape {
		if !strings.Contains(t.Query, "?"+col.Name) {
			return fmt.Errorf("%s: shape column %q is not projected", t.Intent, col.Name)
		}
	}
	return nil
}
