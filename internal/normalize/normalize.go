// Package normalize turns SPARQL result rows into typed domain records.
//
// Every cell is coerced to the semantic type its column declares. A row
// that lacks a required column, or whose value does not coerce, is dropped
// and reported as a Diagnostic; the remaining rows are still returned.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"course-kb/internal/domain"
	"course-kb/internal/sparql"
)

// SemanticType is the type a result column is coerced to.
type SemanticType int

const (
	String SemanticType = iota + 1
	Integer
	// Identifier takes the local name of an IRI (or a literal as is).
	Identifier
	Level
	// IdentifierList is a space separated list of identifiers, as produced
	// by GROUP_CONCAT.
	IdentifierList
)

func (t SemanticType) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Identifier:
		return "identifier"
	case Level:
		return "level"
	case IdentifierList:
		return "identifier_list"
	default:
		return "unknown"
	}
}

// Column declares one projected variable of a query.
type Column struct {
	Name     string
	Type     SemanticType
	Required bool
}

type Reason string

const (
	ReasonMissing    Reason = "missing_column"
	ReasonCoercion   Reason = "coercion_failed"
	ReasonRange      Reason = "out_of_range"
	ReasonIncomplete Reason = "incomplete_record"
	ReasonDuplicate  Reason = "duplicate_key"
)

// Diagnostic describes one dropped row. Row is the index in the raw result.
type Diagnostic struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("row %d: %s", d.Row, d.Reason)
	if d.Column != "" {
		s += " (" + d.Column + ")"
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}

// Normalize coerces res against shape and materializes records of kind.
// The returned records are ordered deterministically (by code or id) and
// unique by key. The record slice is never nil.
func Normalize(kind domain.Kind, res *sparql.Results, shape []Column) ([]domain.Record, []Diagnostic) {
	records := []domain.Record{}
	if res == nil {
		return records, nil
	}

	build, ok := builders[kind]
	if !ok {
		return records, []Diagnostic{{Row: -1, Reason: ReasonCoercion, Detail: fmt.Sprintf("no builder for kind %q", kind)}}
	}

	var diags []Diagnostic
	seen := make(map[string]bool, len(res.Rows))

	for i, row := range res.Rows {
		vals, diag := coerceRow(kind, row, shape)
		if diag != nil {
			diag.Row = i
			diags = append(diags, *diag)
			continue
		}

		rec, diag := build(vals)
		if diag != nil {
			diag.Row = i
			diags = append(diags, *diag)
			continue
		}

		key := rec.Key()
		if seen[key] {
			diags = append(diags, Diagnostic{Row: i, Reason: ReasonDuplicate, Detail: fmt.Sprintf("%s %q already in result", kind, key)})
			continue
		}
		seen[key] = true
		records = append(records, rec)
	}

	sort.SliceStable(records, func(a, b int) bool {
		return sortKey(records[a]) < sortKey(records[b])
	})
	return records, diags
}

// sortKey orders course-like records by code and the rest by key.
func sortKey(r domain.Record) string {
	switch v := r.(type) {
	case domain.Prerequisite:
		return v.Of + "\x00" + v.Code
	case domain.StudentSkill:
		return v.SkillID + "\x00" + v.Source
	default:
		return r.Key()
	}
}

// values holds the coerced cells of one row.
type values map[string]any

func (v values) str(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v values) int(name string) (int, bool) {
	n, ok := v[name].(int)
	return n, ok
}

func (v values) level(name string) domain.Level {
	l, _ := v[name].(domain.Level)
	return l
}

func (v values) list(name string) []string {
	l, _ := v[name].([]string)
	return l
}

// Course rows without a domain or a level are incomplete records rather
// than merely missing a column.
var incompleteColumns = map[domain.Kind]map[string]bool{
	domain.KindCourse: {"domain": true, "level": true},
}

func coerceRow(kind domain.Kind, row sparql.Row, shape []Column) (values, *Diagnostic) {
	vals := make(values, len(shape))
	for _, col := range shape {
		term, ok := row.Get(col.Name)
		if !ok || strings.TrimSpace(term.Value) == "" {
			if !col.Required {
				continue
			}
			reason := ReasonMissing
			if incompleteColumns[kind][col.Name] {
				reason = ReasonIncomplete
			}
			return nil, &Diagnostic{Column: col.Name, Reason: reason, Detail: "no value bound"}
		}

		v, err := coerce(term, col.Type)
		if err != nil {
			return nil, &Diagnostic{Column: col.Name, Reason: ReasonCoercion, Detail: err.Error()}
		}
		vals[col.Name] = v
	}
	return vals, nil
}

func coerce(term sparql.Term, typ SemanticType) (any, error) {
	raw := strings.TrimSpace(term.Value)
	switch typ {
	case String:
		return raw, nil
	case Integer:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case Identifier:
		id := strings.TrimSpace(term.LocalName())
		if id == "" {
			return nil, fmt.Errorf("%q has no local name", raw)
		}
		return id, nil
	case Level:
		l, err := domain.ParseLevel(term.LocalName())
		if err != nil {
			return nil, err
		}
		return l, nil
	case IdentifierList:
		fields := strings.Fields(raw)
		out := make([]string, 0, len(fields))
		for _, f := range fields {
			out = append(out, sparql.Term{Type: sparql.TypeURI, Value: f}.LocalName())
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported column type %v", typ)
	}
}

type builder func(values) (domain.Record, *Diagnostic)

var builders = map[domain.Kind]builder{
	domain.KindCourse:       buildCourse,
	domain.KindPrerequisite: buildPrerequisite,
	domain.KindSkill:        buildSkill,
	domain.KindDomain:       buildDomain,
	domain.KindStudent:      buildStudent,
	domain.KindStudentSkill: buildStudentSkill,
}

func buildCourse(v values) (domain.Record, *Diagnostic) {
	c := domain.Course{
		Code:        v.str("code"),
		Name:        v.str("name"),
		Description: v.str("description"),
		Domain:      v.str("domain"),
		Level:       v.level("level"),
	}

	checks := []struct {
		col      string
		dst      *int
		min, max int
	}{
		{"credits", &c.Credits, 1, 0},
		{"duration", &c.Duration, 1, 0},
		{"difficulty", &c.Difficulty, 1, 5},
	}
	for _, chk := range checks {
		n, ok := v.int(chk.col)
		if !ok {
			continue
		}
		if n < chk.min || (chk.max > 0 && n > chk.max) {
			return nil, &Diagnostic{Column: chk.col, Reason: ReasonRange, Detail: fmt.Sprintf("%d outside allowed range", n)}
		}
		*chk.dst = n
	}
	return c, nil
}

func buildPrerequisite(v values) (domain.Record, *Diagnostic) {
	return domain.Prerequisite{
		Of:    v.str("of"),
		Code:  v.str("code"),
		Name:  v.str("name"),
		Level: v.level("level"),
	}, nil
}

func buildSkill(v values) (domain.Record, *Diagnostic) {
	return domain.Skill{ID: v.str("id"), Name: v.str("name")}, nil
}

func buildDomain(v values) (domain.Record, *Diagnostic) {
	return domain.Domain{ID: v.str("id"), Name: v.str("name")}, nil
}

func buildStudent(v values) (domain.Record, *Diagnostic) {
	return domain.Student{
		Name:      v.str("name"),
		Email:     v.str("email"),
		Skills:    v.list("skills"),
		Interests: v.list("interests"),
		Taken:     v.list("taken"),
	}, nil
}

func buildStudentSkill(v values) (domain.Record, *Diagnostic) {
	return domain.StudentSkill{
		SkillID:   v.str("id"),
		SkillName: v.str("name"),
		Source:    v.str("source"),
	}, nil
}
