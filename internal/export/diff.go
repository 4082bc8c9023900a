package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"course-kb/internal/domain"
)

// Changes lists course codes that differ between two catalogs, each
// sorted ascending.
type Changes struct {
	Added   []string `json:"added"`
	Changed []string `json:"changed"`
	Removed []string `json:"removed"`
}

// Empty reports whether the catalogs are equivalent.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0
}

// Diff compares the current catalog with a previous snapshot.
//   - added: in current but not in previous
//   - changed: in both with a different field or prerequisite set
//   - removed: in previous but not in current
func Diff(current, previous []Entry) Changes {
	prevByCode := make(map[string]Entry, len(previous))
	for _, e := range previous {
		code := normCode(e.Course.Code)
		if code == "" {
			continue
		}
		prevByCode[code] = e
	}

	ch := Changes{Added: []string{}, Changed: []string{}, Removed: []string{}}
	seen := make(map[string]bool, len(current))
	for _, e := range current {
		code := normCode(e.Course.Code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true

		prev, ok := prevByCode[code]
		if !ok {
			ch.Added = append(ch.Added, code)
			continue
		}
		if entryChanged(e, prev) {
			ch.Changed = append(ch.Changed, code)
		}
	}
	for code := range prevByCode {
		if !seen[code] {
			ch.Removed = append(ch.Removed, code)
		}
	}

	slices.Sort(ch.Added)
	slices.Sort(ch.Changed)
	slices.Sort(ch.Removed)
	return ch
}

func entryChanged(cur, prev Entry) bool {
	a, b := cur.Course, prev.Course
	if norm(a.Name) != norm(b.Name) || norm(a.Description) != norm(b.Description) {
		return true
	}
	if a.Domain != b.Domain || a.Level != b.Level {
		return true
	}
	if positive(a.Credits) != positive(b.Credits) ||
		positive(a.Duration) != positive(b.Duration) ||
		positive(a.Difficulty) != positive(b.Difficulty) {
		return true
	}
	return !slices.Equal(sortedCodes(cur.Prerequisites), sortedCodes(prev.Prerequisites))
}

// ReadCatalogCSV parses a catalog written by WriteCatalogCSV. Columns are
// located by header name, so a snapshot with reordered columns still reads.
func ReadCatalogCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("export: empty catalog")
	}
	if err != nil {
		return nil, fmt.Errorf("export: read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := idx["COURSE_CODE"]; !ok {
		return nil, errors.New("export: catalog has no COURSE_CODE column")
	}

	var entries []Entry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		e := Entry{Course: domain.Course{
			Code:        field("COURSE_CODE"),
			Name:        field("COURSE_NAME"),
			Credits:     atoi(field("CREDITS")),
			Duration:    atoi(field("DURATION_HOURS")),
			Difficulty:  atoi(field("DIFFICULTY")),
			Domain:      field("DOMAIN"),
			Description: field("DESCRIPTION"),
		}}
		if lv := field("LEVEL"); lv != "" {
			l, err := domain.ParseLevel(lv)
			if err != nil {
				return nil, fmt.Errorf("export: line %d: %w", line, err)
			}
			e.Course.Level = l
		}
		for _, p := range strings.Split(field("PREREQUISITES"), "|") {
			if p = strings.TrimSpace(p); p != "" {
				e.Prerequisites = append(e.Prerequisites, p)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func norm(s string) string {
	return strings.ToLower(cleanText(s))
}

func normCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func sortedCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = normCode(c); c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}
