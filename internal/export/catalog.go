// Package export writes the course catalog read from the knowledge base to
// flat files for downstream systems.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"course-kb/internal/concurrency"
	"course-kb/internal/domain"
	"course-kb/internal/kberr"
	"course-kb/internal/normalize"
)

// Entry is one catalog line: a course and the codes of its direct
// prerequisites, sorted.
type Entry struct {
	Course        domain.Course
	Prerequisites []string
}

// PrerequisiteSource is satisfied by *kb.KnowledgeBase.
type PrerequisiteSource interface {
	GetPrerequisites(ctx context.Context, code string) ([]domain.Prerequisite, []normalize.Diagnostic, error)
}

type lookup struct {
	codes   []string
	dropped int
}

// BuildCatalog looks up the prerequisites of every course on a bounded
// worker pool. Entries keep the order of courses. A course whose lookup
// failed is still listed, without prerequisites, and its error is returned.
// A lookup that dropped rows keeps the prerequisites that survived and
// reports a *kberr.PartialResultWarning; see IsPartial.
func BuildCatalog(ctx context.Context, src PrerequisiteSource, courses []domain.Course, opts concurrency.ParallelOptions) ([]Entry, []error) {
	found, errs := concurrency.ProcessParallel(ctx, courses, opts, func(ctx context.Context, _ int, c domain.Course) (lookup, error) {
		ps, diags, err := src.GetPrerequisites(ctx, c.Code)
		if err != nil {
			return lookup{}, fmt.Errorf("export: prerequisites of %s: %w", c.Code, err)
		}
		codes := make([]string, 0, len(ps))
		for _, p := range ps {
			codes = append(codes, p.Code)
		}
		return lookup{codes: codes, dropped: len(diags)}, nil
	})

	entries := make([]Entry, len(courses))
	for i, c := range courses {
		entries[i] = Entry{Course: c, Prerequisites: found[i].codes}
		if n := found[i].dropped; n > 0 {
			w := &kberr.PartialResultWarning{Intent: "prereqs", Dropped: n, Kept: len(found[i].codes)}
			errs = append(errs, fmt.Errorf("export: prerequisites of %s: %w", c.Code, w))
		}
	}
	return entries, errs
}

// IsPartial reports whether err only flags prerequisites dropped during
// normalization, as opposed to a failed lookup.
func IsPartial(err error) bool {
	var w *kberr.PartialResultWarning
	return errors.As(err, &w)
}

// Format selects the file layout.
type Format string

const (
	FormatCSV Format = "csv"
	FormatXML Format = "xml"
)

// ParseFormat accepts "csv" or "xml"; an empty string means the format
// implied by the file extension of path, defaulting to CSV.
func ParseFormat(s, path string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if s != string(FormatXML) {
			s = string(FormatCSV)
		}
	}
	switch Format(s) {
	case FormatCSV, FormatXML:
		return Format(s), nil
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// WriteFile writes entries to outPath in the given format. The file is
// written to a temporary name in the same directory and renamed, so a
// reader never sees a partial catalog.
func WriteFile(outPath string, format Format, entries []Entry) error {
	dir := filepath.Dir(outPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*")
	if err != nil {
		return fmt.Errorf("export: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	switch format {
	case FormatXML:
		err = WriteCatalogXML(tmp, entries)
	default:
		err = WriteCatalogCSV(tmp, entries)
	}
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("export: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return fmt.Errorf("export: rename: %w", err)
	}
	return nil
}

// cleanText flattens line breaks so every field stays on one line.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
