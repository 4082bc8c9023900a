package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"course-kb/internal/domain"
)

// Keep header order EXACT; downstream imports map columns by position.
var catalogHeader = []string{
	"COURSE_CODE",
	"COURSE_NAME",
	"CREDITS",
	"DURATION_HOURS",
	"DIFFICULTY",
	"DOMAIN",
	"LEVEL",
	"PREREQUISITES",
	"DESCRIPTION",
}

// WriteCatalogCSV writes entries as CSV with a header row.
func WriteCatalogCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(catalogHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(toCatalogRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func toCatalogRow(e Entry) []string {
	c := e.Course

	// avoid commas to keep the column splittable
	prereqs := strings.Join(e.Prerequisites, " | ")

	return []string{
		c.Code,                   // COURSE_CODE
		cleanText(c.Name),        // COURSE_NAME
		positive(c.Credits),      // CREDITS
		positive(c.Duration),     // DURATION_HOURS
		positive(c.Difficulty),   // DIFFICULTY
		c.Domain,                 // DOMAIN
		levelName(c.Level),       // LEVEL
		prereqs,                  // PREREQUISITES
		cleanText(c.Description), // DESCRIPTION
	}
}

// positive renders unset (zero) values as an empty cell.
func positive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func levelName(l domain.Level) string {
	if l == domain.LevelUnknown {
		return ""
	}
	return l.String()
}
