package export

import (
	"encoding/xml"
	"fmt"
	"io"
)

/*
<Course_Catalog>
  <Course code="IA-401">
    <name>Apprentissage profond</name>
    <credits>6</credits>
    <duration_hours>60</duration_hours>
    <difficulty>5</difficulty>
    <domain>IntelligenceArtificielle</domain>
    <level>Advanced</level>
    <prerequisites>
      <code>IA-301</code>
      <code>MATH-201</code>
    </prerequisites>
  </Course>
</Course_Catalog>
*/

type xmlCatalog struct {
	XMLName xml.Name    `xml:"Course_Catalog"`
	Courses []xmlCourse `xml:"Course"`
}

type xmlCourse struct {
	Code string `xml:"code,attr"`

	Name        string `xml:"name"`
	Credits     string `xml:"credits,omitempty"`
	Duration    string `xml:"duration_hours,omitempty"`
	Difficulty  string `xml:"difficulty,omitempty"`
	Domain      string `xml:"domain,omitempty"`
	Level       string `xml:"level,omitempty"`
	Description string `xml:"description,omitempty"`

	Prerequisites *xmlPrereqList `xml:"prerequisites,omitempty"`
}

type xmlPrereqList struct {
	Codes []string `xml:"code"`
}

// WriteCatalogXML writes entries as a single indented XML document.
func WriteCatalogXML(w io.Writer, entries []Entry) error {
	out := xmlCatalog{Courses: make([]xmlCourse, 0, len(entries))}

	for _, e := range entries {
		c := e.Course
		row := xmlCourse{
			Code:        c.Code,
			Name:        cleanText(c.Name),
			Credits:     positive(c.Credits),
			Duration:    positive(c.Duration),
			Difficulty:  positive(c.Difficulty),
			Domain:      c.Domain,
			Level:       levelName(c.Level),
			Description: cleanText(c.Description),
		}
		if len(e.Prerequisites) > 0 {
			row.Prerequisites = &xmlPrereqList{Codes: e.Prerequisites}
		}
		out.Courses = append(out.Courses, row)
	}

	b, err := xml.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal xml: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}
