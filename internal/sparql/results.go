// Package sparql decodes the SPARQL 1.1 Query Results JSON format
// (application/sparql-results+json) returned by Fuseki.
package sparql

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ContentType is the Accept value sent with SELECT/ASK queries.
const ContentType = "application/sparql-results+json"

// Term types as they appear in the "type" field of a binding.
const (
	TypeURI     = "uri"
	TypeLiteral = "literal"
	TypeBNode   = "bnode"
	// Some older stores still emit this instead of literal+datatype.
	TypeTypedLiteral = "typed-literal"
)

// Term is one bound value.
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// IsIRI reports whether the term is an IRI.
func (t Term) IsIRI() bool { return t.Type == TypeURI }

// LocalName returns the fragment or last path segment of an IRI term, and
// the raw value for any other term.
func (t Term) LocalName() string {
	if !t.IsIRI() {
		return t.Value
	}
	v := t.Value
	if i := strings.LastIndexAny(v, "#/"); i >= 0 && i < len(v)-1 {
		return v[i+1:]
	}
	return v
}

// Row maps a projected variable to its binding. Unbound variables (e.g. from
// OPTIONAL) are absent from the map.
type Row map[string]Term

// Get returns the binding for name and whether it was bound.
func (r Row) Get(name string) (Term, bool) {
	t, ok := r[name]
	return t, ok
}

// Results is a decoded result document: the tabular form of a SELECT, or
// the boolean of an ASK.
type Results struct {
	Vars    []string
	Rows    []Row
	Boolean *bool
}

// Len returns the number of rows.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

type document struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]Term `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

// ErrMalformed is returned for bodies that are not a results document.
var ErrMalformed = errors.New("sparql: malformed results document")

// Parse decodes a results document.
func Parse(data []byte) (*Results, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Results == nil && doc.Boolean == nil {
		return nil, fmt.Errorf("%w: neither results nor boolean present", ErrMalformed)
	}

	out := &Results{
		Vars:    doc.Head.Vars,
		Boolean: doc.Boolean,
	}
	if doc.Results != nil {
		out.Rows = make([]Row, 0, len(doc.Results.Bindings))
		for _, b := range doc.Results.Bindings {
			out.Rows = append(out.Rows, Row(b))
		}
	}
	return out, nil
}
