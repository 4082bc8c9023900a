package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"course-kb/internal/config"
	"course-kb/internal/domain"
	"course-kb/internal/fuseki"
	"course-kb/internal/sparql"
)

type fixtureCourse struct {
	code, name                    string
	credits, duration, difficulty int
	domain, level                 string
}

// Fifteen courses, in no particular order.
var fixtureCourses = []fixtureCourse{
	{"IA-401", "Apprentissage profond", 6, 60, 5, "IntelligenceArtificielle", "Avance"},
	{"PROG-110", "Introduction à la programmation", 4, 40, 1, "Informatique", "Debutant"},
	{"WEB-301", "Frameworks web", 5, 45, 3, "DeveloppementWeb", "Avance"},
	{"MATH-201", "Algèbre linéaire", 5, 45, 3, "Mathematiques", "Intermediaire"},
	{"BDD-201", "Bases de données relationnelles", 5, 45, 2, "BaseDeDonnees", "Intermediaire"},
	{"IA-301", "Apprentissage automatique", 6, 60, 4, "IntelligenceArtificielle", "Avance"},
	{"PROG-210", "Programmation orientée objet", 5, 45, 2, "Informatique", "Intermediaire"},
	{"WEB-101", "HTML et CSS", 3, 30, 1, "DeveloppementWeb", "Debutant"},
	{"MATH-101", "Analyse", 4, 40, 2, "Mathematiques", "Debutant"},
	{"ALGO-220", "Algorithmique", 5, 45, 3, "Informatique", "Intermediaire"},
	{"IA-201", "Introduction à l'IA", 4, 40, 2, "IntelligenceArtificielle", "Intermediaire"},
	{"BDD-301", "Bases NoSQL", 4, 40, 3, "BaseDeDonnees", "Avance"},
	{"WEB-201", "JavaScript", 4, 40, 2, "DeveloppementWeb", "Intermediaire"},
	{"MATH-301", "Probabilités et statistiques", 5, 45, 3, "Mathematiques", "Avance"},
	{"IA-402", "Traitement du langage naturel", 6, 60, 5, "IntelligenceArtificielle", "Avance"},
}

// Direct prerequisites, deliberately not in code order.
var fixturePrereqs = map[string][]string{
	"IA-401":  {"MATH-201", "PROG-110", "IA-301"},
	"IA-301":  {"IA-201", "MATH-201"},
	"WEB-301": {"WEB-201"},
}

// Courses each fixture student took, by email.
var fixtureTaken = map[string][]string{
	"alice@univ.fr": {"MATH-201", "PROG-110"},
}

var (
	valuesOf     = regexp.MustCompile(`VALUES \?of \{ "([^"]+)" \}`)
	valuesCode   = regexp.MustCompile(`VALUES \?code \{ "([^"]+)" \}`)
	valuesTarget = regexp.MustCompile(`VALUES \?target \{ "([^"]+)" \}`)
	emailFilter  = regexp.MustCompile(`LCASE\("([^"]+)"\)`)
)

// closure returns every course code reachable from code through
// prerequisite edges, code excluded, in no particular order.
func closure(code string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(c string) {
		for _, p := range fixturePrereqs[c] {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	walk(code)
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	return out
}

func prereqBinding(of, code string) map[string]sparql.Term {
	p, _ := findCourse(code)
	return map[string]sparql.Term{
		"of":    lit(of),
		"code":  lit(p.code),
		"name":  lit(p.name),
		"level": iri(p.level),
	}
}

func lit(v string) sparql.Term { return sparql.Term{Type: sparql.TypeLiteral, Value: v} }

func intLit(n int) sparql.Term {
	return sparql.Term{Type: sparql.TypeLiteral, Value: strconv.Itoa(n), Datatype: "http://www.w3.org/2001/XMLSchema#integer"}
}

func iri(local string) sparql.Term {
	return sparql.Term{Type: sparql.TypeURI, Value: domain.Namespace + local}
}

func courseBinding(c fixtureCourse) map[string]sparql.Term {
	return map[string]sparql.Term{
		"code":       lit(c.code),
		"name":       lit(c.name),
		"credits":    intLit(c.credits),
		"duration":   intLit(c.duration),
		"difficulty": intLit(c.difficulty),
		"domain":     iri(c.domain),
		"level":      iri(c.level),
	}
}

func findCourse(code string) (fixtureCourse, bool) {
	for _, c := range fixtureCourses {
		if c.code == code {
			return c, true
		}
	}
	return fixtureCourse{}, false
}

// fixtureStore answers the queries the facade sends with canned bindings,
// the way a Fuseki dataset loaded with fixtureCourses would.
type fixtureStore struct {
	calls atomic.Int32
	mu    sync.Mutex
	last  string
}

func (f *fixtureStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.PostForm.Get("query")
	f.mu.Lock()
	f.last = q
	f.mu.Unlock()

	var vars []string
	var bindings []map[string]sparql.Term

	var email string
	if m := emailFilter.FindStringSubmatch(q); m != nil {
		email = strings.ToLower(m[1])
	}
	taken, enrolled := fixtureTaken[email]

	switch {
	case strings.Contains(q, "GROUP_CONCAT"):
		vars = []string{"email", "name", "skills", "interests", "taken"}
		if enrolled {
			bindings = append(bindings, map[string]sparql.Term{
				"email": lit(email),
				"taken": lit(strings.Join(taken, " ")),
			})
		}
	case valuesTarget.MatchString(q):
		vars = []string{"of", "code", "name", "level"}
		target := valuesTarget.FindStringSubmatch(q)[1]
		for _, of := range append(closure(target), target) {
			for _, code := range fixturePrereqs[of] {
				bindings = append(bindings, prereqBinding(of, code))
			}
		}
	case email != "" && valuesOf.MatchString(q):
		vars = []string{"of", "code", "name", "level"}
		if enrolled {
			of := valuesOf.FindStringSubmatch(q)[1]
			for _, code := range closure(of) {
				if !slices.Contains(taken, code) {
					bindings = append(bindings, prereqBinding(of, code))
				}
			}
		}
	case strings.Contains(q, "course:aPrerequis"):
		vars = []string{"of", "code", "name", "level"}
		if m := valuesOf.FindStringSubmatch(q); m != nil {
			for _, code := range fixturePrereqs[m[1]] {
				bindings = append(bindings, prereqBinding(m[1], code))
			}
		}
	case strings.Contains(q, "VALUES ?code"):
		vars = []string{"code", "name", "credits", "duration", "difficulty", "description", "domain", "level"}
		if m := valuesCode.FindStringSubmatch(q); m != nil {
			if c, ok := findCourse(m[1]); ok {
				bindings = append(bindings, courseBinding(c))
			}
		}
	default:
		vars = []string{"code", "name", "credits", "duration", "difficulty", "description", "domain", "level"}
		for _, c := range fixtureCourses {
			bindings = append(bindings, courseBinding(c))
		}
	}

	doc := map[string]any{
		"head":    map[string]any{"vars": vars},
		"results": map[string]any{"bindings": bindings},
	}
	if bindings == nil {
		doc["results"] = map[string]any{"bindings": []any{}}
	}
	w.Header().Set("Content-Type", sparql.ContentType)
	_ = json.NewEncoder(w).Encode(doc)
}

func (f *fixtureStore) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// newFixtureKB wires a KnowledgeBase to a real fuseki.Client talking to
// an in-process fixture store.
func newFixtureKB(t *testing.T, opts ...Option) (*KnowledgeBase, *fixtureStore) {
	t.Helper()
	store := &fixtureStore{}
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	client, err := fuseki.New(config.Fuseki{
		BaseURL: srv.URL,
		Dataset: "university",
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return New(client, opts...), store
}

// stubExecutor returns a fixed result and records the queries it saw.
type stubExecutor struct {
	res     *sparql.Results
	err     error
	pingErr error

	mu      sync.Mutex
	queries []string
	pings   int
}

func (s *stubExecutor) Select(_ context.Context, q string) (*sparql.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return s.res, s.err
}

type pingingExecutor struct {
	*stubExecutor
}

func (p pingingExecutor) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	return p.pingErr
}
