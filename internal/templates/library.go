package templates

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"course-kb/internal/kberr"
)

// Library maps intent names to templates. It is read-only after
// construction and safe for concurrent use.
type Library struct {
	templates map[string]*Template
	aliases   map[string]string
}

// NewLibrary builds a library and checks every template for consistency.
// aliases maps alternative intent names to canonical ones.
func NewLibrary(tpls []*Template, aliases map[string]string) (*Library, error) {
	lib := &Library{
		templates: make(map[string]*Template, len(tpls)),
		aliases:   make(map[string]string, len(aliases)),
	}
	for _, t := range tpls {
		if _, dup := lib.templates[t.Intent]; dup {
			return nil, fmt.Errorf("templates: intent %q registered twice", t.Intent)
		}
		lib.templates[t.Intent] = t
	}
	for alias, target := range aliases {
		if _, ok := lib.templates[target]; !ok {
			return nil, fmt.Errorf("templates: alias %q points at unknown intent %q", alias, target)
		}
		if _, clash := lib.templates[alias]; clash {
			return nil, fmt.Errorf("templates: alias %q shadows an intent", alias)
		}
		lib.aliases[alias] = target
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return lib, nil
}

var defaultLibrary = sync.OnceValue(func() *Library {
	lib, err := NewLibrary(builtin(), builtinAliases)
	if err != nil {
		panic(err)
	}
	return lib
})

// Default returns the built-in library.
func Default() *Library {
	return defaultLibrary()
}

// Resolve returns the template for intent. Names are matched after
// trimming and lower-casing; aliases resolve to their canonical intent.
func (l *Library) Resolve(intent string) (*Template, error) {
	name := strings.ToLower(strings.TrimSpace(intent))
	if target, ok := l.aliases[name]; ok {
		name = target
	}
	t, ok := l.templates[name]
	if !ok {
		return nil, kberr.New(kberr.ErrUnknownIntent, "resolve", "%q", intent)
	}
	return t, nil
}

// Intents returns the canonical intent names, sorted.
func (l *Library) Intents() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns the alternative names of intent, sorted.
func (l *Library) Aliases(intent string) []string {
	var out []string
	for alias, target := range l.aliases {
		if target == intent {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks every template: each placeholder in the query text is a
// declared parameter and each declared parameter is used.
func (l *Library) Validate() error {
	var errs []error
	for _, name := range l.Intents() {
		if err := l.templates[name].validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
