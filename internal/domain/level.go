package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is the fixed course level scale.
type Level int

const (
	LevelUnknown Level = iota
	Beginner
	Intermediate
	Advanced
)

var levelNames = map[Level]string{
	Beginner:     "Beginner",
	Intermediate: "Intermediate",
	Advanced:     "Advanced",
}

// Local names used by the ontology for each level individual.
var levelStoreNames = map[Level]string{
	Beginner:     "Debutant",
	Intermediate: "Intermediaire",
	Advanced:     "Avance",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "Unknown"
}

// StoreName returns the ontology local name, e.g. "Debutant".
func (l Level) StoreName() string {
	return levelStoreNames[l]
}

// ParseLevel accepts the English name, the ontology local name or its
// accented French spelling, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner", "debutant", "débutant":
		return Beginner, nil
	case "intermediate", "intermediaire", "intermédiaire":
		return Intermediate, nil
	case "advanced", "avance", "avancé":
		return Advanced, nil
	}
	return LevelUnknown, fmt.Errorf("unknown level %q", s)
}

func (l Level) MarshalJSON() ([]byte, error) {
	if l == LevelUnknown {
		return []byte(`""`), nil
	}
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*l = LevelUnknown
		return nil
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
