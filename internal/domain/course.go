package domain

import (
	"regexp"
	"strings"
)

// Namespace of the course ontology.
const Namespace = "http://www.university.edu/ontology/courses#"

// CourseCodePattern is the shape of a course code, e.g. "IA-401".
var CourseCodePattern = regexp.MustCompile(`^[A-Z]{2,5}-[0-9]{3}$`)

// Kind names the record type a query materializes.
type Kind string

const (
	KindCourse       Kind = "course"
	KindPrerequisite Kind = "prerequisite"
	KindSkill        Kind = "skill"
	KindDomain       Kind = "domain"
	KindStudent      Kind = "student"
	KindStudentSkill Kind = "student_skill"
)

// Record is one validated result row. The set of implementations is closed:
// Course, Prerequisite, Skill, Domain, Student and StudentSkill.
type Record interface {
	Kind() Kind
	// Key identifies the record within a result set.
	Key() string
	isRecord()
}

// Course is a course as stored in the knowledge base. Domain and Level are
// always set on records produced by the normalizer.
type Course struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Credits     int    `json:"credits,omitempty"`
	Duration    int    `json:"duration_hours,omitempty"`
	Difficulty  int    `json:"difficulty,omitempty"`
	Description string `json:"description,omitempty"`
	Domain      string `json:"domain"`
	Level       Level  `json:"level"`
}

func (Course) Kind() Kind { return KindCourse }
func (c Course) Key() string { return c.Code }
func (Course) isRecord() {}

// Prerequisite is the edge Of -> Code: course Of requires course Code.
type Prerequisite struct {
	Of    string `json:"of"`
	Code  string `json:"code"`
	Name  string `json:"name,omitempty"`
	Level Level  `json:"level,omitempty"`
}

func (Prerequisite) Kind() Kind { return KindPrerequisite }
func (p Prerequisite) Key() string { return p.Of + ">" + p.Code }
func (Prerequisite) isRecord() {}

type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (Skill) Kind() Kind { return KindSkill }
func (s Skill) Key() string { return s.ID }
func (Skill) isRecord() {}

type Domain struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (Domain) Kind() Kind { return KindDomain }
func (d Domain) Key() string { return d.ID }
func (Domain) isRecord() {}

// Student carries identifiers only; skills, interests (domain ids) and
// courses taken (codes) are sorted.
type Student struct {
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email"`
	Skills    []string `json:"skills,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Taken     []string `json:"taken,omitempty"`
}

func (Student) Kind() Kind { return KindStudent }
func (s Student) Key() string { return strings.ToLower(s.Email) }
func (Student) isRecord() {}

// StudentSkill is a skill a student holds. Source is "direct" for a
// possessed skill, or the code of the course the skill was acquired in.
type StudentSkill struct {
	SkillID   string `json:"skill_id"`
	SkillName string `json:"skill_name,omitempty"`
	Source    string `json:"source"`
}

// SourceDirect marks a skill the student possesses outright.
const SourceDirect = "direct"

func (StudentSkill) Kind() Kind { return KindStudentSkill }
func (s StudentSkill) Key() string { return s.SkillID + "@" + s.Source }
func (StudentSkill) isRecord() {}
