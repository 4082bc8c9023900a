package templates

import (
	"course-kb/internal/domain"
	"course-kb/internal/normalize"
)

var builtinAliases = map[string]string{
	"list_courses":   "courses",
	"course_by_code": "course",
	"prerequisites":  "prereqs",
	"learning_path":  "prereq_graph",
	"eligibility":    "missing_prereqs",
}

var courseShape = []normalize.Column{
	{Name: "code", Type: normalize.String, Required: true},
	{Name: "name", Type: normalize.String, Required: true},
	{Name: "credits", Type: normalize.Integer},
	{Name: "duration", Type: normalize.Integer},
	{Name: "difficulty", Type: normalize.Integer},
	{Name: "description", Type: normalize.String},
	{Name: "domain", Type: normalize.Identifier, Required: true},
	{Name: "level", Type: normalize.Level, Required: true},
}

var prerequisiteShape = []normalize.Column{
	{Name: "of", Type: normalize.String, Required: true},
	{Name: "code", Type: normalize.String, Required: true},
	{Name: "name", Type: normalize.String},
	{Name: "level", Type: normalize.Level},
}

var namedShape = []normalize.Column{
	{Name: "id", Type: normalize.Identifier, Required: true},
	{Name: "name", Type: normalize.String},
}

const courseProjection = "?code ?name ?credits ?duration ?difficulty ?description ?domain ?level"

// Attributes of ?c beyond code and name. Domain and level stay optional so
// a course missing them comes back and is reported as incomplete.
const courseOptionals = `
  OPTIONAL { ?c course:credits ?credits }
  OPTIONAL { ?c course:duree ?duration }
  OPTIONAL { ?c course:difficulte ?difficulty }
  OPTIONAL { ?c course:description ?description }
  OPTIONAL { ?c course:appartientADomaine ?domain }
  OPTIONAL { ?c course:aNiveau ?level }`

const studentByEmail = `
  ?s a course:Student ;
     course:emailEtudiant ?email .
  FILTER(LCASE(STR(?email)) = LCASE({{email}}))`

func builtin() []*Template {
	return []*Template{
		{
			Intent: "courses",
			Kind:   domain.KindCourse,
			Query: Prefix + `SELECT ` + courseProjection + ` WHERE {
  ?c a course:Course ;
     course:codeCours ?code ;
     course:nomCours ?name .` + courseOptionals + `
}
ORDER BY ?code`,
			Shape: courseShape,
		},
		{
			Intent: "course",
			Kind:   domain.KindCourse,
			Query: Prefix + `SELECT ` + courseProjection + ` WHERE {
  VALUES ?code { {{code}} }
  ?c course:codeCours ?code ;
     course:nomCours ?name .` + courseOptionals + `
}`,
			Params: map[string]ParamType{"code": CourseCode},
			Shape:  courseShape,
		},
		{
			Intent: "prereqs",
			Kind:   domain.KindPrerequisite,
			Query: Prefix + `SELECT DISTINCT ?of ?code ?name ?level WHERE {
  VALUES ?of { {{code}} }
  ?c course:codeCours ?of ;
     course:aPrerequis ?p .
  ?p course:codeCours ?code .
  OPTIONAL { ?p course:nomCours ?name }
  OPTIONAL { ?p course:aNiveau ?level }
}
ORDER BY ?code`,
			Params: map[string]ParamType{"code": CourseCode},
			Shape:  prerequisiteShape,
		},
		{
			Intent: "prereqs_all",
			Kind:   domain.KindPrerequisite,
			Query: Prefix + `SELECT DISTINCT ?of ?code ?name ?level WHERE {
  VALUES ?of { {{code}} }
  ?c course:codeCours ?of ;
     course:aPrerequis+ ?p .
  ?p course:codeCours ?code .
  OPTIONAL { ?p course:nomCours ?name }
  OPTIONAL { ?p course:aNiveau ?level }
}
ORDER BY ?code`,
			Params: map[string]ParamType{"code": CourseCode},
			Shape:  prerequisiteShape,
		},
		{
			Intent: "prereq_graph",
			Kind:   domain.KindPrerequisite,
			Query: Prefix + `SELECT DISTINCT ?of ?code ?name ?level WHERE {
  VALUES ?target { {{code}} }
  ?t course:codeCours ?target ;
     course:aPrerequis* ?c .
  ?c course:codeCours ?of ;
     course:aPrerequis ?p .
  ?p course:codeCours ?code .
  OPTIONAL { ?p course:nomCours ?name }
  OPTIONAL { ?p course:aNiveau ?level }
}
ORDER BY ?of ?code`,
			Params: map[string]ParamType{"code": CourseCode},
			Shape:  prerequisiteShape,
		},
		{
			Intent: "missing_prereqs",
			Kind:   domain.KindPrerequisite,
			Query: Prefix + `SELECT DISTINCT ?of ?code ?name ?level WHERE {` + studentByEmail + `
  VALUES ?of { {{code}} }
  ?c course:codeCours ?of ;
     course:aPrerequis+ ?p .
  ?p course:codeCours ?code .
  FILTER NOT EXISTS { ?s course:aSuivi ?p }
  OPTIONAL { ?p course:nomCours ?name }
  OPTIONAL { ?p course:aNiveau ?level }
}
ORDER BY ?code`,
			Params: map[string]ParamType{"email": Email, "code": CourseCode},
			Shape:  prerequisiteShape,
		},
		{
			Intent: "courses_by_skill",
			Kind:   domain.KindCourse,
			Query: Prefix + `SELECT DISTINCT ` + courseProjection + ` WHERE {
  ?c a course:Course ;
     course:codeCours ?code ;
     course:nomCours ?name ;
     course:enseigneCompetence {{skill}} .` + courseOptionals + `
}
ORDER BY ?code`,
			Params: map[string]ParamType{"skill": Identifier},
			Shape:  courseShape,
		},
		{
			Intent: "courses_by_domain",
			Kind:   domain.KindCourse,
			Query: Prefix + `SELECT ` + courseProjection + ` WHERE {
  ?c a course:Course ;
     course:codeCours ?code ;
     course:nomCours ?name ;
     course:appartientADomaine {{domain}} .` + courseOptionals + `
}
ORDER BY ?code`,
			Params: map[string]ParamType{"domain": Identifier},
			Shape:  courseShape,
		},
		{
			Intent: "courses_by_level",
			Kind:   domain.KindCourse,
			Query: Prefix + `SELECT ` + courseProjection + ` WHERE {
  ?c a course:Course ;
     course:codeCours ?code ;
     course:nomCours ?name ;
     course:aNiveau {{level}} .` + courseOptionals + `
}
ORDER BY ?code`,
			Params: map[string]ParamType{"level": LevelName},
			Shape:  courseShape,
		},
		{
			Intent: "course_skills",
			Kind:   domain.KindSkill,
			Query: Prefix + `SELECT DISTINCT ?id ?name WHERE {
  ?c course:codeCours {{code}} ;
     course:enseigneCompetence ?id .
  OPTIONAL { ?id course:nomCompetence ?name }
}
ORDER BY ?id`,
			Params: map[string]ParamType{"code": CourseCode},
			Shape:  namedShape,
		},
		{
			Intent: "search_courses",
			Kind:   domain.KindCourse,
			Query: Prefix + `SELECT ` + courseProjection + ` WHERE {
  ?c a course:Course ;
     course:codeCours ?code ;
     course:nomCours ?name .
  FILTER(CONTAINS(LCASE(STR(?name)), LCASE({{keyword}})) || CONTAINS(LCASE(STR(?code)), LCASE({{keyword}})))` + courseOptionals + `
}
ORDER BY ?code`,
			Params: map[string]ParamType{"keyword": Keyword},
			Shape:  courseShape,
		},
		{
			Intent: "domains",
			Kind:   domain.KindDomain,
			Query: Prefix + `SELECT ?id ?name WHERE {
  ?id a course:Domain .
  OPTIONAL { ?id course:nomDomaine ?name }
}
ORDER BY ?id`,
			Shape: namedShape,
		},
		{
			Intent: "student",
			Kind:   domain.KindStudent,
			Query: Prefix + `SELECT ?email (SAMPLE(?n) AS ?name)
       (GROUP_CONCAT(DISTINCT STR(?skill); separator=" ") AS ?skills)
       (GROUP_CONCAT(DISTINCT STR(?interest); separator=" ") AS ?interests)
       (GROUP_CONCAT(DISTINCT STR(?takenCode); separator=" ") AS ?taken)
WHERE {` + studentByEmail + `
  OPTIONAL { ?s course:nomEtudiant ?n }
  OPTIONAL { ?s course:possèdeCompetence ?skill }
  OPTIONAL { ?s course:aInteretPour ?interest }
  OPTIONAL { ?s course:aSuivi ?t . ?t course:codeCours ?takenCode }
}
GROUP BY ?email`,
			Params: map[string]ParamType{"email": Email},
			Shape: []normalize.Column{
				{Name: "email", Type: normalize.String, Required: true},
				{Name: "name", Type: normalize.String},
				{Name: "skills", Type: normalize.IdentifierList},
				{Name: "interests", Type: normalize.IdentifierList},
				{Name: "taken", Type: normalize.IdentifierList},
			},
		},
		{
			Intent: "student_skills",
			Kind:   domain.KindStudentSkill,
			Query: Prefix + `SELECT DISTINCT ?id ?name ?source WHERE {` + studentByEmail + `
  {
    ?s course:possèdeCompetence ?id .
    BIND("` + domain.SourceDirect + `" AS ?source)
  } UNION {
    ?s course:aSuivi ?t .
    ?t course:codeCours ?source ;
       course:enseigneCompetence ?id .
  }
  OPTIONAL { ?id course:nomCompetence ?name }
}
ORDER BY ?id ?source`,
			Params: map[string]ParamType{"email": Email},
			Shape: []normalize.Column{
				{Name: "id", Type: normalize.Identifier, Required: true},
				{Name: "name", Type: normalize.String},
				{Name: "source", Type: normalize.String, Required: true},
			},
		},
		{
			Intent: "eligible_courses",
			Kind:   domain.KindCourse,
			Query: Prefix + `SELECT ` + courseProjection + ` WHERE {` + studentByEmail + `
  ?c a course:Course ;
     course:codeCours ?code ;
     course:nomCours ?name .
  FILTER NOT EXISTS { ?s course:aSuivi ?c }
  FILTER NOT EXISTS {
    ?c course:aPrerequis ?p .
    FILTER NOT EXISTS { ?s course:aSuivi ?p }
  }` + courseOptionals + `
}
ORDER BY ?code`,
			Params: map[string]ParamType{"email": Email},
			Shape:  courseShape,
		},
	}
}
