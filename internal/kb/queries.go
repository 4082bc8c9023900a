package kb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"course-kb/internal/domain"
	"course-kb/internal/kberr"
	"course-kb/internal/normalize"
)

// Courses returns the course records of the result.
func (r *Result) Courses() []domain.Course {
	return collect[domain.Course](r)
}

func (r *Result) Prerequisites() []domain.Prerequisite {
	return collect[domain.Prerequisite](r)
}

func (r *Result) Skills() []domain.Skill {
	return collect[domain.Skill](r)
}

func (r *Result) Domains() []domain.Domain {
	return collect[domain.Domain](r)
}

func (r *Result) Students() []domain.Student {
	return collect[domain.Student](r)
}

func (r *Result) StudentSkills() []domain.StudentSkill {
	return collect[domain.StudentSkill](r)
}

func collect[T domain.Record](r *Result) []T {
	if r == nil {
		return nil
	}
	out := make([]T, 0, len(r.Records))
	for _, rec := range r.Records {
		if v, ok := rec.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// The wrappers below return the rows dropped during normalization next to
// the records. A non-empty diagnostics slice means the records are a
// partial answer; see Result.Warning.

// GetCourseByCode returns the course with code, or nil when there is none.
// A course row dropped as incomplete also yields nil, with its diagnostic.
func (k *KnowledgeBase) GetCourseByCode(ctx context.Context, code string) (*domain.Course, []normalize.Diagnostic, error) {
	courses, diags, err := query[domain.Course](ctx, k, "course", map[string]string{"code": code})
	if err != nil || len(courses) == 0 {
		return nil, diags, err
	}
	return &courses[0], diags, nil
}

// GetPrerequisites returns the direct prerequisites of code, by code.
func (k *KnowledgeBase) GetPrerequisites(ctx context.Context, code string) ([]domain.Prerequisite, []normalize.Diagnostic, error) {
	return query[domain.Prerequisite](ctx, k, "prereqs", map[string]string{"code": code})
}

// GetAllPrerequisites returns the transitive prerequisites of code.
func (k *KnowledgeBase) GetAllPrerequisites(ctx context.Context, code string) ([]domain.Prerequisite, []normalize.Diagnostic, error) {
	return query[domain.Prerequisite](ctx, k, "prereqs_all", map[string]string{"code": code})
}

func (k *KnowledgeBase) ListCourses(ctx context.Context) ([]domain.Course, []normalize.Diagnostic, error) {
	return query[domain.Course](ctx, k, "courses", nil)
}

// GetCoursesByDomain takes a domain identifier such as "Informatique".
func (k *KnowledgeBase) GetCoursesByDomain(ctx context.Context, domainID string) ([]domain.Course, []normalize.Diagnostic, error) {
	return query[domain.Course](ctx, k, "courses_by_domain", map[string]string{"domain": domainID})
}

func (k *KnowledgeBase) GetCoursesByLevel(ctx context.Context, level domain.Level) ([]domain.Course, []normalize.Diagnostic, error) {
	if level.StoreName() == "" {
		return nil, nil, kberr.New(kberr.ErrInvalidParameter, "bind", "level %d is not a course level", int(level))
	}
	return query[domain.Course](ctx, k, "courses_by_level", map[string]string{"level": level.StoreName()})
}

// GetCoursesBySkill takes a skill identifier such as "Python".
func (k *KnowledgeBase) GetCoursesBySkill(ctx context.Context, skillID string) ([]domain.Course, []normalize.Diagnostic, error) {
	return query[domain.Course](ctx, k, "courses_by_skill", map[string]string{"skill": skillID})
}

func (k *KnowledgeBase) GetCourseSkills(ctx context.Context, code string) ([]domain.Skill, []normalize.Diagnostic, error) {
	return query[domain.Skill](ctx, k, "course_skills", map[string]string{"code": code})
}

// SearchCourses matches keyword against course names and codes,
// case-insensitively.
func (k *KnowledgeBase) SearchCourses(ctx context.Context, keyword string) ([]domain.Course, []normalize.Diagnostic, error) {
	return query[domain.Course](ctx, k, "search_courses", map[string]string{"keyword": keyword})
}

func (k *KnowledgeBase) ListDomains(ctx context.Context) ([]domain.Domain, []normalize.Diagnostic, error) {
	return query[domain.Domain](ctx, k, "domains", nil)
}

// GetStudent returns the student with email, or nil when there is none.
func (k *KnowledgeBase) GetStudent(ctx context.Context, email string) (*domain.Student, []normalize.Diagnostic, error) {
	students, diags, err := query[domain.Student](ctx, k, "student", map[string]string{"email": email})
	if err != nil || len(students) == 0 {
		return nil, diags, err
	}
	return &students[0], diags, nil
}

// GetStudentSkills returns the skills a student holds directly and those
// taught by courses the student took.
func (k *KnowledgeBase) GetStudentSkills(ctx context.Context, email string) ([]domain.StudentSkill, []normalize.Diagnostic, error) {
	return query[domain.StudentSkill](ctx, k, "student_skills", map[string]string{"email": email})
}

// GetEligibleCourses returns courses the student has not taken and whose
// prerequisites the student has all taken.
func (k *KnowledgeBase) GetEligibleCourses(ctx context.Context, email string) ([]domain.Course, []normalize.Diagnostic, error) {
	return query[domain.Course](ctx, k, "eligible_courses", map[string]string{"email": email})
}

// Eligibility tells whether a student may take a course.
type Eligibility struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Eligible bool   `json:"eligible"`
	// Missing lists the direct and indirect prerequisites not yet taken.
	Missing []domain.Prerequisite `json:"missing"`
}

// CheckEligibility reports which prerequisites of code, transitively, the
// student has not taken. It returns nil when no student has email.
func (k *KnowledgeBase) CheckEligibility(ctx context.Context, email, code string) (*Eligibility, []normalize.Diagnostic, error) {
	student, diags, err := k.GetStudent(ctx, email)
	if err != nil || student == nil {
		return nil, diags, err
	}

	missing, mdiags, err := query[domain.Prerequisite](ctx, k, "missing_prereqs", map[string]string{"email": email, "code": code})
	diags = append(diags, mdiags...)
	if err != nil {
		return nil, diags, err
	}
	return &Eligibility{
		Email:    student.Email,
		Code:     strings.ToUpper(strings.TrimSpace(code)),
		Eligible: len(missing) == 0 && len(mdiags) == 0,
		Missing:  missing,
	}, diags, nil
}

// ErrPrerequisiteCycle is returned by GetLearningPath when the stored
// prerequisite graph is not acyclic.
var ErrPrerequisiteCycle = errors.New("kb: prerequisite cycle")

// GetLearningPath returns the course codes to take, in order, to reach
// code: every prerequisite comes before the courses that need it and code
// itself comes last. Among courses available at the same point the
// smallest code goes first. An unknown course gives an empty path.
func (k *KnowledgeBase) GetLearningPath(ctx context.Context, code string) ([]string, []normalize.Diagnostic, error) {
	edges, diags, err := query[domain.Prerequisite](ctx, k, "prereq_graph", map[string]string{"code": code})
	if err != nil {
		return nil, diags, err
	}
	if len(edges) == 0 {
		c, cdiags, err := k.GetCourseByCode(ctx, code)
		diags = append(diags, cdiags...)
		if err != nil || c == nil {
			return []string{}, diags, err
		}
		return []string{c.Code}, diags, nil
	}

	path, err := learningOrder(edges)
	return path, diags, err
}

// learningOrder sorts the courses of edges topologically, prerequisites
// first.
func learningOrder(edges []domain.Prerequisite) ([]string, error) {
	unmet := make(map[string]int)
	dependents := make(map[string][]string)
	for _, e := range edges {
		if _, ok := unmet[e.Code]; !ok {
			unmet[e.Code] = 0
		}
		unmet[e.Of]++
		dependents[e.Code] = append(dependents[e.Code], e.Of)
	}

	var ready []string
	for c, n := range unmet {
		if n == 0 {
			ready = append(ready, c)
		}
	}

	path := make([]string, 0, len(unmet))
	for len(ready) > 0 {
		slices.Sort(ready)
		next := ready[0]
		ready = ready[1:]
		path = append(path, next)
		for _, d := range dependents[next] {
			unmet[d]--
			if unmet[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(path) < len(unmet) {
		var stuck []string
		for c, n := range unmet {
			if n > 0 {
				stuck = append(stuck, c)
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("%w through %s", ErrPrerequisiteCycle, strings.Join(stuck, ", "))
	}
	return path, nil
}

func query[T domain.Record](ctx context.Context, k *KnowledgeBase, intent string, params map[string]string) ([]T, []normalize.Diagnostic, error) {
	res, err := k.ExecuteQuery(ctx, intent, params)
	if err != nil {
		return nil, nil, err
	}
	return collect[T](res), res.Diagnostics, nil
}
