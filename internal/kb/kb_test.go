package kb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-kb/internal/domain"
	"course-kb/internal/kberr"
	"course-kb/internal/metrics"
	"course-kb/internal/normalize"
	"course-kb/internal/sparql"
)

func TestListCoursesFixture(t *testing.T) {
	k, store := newFixtureKB(t)

	res, err := k.ExecuteQuery(context.Background(), "list_courses", nil)
	require.NoError(t, err)
	assert.Equal(t, "courses", res.Intent)
	assert.False(t, res.Partial())
	assert.Nil(t, res.Warning())
	assert.NotEmpty(t, res.QueryID)

	courses := res.Courses()
	require.Len(t, courses, 15)
	for _, c := range courses {
		assert.NotEmpty(t, c.Domain, c.Code)
		assert.NotEqual(t, domain.LevelUnknown, c.Level, c.Code)
	}
	assert.Equal(t, "ALGO-220", courses[0].Code)
	assert.Equal(t, "WEB-301", courses[14].Code)
	assert.EqualValues(t, 1, store.calls.Load())
}

func TestPrerequisitesAscending(t *testing.T) {
	k, _ := newFixtureKB(t)

	prereqs, diags, err := k.GetPrerequisites(context.Background(), "IA-401")
	require.NoError(t, err)
	assert.Empty(t, diags)

	var codes []string
	for _, p := range prereqs {
		assert.Equal(t, "IA-401", p.Of)
		codes = append(codes, p.Code)
	}
	assert.Equal(t, []string{"IA-301", "MATH-201", "PROG-110"}, codes)
	assert.Equal(t, domain.Beginner, prereqs[2].Level)
}

func TestNonexistentCodeIsEmpty(t *testing.T) {
	k, store := newFixtureKB(t)
	ctx := context.Background()

	c, _, err := k.GetCourseByCode(ctx, "XX-999")
	require.NoError(t, err)
	assert.Nil(t, c)

	res, err := k.ExecuteQuery(ctx, "prereqs", map[string]string{"code": "XX-999"})
	require.NoError(t, err)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.EqualValues(t, 2, store.calls.Load())
}

func TestGetCourseByCode(t *testing.T) {
	k, store := newFixtureKB(t)

	c, _, err := k.GetCourseByCode(context.Background(), "ia-401")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, domain.Course{
		Code:       "IA-401",
		Name:       "Apprentissage profond",
		Credits:    6,
		Duration:   60,
		Difficulty: 5,
		Domain:     "IntelligenceArtificielle",
		Level:      domain.Advanced,
	}, *c)
	assert.Contains(t, store.lastQuery(), `VALUES ?code { "IA-401" }`)
}

func TestInjectionNeverReachesStore(t *testing.T) {
	k, store := newFixtureKB(t)
	ctx := context.Background()

	attempts := []struct {
		intent string
		params map[string]string
	}{
		{"course", map[string]string{"code": `IA-401" } ; DROP ALL ; #`}},
		{"prereqs", map[string]string{"code": "IA-401 } UNION { ?s ?p ?o"}},
		{"courses_by_domain", map[string]string{"domain": "Informatique> . ?x ?y ?z"}},
		{"search_courses", map[string]string{"keyword": `x")) } #`}},
		{"student_skills", map[string]string{"email": `a"@b.fr`}},
	}

	for _, a := range attempts {
		res, err := k.ExecuteQuery(ctx, a.intent, a.params)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, kberr.ErrInvalidParameter, "%s %v", a.intent, a.params)
	}
	assert.EqualValues(t, 0, store.calls.Load())
}

func TestInputErrorsBeforeIO(t *testing.T) {
	k, store := newFixtureKB(t)
	ctx := context.Background()

	_, err := k.ExecuteQuery(ctx, "prereqs", nil)
	assert.ErrorIs(t, err, kberr.ErrMissingParameter)

	_, err = k.ExecuteQuery(ctx, "timetable", map[string]string{"code": "IA-401"})
	assert.ErrorIs(t, err, kberr.ErrUnknownIntent)
	assert.Equal(t, kberr.ClassInput, kberr.ClassOf(err))

	_, err = k.ExecuteQuery(ctx, "courses", map[string]string{"limit": "5"})
	assert.ErrorIs(t, err, kberr.ErrInvalidParameter)

	_, _, err = k.GetCoursesByLevel(ctx, domain.LevelUnknown)
	assert.ErrorIs(t, err, kberr.ErrInvalidParameter)
	assert.NotErrorIs(t, err, kberr.ErrMissingParameter)

	_, _, err = k.GetCoursesByLevel(ctx, domain.Level(9))
	assert.ErrorIs(t, err, kberr.ErrInvalidParameter)

	assert.EqualValues(t, 0, store.calls.Load())
}

func TestIdempotent(t *testing.T) {
	k, _ := newFixtureKB(t)
	ctx := context.Background()
	params := map[string]string{"code": "IA-401"}

	first, err := k.ExecuteQuery(ctx, "prereqs", params)
	require.NoError(t, err)
	second, err := k.ExecuteQuery(ctx, "prereqs", params)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
	assert.NotEqual(t, first.QueryID, second.QueryID)
}

func TestConcurrentQueries(t *testing.T) {
	k, store := newFixtureKB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			courses, _, err := k.ListCourses(context.Background())
			if err == nil && len(courses) != 15 {
				err = errors.New("short result")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 8, store.calls.Load())
}

func TestPartialResult(t *testing.T) {
	stub := &stubExecutor{res: &sparql.Results{Rows: []sparql.Row{
		courseBinding(fixtureCourses[0]),
		{"code": lit("IA-999"), "name": lit("Sans domaine"), "level": iri("Avance")},
		courseBinding(fixtureCourses[0]),
	}}}
	m, err := metrics.New()
	require.NoError(t, err)
	k := New(stub, WithMetrics(m))

	res, err := k.ExecuteQuery(context.Background(), "courses", nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Partial())
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, normalize.ReasonIncomplete, res.Diagnostics[0].Reason)
	assert.Equal(t, normalize.ReasonDuplicate, res.Diagnostics[1].Reason)

	w := res.Warning()
	require.NotNil(t, w)
	assert.Equal(t, kberr.PartialResultWarning{Intent: "courses", Dropped: 2, Kept: 1}, *w)

	n, err := testutil.GatherAndCount(m.Registry(), "coursekb_normalize_rows_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTransportErrorPropagates(t *testing.T) {
	cause := kberr.Wrap(kberr.ErrTimeout, "select", context.DeadlineExceeded)
	stub := &stubExecutor{err: cause}
	m, err := metrics.New()
	require.NoError(t, err)
	k := New(stub, WithMetrics(m))

	res, err := k.ExecuteQuery(context.Background(), "course", map[string]string{"code": "IA-401"})
	assert.Nil(t, res)
	assert.Same(t, cause, err)
	assert.ErrorIs(t, err, kberr.ErrTimeout)
	assert.Len(t, stub.queries, 1)
	n, err := testutil.GatherAndCount(m.Registry(), "coursekb_query_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTransportErrorFromStore(t *testing.T) {
	k, _ := newFixtureKB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := k.ListCourses(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, kberr.ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStudentQueries(t *testing.T) {
	stub := &stubExecutor{res: &sparql.Results{Rows: []sparql.Row{{
		"email":     lit("alice@univ.fr"),
		"name":      lit("Alice Martin"),
		"skills":    lit(domain.Namespace + "SQL " + domain.Namespace + "Python"),
		"interests": lit(domain.Namespace + "IntelligenceArtificielle"),
		"taken":     lit("PROG-110 MATH-201"),
	}}}}
	k := New(stub)

	s, _, err := k.GetStudent(context.Background(), "alice@univ.fr")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, domain.Student{
		Name:      "Alice Martin",
		Email:     "alice@univ.fr",
		Skills:    []string{"Python", "SQL"},
		Interests: []string{"IntelligenceArtificielle"},
		Taken:     []string{"MATH-201", "PROG-110"},
	}, *s)
	assert.Contains(t, stub.queries[0], `LCASE("alice@univ.fr")`)

	stub.res = &sparql.Results{Rows: []sparql.Row{
		{"id": iri("SQL"), "source": lit("BDD-201")},
		{"id": iri("Python"), "name": lit("Python"), "source": lit(domain.SourceDirect)},
	}}
	skills, _, err := k.GetStudentSkills(context.Background(), "alice@univ.fr")
	require.NoError(t, err)
	assert.Equal(t, []domain.StudentSkill{
		{SkillID: "Python", SkillName: "Python", Source: "direct"},
		{SkillID: "SQL", Source: "BDD-201"},
	}, skills)

	stub.res = &sparql.Results{}
	none, _, err := k.GetStudent(context.Background(), "bob@univ.fr")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWrappersBindParameters(t *testing.T) {
	stub := &stubExecutor{res: &sparql.Results{}}
	k := New(stub)
	ctx := context.Background()

	_, _, err := k.GetCoursesByDomain(ctx, "Informatique")
	require.NoError(t, err)
	_, _, err = k.GetCoursesByLevel(ctx, domain.Intermediate)
	require.NoError(t, err)
	_, _, err = k.GetAllPrerequisites(ctx, "IA-401")
	require.NoError(t, err)
	_, _, err = k.GetCourseSkills(ctx, "IA-401")
	require.NoError(t, err)
	_, _, err = k.SearchCourses(ctx, "apprentissage")
	require.NoError(t, err)
	_, _, err = k.ListDomains(ctx)
	require.NoError(t, err)
	_, _, err = k.GetEligibleCourses(ctx, "alice@univ.fr")
	require.NoError(t, err)
	_, _, err = k.GetCoursesBySkill(ctx, "Python")
	require.NoError(t, err)

	require.Len(t, stub.queries, 8)
	assert.Contains(t, stub.queries[0], "course:appartientADomaine course:Informatique")
	assert.Contains(t, stub.queries[1], "course:aNiveau course:Intermediaire")
	assert.Contains(t, stub.queries[2], "course:aPrerequis+")
	assert.Contains(t, stub.queries[3], "course:enseigneCompetence")
	assert.Contains(t, stub.queries[4], `LCASE("apprentissage")`)
	assert.Contains(t, stub.queries[5], "a course:Domain")
	assert.Contains(t, stub.queries[6], "FILTER NOT EXISTS")
	assert.Contains(t, stub.queries[7], "course:enseigneCompetence course:Python")
}

func TestPing(t *testing.T) {
	stub := &stubExecutor{res: &sparql.Results{}}
	require.NoError(t, New(stub).Ping(context.Background()))
	assert.Len(t, stub.queries, 1)

	pinger := pingingExecutor{&stubExecutor{pingErr: kberr.New(kberr.ErrConnection, "ping", "down")}}
	err := New(pinger).Ping(context.Background())
	assert.ErrorIs(t, err, kberr.ErrConnection)
	assert.Equal(t, 1, pinger.pings)
	assert.Empty(t, pinger.queries)
}

func TestWrappersReturnDiagnostics(t *testing.T) {
	stub := &stubExecutor{res: &sparql.Results{Rows: []sparql.Row{
		courseBinding(fixtureCourses[0]),
		{"code": lit("IA-999"), "name": lit("Sans domaine"), "level": iri("Avance")},
	}}}
	k := New(stub)
	ctx := context.Background()

	courses, diags, err := k.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Len(t, diags, 1)
	assert.Equal(t, normalize.ReasonIncomplete, diags[0].Reason)
	assert.Equal(t, "domain", diags[0].Column)

	// the only matching row is incomplete: not found, but not silently
	stub.res = &sparql.Results{Rows: []sparql.Row{
		{"code": lit("IA-999"), "name": lit("Sans domaine"), "level": iri("Avance")},
	}}
	c, diags, err := k.GetCourseByCode(ctx, "IA-999")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Len(t, diags, 1)
}

func TestLearningPath(t *testing.T) {
	k, _ := newFixtureKB(t)
	ctx := context.Background()

	path, diags, err := k.GetLearningPath(ctx, "ia-401")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, []string{"IA-201", "MATH-201", "IA-301", "PROG-110", "IA-401"}, path)

	path, _, err = k.GetLearningPath(ctx, "WEB-301")
	require.NoError(t, err)
	assert.Equal(t, []string{"WEB-201", "WEB-301"}, path)

	// no prerequisites: the course alone
	path, _, err = k.GetLearningPath(ctx, "PROG-110")
	require.NoError(t, err)
	assert.Equal(t, []string{"PROG-110"}, path)

	path, _, err = k.GetLearningPath(ctx, "XX-999")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestLearningOrderCycle(t *testing.T) {
	_, err := learningOrder([]domain.Prerequisite{
		{Of: "A-100", Code: "B-100"},
		{Of: "B-100", Code: "C-100"},
		{Of: "C-100", Code: "B-100"},
	})
	require.ErrorIs(t, err, ErrPrerequisiteCycle)
	assert.Contains(t, err.Error(), "A-100, B-100, C-100")
}

func TestCheckEligibility(t *testing.T) {
	k, store := newFixtureKB(t)
	ctx := context.Background()

	e, diags, err := k.CheckEligibility(ctx, "Alice@univ.fr", "ia-401")
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.NotNil(t, e)
	assert.False(t, e.Eligible)
	assert.Equal(t, "IA-401", e.Code)

	var missing []string
	for _, p := range e.Missing {
		missing = append(missing, p.Code)
	}
	assert.Equal(t, []string{"IA-201", "IA-301"}, missing)

	e, _, err = k.CheckEligibility(ctx, "alice@univ.fr", "IA-201")
	require.NoError(t, err)
	assert.True(t, e.Eligible)
	assert.Empty(t, e.Missing)

	calls := store.calls.Load()
	e, _, err = k.CheckEligibility(ctx, "bob@univ.fr", "IA-401")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Equal(t, calls+1, store.calls.Load())

	_, _, err = k.CheckEligibility(ctx, "alice@univ.fr", "IA-401 } #")
	assert.ErrorIs(t, err, kberr.ErrInvalidParameter)
}
