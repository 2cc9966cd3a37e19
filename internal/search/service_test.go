package search

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"scholira/internal/model"
	"scholira/internal/upstream"
)

var completeProfile = model.UserProfile{
	FullName:      "Amina",
	OriginCountry: "Kenya",
	TargetMajor:   "Computer Science",
	StudyLevel:    "Masters",
}

func newTestService(p Poster) *Service {
	return NewService(p, upstream.Config{ScholarshipEndpoint: "http://s.test", CourseEndpoint: "http://c.test"}, log.New(io.Discard, "", 0))
}

func TestSearchScholarshipsSuccess(t *testing.T) {
	t.Parallel()

	p := &stubPoster{responses: map[string]map[string]any{
		"CS": {"results": []any{map[string]any{"title": "Merit Award", "organization": "Acme Fund"}}},
	}}
	svc := newTestService(p)

	if st := svc.Scholarships(); st.Status != StatusIdle || st.Searched {
		t.Fatalf("expected idle unsearched slot, got %+v", st)
	}

	st := svc.SearchScholarships(context.Background(), model.SearchParams{FieldOfStudy: "CS"})
	if st.Status != StatusSuccess || st.Result == nil {
		t.Fatalf("expected success, got %+v", st)
	}
	if st.Error != "" {
		t.Fatalf("expected no error, got %q", st.Error)
	}
	if len(st.Result.Scholarships) != 1 || st.Result.Scholarships[0].Provider != "Acme Fund" {
		t.Fatalf("unexpected result %+v", st.Result)
	}
	req, ok := p.bodies[0].(scholarshipRequest)
	if !ok || req.Type != "scholarships" {
		t.Fatalf("expected scholarships discriminator, got %#v", p.bodies[0])
	}
	if p.endpoints[0] != "http://s.test" {
		t.Fatalf("unexpected endpoint %s", p.endpoints[0])
	}
}

func TestSearchFailureMessages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{&upstream.NetworkError{Err: errors.New("dial tcp")}, "Network error. Please try again."},
		{&upstream.UpstreamError{Status: 503, Body: "secret stack trace"}, "Search failed (status 503). Please try again."},
		{errors.New("weird"), "Something went wrong. Please try again."},
	}
	for _, tc := range cases {
		svc := newTestService(&stubPoster{err: tc.err})
		st := svc.SearchCourses(context.Background(), model.CourseSearchParams{Query: "AI"})
		if st.Status != StatusFailed {
			t.Fatalf("expected failed, got %s", st.Status)
		}
		if st.Result != nil {
			t.Fatalf("failed slot must not hold a result")
		}
		if st.Error != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, st.Error)
		}
		if !st.Searched {
			t.Fatalf("searched flag must stay set after failure")
		}
	}
}

func TestBeginClearsPreviousResultImmediately(t *testing.T) {
	t.Parallel()

	slot := NewSlot[model.CourseSearchResult]()
	tok := slot.Begin()
	slot.Succeed(tok, model.CourseSearchResult{Total: 3})

	slot.Begin()
	st := slot.Snapshot()
	if st.Status != StatusLoading || st.Result != nil || st.Error != "" {
		t.Fatalf("expected clean loading state, got %+v", st)
	}

	tok = slot.Begin()
	slot.Fail(tok, "boom")
	slot.Begin()
	if st := slot.Snapshot(); st.Error != "" {
		t.Fatalf("expected error cleared on new search, got %q", st.Error)
	}
}

func TestStaleResponseSuppressed(t *testing.T) {
	t.Parallel()

	p := newGatedPoster(map[string]map[string]any{
		"AI":     {"courses": []any{map[string]any{"name": "Deep Learning"}}},
		"Python": {"courses": []any{map[string]any{"name": "Python 101"}, map[string]any{"name": "Async Python"}}},
	})
	svc := newTestService(p)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.SearchCourses(ctx, model.CourseSearchParams{Query: "AI"})
	}()
	p.waitEntered(t, "AI")

	go func() {
		defer wg.Done()
		svc.SearchCourses(ctx, model.CourseSearchParams{Query: "Python"})
	}()
	p.waitEntered(t, "Python")

	// Python 先返回，AI 最后返回。
	p.release("Python")
	waitFor(t, func() bool { return svc.Courses().Status == StatusSuccess })
	p.release("AI")
	wg.Wait()

	st := svc.Courses()
	if st.Status != StatusSuccess || st.Result == nil {
		t.Fatalf("expected success, got %+v", st)
	}
	if len(st.Result.Courses) != 2 || st.Result.Courses[0].Name != "Python 101" {
		t.Fatalf("expected Python results to win, got %+v", st.Result.Courses)
	}
}

func TestStaleFailureSuppressed(t *testing.T) {
	t.Parallel()

	p := newGatedPoster(map[string]map[string]any{
		"Law": {"scholarships": []any{map[string]any{"name": "Bar Grant"}}},
	})
	p.errs = map[string]error{"Art": &upstream.NetworkError{Err: errors.New("timeout")}}
	svc := newTestService(p)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.SearchScholarships(ctx, model.SearchParams{FieldOfStudy: "Art"})
	}()
	p.waitEntered(t, "Art")

	p.release("Law")
	st := svc.SearchScholarships(ctx, model.SearchParams{FieldOfStudy: "Law"})
	if st.Status != StatusSuccess {
		t.Fatalf("expected newer search to succeed, got %+v", st)
	}

	p.release("Art")
	<-done

	st = svc.Scholarships()
	if st.Status != StatusSuccess || st.Error != "" {
		t.Fatalf("stale failure must be discarded, got %+v", st)
	}
}

func TestRecommendFanOutIndependence(t *testing.T) {
	t.Parallel()

	p := &stubPoster{
		responses: map[string]map[string]any{
			"Computer Science": {"courses": []any{map[string]any{"name": "Algorithms"}}},
		},
		errsByEndpoint: map[string]error{"http://s.test": &upstream.UpstreamError{Status: 500}},
	}
	svc := newTestService(p)

	if d := svc.Dashboard(); d.Searched {
		t.Fatalf("dashboard must start unsearched")
	}

	filters := model.ScholarshipFilters{OriginCountry: "Kenya", StudyLevel: "Masters", FieldOfStudy: "Computer Science", TargetRegion: "Any"}
	d, err := svc.Recommend(context.Background(), completeProfile, filters)
	if err != nil {
		t.Fatalf("Recommend error: %v", err)
	}
	if !d.Searched {
		t.Fatalf("expected searched once both slots settled")
	}
	if d.Scholarships.Status != StatusFailed {
		t.Fatalf("expected scholarships failed, got %s", d.Scholarships.Status)
	}
	if d.Courses.Status != StatusSuccess || len(d.Courses.Result.Courses) != 1 {
		t.Fatalf("expected courses success, got %+v", d.Courses)
	}

	var sawCourse, sawScholarship bool
	for _, b := range p.bodies {
		switch req := b.(type) {
		case courseRequest:
			sawCourse = req.Query == "Computer Science" && req.Level == "" && req.Type == "courses"
		case scholarshipRequest:
			sawScholarship = req.TargetRegion == "Global" && req.OriginCountry == "Kenya"
		}
	}
	if !sawCourse || !sawScholarship {
		t.Fatalf("expected requests derived from profile, got %#v", p.bodies)
	}
}

func TestRecommendationParamsDefaults(t *testing.T) {
	t.Parallel()

	got := RecommendationParams(model.UserProfile{GPA: "3.7"})
	want := model.SearchParams{OriginCountry: "India", StudyLevel: "Bachelor", FieldOfStudy: "Computer Science", TargetRegion: "Global", GPA: "3.7"}
	if got != want {
		t.Fatalf("unexpected defaults %+v", got)
	}

	p := model.UserProfile{OriginCountry: "Kenya", TargetMajor: "Physics", SAT: "1450"}
	resolved := ResolveParams(model.SearchParams{
		OriginCountry: "Any",
		StudyLevel:    "Master",
		FieldOfStudy:  "Any",
		TargetRegion:  "",
		IELTS:         "7.5",
	}, p)
	want = model.SearchParams{OriginCountry: "Kenya", StudyLevel: "Master", FieldOfStudy: "Physics", TargetRegion: "Global", SAT: "1450", IELTS: "7.5"}
	if resolved != want {
		t.Fatalf("unexpected resolved params %+v", resolved)
	}
}

func TestCourseQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		profile model.UserProfile
		want    string
	}{
		{model.UserProfile{TargetMajor: "Physics", Interests: "robotics"}, "Physics robotics"},
		{model.UserProfile{Interests: "robotics"}, "robotics"},
		{model.UserProfile{}, "High demand skills"},
	}
	for _, tc := range cases {
		if got := CourseQuery(tc.profile); got != tc.want {
			t.Errorf("CourseQuery(%+v) = %q, want %q", tc.profile, got, tc.want)
		}
	}
}

func TestRecommendUsesInterestsAndResolvesAny(t *testing.T) {
	t.Parallel()

	p := &stubPoster{}
	svc := newTestService(p)
	profile := completeProfile
	profile.StudyLevel = "Master"
	profile.Interests = "robotics"

	filters := model.ScholarshipFilters{OriginCountry: "Any", StudyLevel: "Any", FieldOfStudy: "Any", TargetRegion: "Any"}
	if _, err := svc.Recommend(context.Background(), profile, filters); err != nil {
		t.Fatalf("Recommend error: %v", err)
	}
	for _, b := range p.bodies {
		switch req := b.(type) {
		case courseRequest:
			if req.Query != "Computer Science robotics" || req.Level != "" {
				t.Fatalf("unexpected course request %+v", req)
			}
		case scholarshipRequest:
			if req.OriginCountry != "Kenya" || req.StudyLevel != "Master" || req.FieldOfStudy != "Computer Science" || req.TargetRegion != "Global" {
				t.Fatalf("Any must be resolved, got %+v", req.SearchParams)
			}
		}
	}
}

func TestRecommendRequiresCompleteProfile(t *testing.T) {
	t.Parallel()

	p := &stubPoster{}
	svc := newTestService(p)

	_, err := svc.Recommend(context.Background(), model.UserProfile{FullName: "Amina"}, model.ScholarshipFilters{})
	if !errors.Is(err, ErrProfileIncomplete) {
		t.Fatalf("expected ErrProfileIncomplete, got %v", err)
	}
	if p.calls() != 0 {
		t.Fatalf("expected no upstream calls")
	}
}

func TestAutoRecommendRunsOnce(t *testing.T) {
	t.Parallel()

	p := &stubPoster{}
	svc := newTestService(p)
	ctx := context.Background()

	if _, ran := svc.AutoRecommend(ctx, model.UserProfile{}, model.ScholarshipFilters{}); ran {
		t.Fatalf("incomplete profile must not trigger")
	}
	if _, ran := svc.AutoRecommend(ctx, completeProfile, model.ScholarshipFilters{}); !ran {
		t.Fatalf("expected first complete entry to trigger")
	}
	if _, ran := svc.AutoRecommend(ctx, completeProfile, model.ScholarshipFilters{}); ran {
		t.Fatalf("expected second entry not to trigger")
	}
	if p.calls() != 2 {
		t.Fatalf("expected exactly one fan-out (2 calls), got %d", p.calls())
	}
}

// --- stubs ---

func requestKey(body any) string {
	switch b := body.(type) {
	case courseRequest:
		return b.Query
	case scholarshipRequest:
		return b.FieldOfStudy
	default:
		return ""
	}
}

type stubPoster struct {
	mu             sync.Mutex
	responses      map[string]map[string]any
	err            error
	errsByEndpoint map[string]error
	bodies         []any
	endpoints      []string
}

func (s *stubPoster) Post(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, body)
	s.endpoints = append(s.endpoints, endpoint)
	if s.err != nil {
		return nil, s.err
	}
	if err := s.errsByEndpoint[endpoint]; err != nil {
		return nil, err
	}
	if resp, ok := s.responses[requestKey(body)]; ok {
		return resp, nil
	}
	return map[string]any{}, nil
}

func (s *stubPoster) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

type gatedPoster struct {
	mu        sync.Mutex
	responses map[string]map[string]any
	errs      map[string]error
	gates     map[string]chan struct{}
	entered   chan string
}

func newGatedPoster(responses map[string]map[string]any) *gatedPoster {
	return &gatedPoster{
		responses: responses,
		gates:     make(map[string]chan struct{}),
		entered:   make(chan string, 8),
	}
}

func (g *gatedPoster) gate(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[key]
	if !ok {
		ch = make(chan struct{})
		g.gates[key] = ch
	}
	return ch
}

func (g *gatedPoster) Post(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	key := requestKey(body)
	g.entered <- key
	<-g.gate(key)
	if err := g.errs[key]; err != nil {
		return nil, err
	}
	return g.responses[key], nil
}

func (g *gatedPoster) release(key string) {
	close(g.gate(key))
}

func (g *gatedPoster) waitEntered(t *testing.T, key string) {
	t.Helper()
	select {
	case got := <-g.entered:
		if got != key {
			t.Fatalf("expected %s to enter first, got %s", key, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("%s never reached upstream", key)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSearchCoursesTrimsQuery(t *testing.T) {
	t.Parallel()

	p := &stubPoster{}
	svc := newTestService(p)

	st := svc.SearchCourses(context.Background(), model.CourseSearchParams{Query: "  machine learning \n", Platform: "Coursera"})
	if st.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", st)
	}
	req, ok := p.bodies[0].(courseRequest)
	if !ok || req.Query != "machine learning" || req.Platform != "Coursera" {
		t.Fatalf("unexpected course request %#v", p.bodies[0])
	}

	st = svc.SearchCourses(context.Background(), model.CourseSearchParams{Query: " \t "})
	if st.Status != StatusFailed || st.Error != blankQueryMessage {
		t.Fatalf("expected blank query to fail, got %+v", st)
	}
	if p.calls() != 1 {
		t.Fatalf("blank query must not reach upstream, calls=%d", p.calls())
	}
}
