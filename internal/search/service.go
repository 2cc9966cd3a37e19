package search

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"scholira/internal/model"
	"scholira/internal/normalizer"
	"scholira/internal/upstream"
)

// ErrProfileIncomplete 资料不完整时无法生成默认推荐。
var ErrProfileIncomplete = errors.New("profile incomplete")

const blankQueryMessage = "Enter a course or skill to search for."

// Poster 抽象上游调用，便于测试注入。
type Poster interface {
	Post(ctx context.Context, endpoint string, body any) (map[string]any, error)
}

// Dashboard 聚合两个槽位，Searched 在两者都离开 Loading 后置位。
type Dashboard struct {
	Scholarships SlotState[model.SearchResult]       `json:"scholarships"`
	Courses      SlotState[model.CourseSearchResult] `json:"courses"`
	Searched     bool                                `json:"searched"`
}

type scholarshipRequest struct {
	model.SearchParams
	Type string `json:"type"`
}

type courseRequest struct {
	model.CourseSearchParams
	Type string `json:"type"`
}

// Service 拥有奖学金与课程两个独立槽位，并负责并发推荐。
type Service struct {
	poster       Poster
	cfg          upstream.Config
	logger       *log.Logger
	scholarships *Slot[model.SearchResult]
	courses      *Slot[model.CourseSearchResult]
	autoRan      atomic.Bool
	dashSearched atomic.Bool
}

// NewService 创建编排器。
func NewService(poster Poster, cfg upstream.Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[search] ", log.LstdFlags)
	}
	return &Service{
		poster:       poster,
		cfg:          cfg,
		logger:       logger,
		scholarships: NewSlot[model.SearchResult](),
		courses:      NewSlot[model.CourseSearchResult](),
	}
}

// SearchScholarships 执行奖学金搜索，返回本次完成后的槽位快照。失败写入槽位，不返回错误。
func (s *Service) SearchScholarships(ctx context.Context, params model.SearchParams) SlotState[model.SearchResult] {
	token := s.scholarships.Begin()
	s.logger.Printf("scholarships search start gen=%d origin=%q level=%q field=%q region=%q", token, params.OriginCountry, params.StudyLevel, params.FieldOfStudy, params.TargetRegion)

	payload, err := s.poster.Post(ctx, s.cfg.ScholarshipEndpoint, scholarshipRequest{SearchParams: params, Type: "scholarships"})
	if err != nil {
		s.logFailure("scholarships", token, err)
		if !s.scholarships.Fail(token, Message(err)) {
			s.logger.Printf("scholarships gen=%d stale failure discarded", token)
		}
		return s.scholarships.Snapshot()
	}

	res := normalizer.SearchResult(payload)
	if !s.scholarships.Succeed(token, res) {
		s.logger.Printf("scholarships gen=%d stale result discarded", token)
	} else {
		s.logger.Printf("scholarships gen=%d done results=%d sources=%d", token, len(res.Scholarships), len(res.Sources))
	}
	return s.scholarships.Snapshot()
}

// SearchCourses 执行课程搜索，语义同 SearchScholarships。
func (s *Service) SearchCourses(ctx context.Context, params model.CourseSearchParams) SlotState[model.CourseSearchResult] {
	params.Query = strings.TrimSpace(params.Query)
	token := s.courses.Begin()
	if params.Query == "" {
		s.courses.Fail(token, blankQueryMessage)
		return s.courses.Snapshot()
	}
	s.logger.Printf("courses search start gen=%d query=%q", token, params.Query)

	payload, err := s.poster.Post(ctx, s.cfg.CourseEndpoint, courseRequest{CourseSearchParams: params, Type: "courses"})
	if err != nil {
		s.logFailure("courses", token, err)
		if !s.courses.Fail(token, Message(err)) {
			s.logger.Printf("courses gen=%d stale failure discarded", token)
		}
		return s.courses.Snapshot()
	}

	res := normalizer.Courses(payload)
	if !s.courses.Succeed(token, res) {
		s.logger.Printf("courses gen=%d stale result discarded", token)
	} else {
		s.logger.Printf("courses gen=%d done results=%d total=%d", token, len(res.Courses), res.Total)
	}
	return s.courses.Snapshot()
}

// Recommend 并发触发两个槽位，任一失败不影响另一方。筛选条件中的 "Any" 以资料推荐值替换，
// 课程查询由目标专业与兴趣组成。
func (s *Service) Recommend(ctx context.Context, profile model.UserProfile, filters model.ScholarshipFilters) (Dashboard, error) {
	if !profile.IsComplete() {
		return s.Dashboard(), ErrProfileIncomplete
	}

	var g errgroup.Group
	g.Go(func() error {
		s.SearchScholarships(ctx, ResolveParams(filters.Params(), profile))
		return nil
	})
	g.Go(func() error {
		s.SearchCourses(ctx, model.CourseSearchParams{Query: CourseQuery(profile)})
		return nil
	})
	_ = g.Wait()

	s.dashSearched.Store(true)
	return s.Dashboard(), nil
}

// AutoRecommend 仅在首次进入且资料完整时触发推荐，之后返回当前快照与 false。
func (s *Service) AutoRecommend(ctx context.Context, profile model.UserProfile, filters model.ScholarshipFilters) (Dashboard, bool) {
	if !profile.IsComplete() || !s.autoRan.CompareAndSwap(false, true) {
		return s.Dashboard(), false
	}
	d, _ := s.Recommend(ctx, profile, filters)
	return d, true
}

// Scholarships 返回奖学金槽位快照。
func (s *Service) Scholarships() SlotState[model.SearchResult] {
	return s.scholarships.Snapshot()
}

// Courses 返回课程槽位快照。
func (s *Service) Courses() SlotState[model.CourseSearchResult] {
	return s.courses.Snapshot()
}

// Dashboard 返回聚合快照。
func (s *Service) Dashboard() Dashboard {
	return Dashboard{
		Scholarships: s.scholarships.Snapshot(),
		Courses:      s.courses.Snapshot(),
		Searched:     s.dashSearched.Load(),
	}
}

func (s *Service) logFailure(slot string, token uint64, err error) {
	if ue, ok := upstream.AsUpstream(err); ok {
		s.logger.Printf("%s gen=%d upstream status=%d body=%q", slot, token, ue.Status, ue.Body)
		return
	}
	s.logger.Printf("%s gen=%d failed: %v", slot, token, err)
}
