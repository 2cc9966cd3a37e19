package tracker

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"scholira/internal/model"
)

// Store 抽象收藏记录的持久化，storage.Store 满足该接口。
type Store interface {
	CreateTracked(ctx context.Context, t *model.TrackedScholarship) error
	ListTracked(ctx context.Context) ([]model.TrackedScholarship, error)
	GetTracked(ctx context.Context, id string) (*model.TrackedScholarship, error)
	UpdateTrackedStatus(ctx context.Context, id string, status model.TrackedScholarshipStatus) error
	DeleteTracked(ctx context.Context, id string) error
}

// Service 负责收藏、状态流转与删除。
type Service struct {
	store  Store
	logger *log.Logger
	newID  func() string
}

// NewService 创建 Service。
func NewService(store Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[tracker] ", log.LstdFlags)
	}
	return &Service{store: store, logger: logger, newID: uuid.NewString}
}

// Track 收藏一条奖学金，status 为空时默认为 saved。
func (s *Service) Track(ctx context.Context, sch model.Scholarship, status model.TrackedScholarshipStatus, matchScore *int) (*model.TrackedScholarship, error) {
	if status == "" {
		status = model.TrackedStatusSaved
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	eligibility := sch.Eligibility
	if eligibility == nil {
		eligibility = []string{}
	}
	item := &model.TrackedScholarship{
		ID:             s.newID(),
		Name:           sch.Name,
		Provider:       sch.Provider,
		Amount:         sch.Amount,
		Deadline:       sch.Deadline,
		Description:    sch.Description,
		Eligibility:    eligibility,
		Location:       sch.Location,
		ApplicationURL: sch.ApplicationURL,
		Status:         status,
		MatchScore:     matchScore,
	}
	if err := s.store.CreateTracked(ctx, item); err != nil {
		return nil, fmt.Errorf("track scholarship: %w", err)
	}
	s.logger.Printf("tracked %s name=%q status=%s", item.ID, item.Name, item.Status)
	return item, nil
}

// UpdateStatus 按状态图切换状态并返回更新后的记录。
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.TrackedScholarshipStatus) (*model.TrackedScholarship, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	current, err := s.store.GetTracked(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load tracked %s: %w", id, err)
	}
	if !IsTransitionAllowed(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	if err := s.store.UpdateTrackedStatus(ctx, id, status); err != nil {
		return nil, err
	}
	current.Status = status
	return current, nil
}

// List 返回全部收藏。
func (s *Service) List(ctx context.Context) ([]model.TrackedScholarship, error) {
	items, err := s.store.ListTracked(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.TrackedScholarship{}
	}
	return items, nil
}

// Remove 删除收藏。
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.DeleteTracked(ctx, id)
}
