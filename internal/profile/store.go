// Package profile 管理本地持久化的用户资料与奖学金筛选条件。
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"scholira/internal/model"
)

const (
	ProfileKey = "scholira-user-profile"
	FiltersKey = "scholira-scholarship-filters"

	anyValue = "Any"
)

// KV 抽象键值存储后端。
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store 在进程启动时构造一次，所有资料读写均通过它完成。
type Store struct {
	kv     KV
	logger *log.Logger

	mu      sync.RWMutex
	profile model.UserProfile
	filters model.ScholarshipFilters
}

// Open 初始化 Store：加载资料，不存在或损坏时使用空资料；筛选条件同理由资料派生。
func Open(ctx context.Context, kv KV, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[profile] ", log.LstdFlags)
	}
	s := &Store{kv: kv, logger: logger}

	p, err := s.ReadProfile(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &model.UserProfile{}
	}
	s.profile = *p

	f, err := s.ReadFilters(ctx, s.profile)
	if err != nil {
		return nil, err
	}
	s.filters = f
	return s, nil
}

// HasCompletedProfile 判断资料是否完整。
func HasCompletedProfile(p model.UserProfile) bool {
	return p.IsComplete()
}

// ReadProfile 读取资料并对默认值做浅合并。键不存在或内容无法解析时返回 nil，
// 仅后端读取失败时返回错误。
func (s *Store) ReadProfile(ctx context.Context) (*model.UserProfile, error) {
	raw, ok, err := s.kv.Get(ctx, ProfileKey)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var p model.UserProfile
	if !mergeOver(raw, model.UserProfile{}, &p) {
		s.logger.Printf("stored profile unreadable, using defaults (bytes=%d)", len(raw))
		return nil, nil
	}
	return &p, nil
}

// SaveProfile 无条件写入资料并更新内存副本。
func (s *Store) SaveProfile(ctx context.Context, p model.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.kv.Set(ctx, ProfileKey, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return nil
}

// ReadFilters 读取已保存的筛选条件，并合并在由资料派生的默认值之上。
func (s *Store) ReadFilters(ctx context.Context, p model.UserProfile) (model.ScholarshipFilters, error) {
	defaults := DeriveFilters(p)

	raw, ok, err := s.kv.Get(ctx, FiltersKey)
	if err != nil {
		return defaults, fmt.Errorf("read filters: %w", err)
	}
	if !ok {
		return defaults, nil
	}

	var f model.ScholarshipFilters
	if !mergeOver(raw, defaults, &f) {
		s.logger.Printf("stored filters unreadable, deriving from profile (bytes=%d)", len(raw))
		return defaults, nil
	}
	return f, nil
}

// SaveFilters 无条件写入筛选条件并更新内存副本。
func (s *Store) SaveFilters(ctx context.Context, f model.ScholarshipFilters) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	if err := s.kv.Set(ctx, FiltersKey, data); err != nil {
		return fmt.Errorf("save filters: %w", err)
	}
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
	return nil
}

// Profile 返回当前资料。
func (s *Store) Profile() model.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Filters 返回当前筛选条件。
func (s *Store) Filters() model.ScholarshipFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// DeriveFilters 由资料派生筛选条件，空字段使用 "Any"。
func DeriveFilters(p model.UserProfile) model.ScholarshipFilters {
	return model.ScholarshipFilters{
		OriginCountry: orAny(p.OriginCountry),
		StudyLevel:    orAny(p.StudyLevel),
		FieldOfStudy:  orAny(p.TargetMajor),
		TargetRegion:  orAny(p.TargetRegion),
		GPA:           p.GPA,
		SAT:           p.SAT,
	}
}

func orAny(v string) string {
	if v == "" {
		return anyValue
	}
	return v
}

// mergeOver 将持久化 JSON 对象浅合并到 defaults 上：已知字段为字符串时覆盖，
// 其他情况保留默认值，未知字段忽略。raw 不是 JSON 对象时返回 false。
func mergeOver[T any](raw []byte, defaults T, out *T) bool {
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil || stored == nil {
		return false
	}

	base, err := toMap(defaults)
	if err != nil {
		return false
	}
	for key, val := range stored {
		if _, known := base[key]; !known {
			continue
		}
		if str, ok := val.(string); ok {
			base[key] = str
		}
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return false
	}
	return json.Unmarshal(merged, out) == nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
