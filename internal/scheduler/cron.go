// Package scheduler 周期性地以当前资料刷新推荐，并通知新出现的奖学金。
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"scholira/internal/model"
	"scholira/internal/search"
)

// ErrRunInProgress 上一次刷新尚未结束时返回，本次请求被丢弃。
var ErrRunInProgress = errors.New("refresh already running")

// SnapshotKey 上一次推荐结果在键值存储中的键。
const SnapshotKey = "scholira-recommendations"

const (
	defaultInterval = 12 * time.Hour
	defaultTimeout  = 60 * time.Second
)

// Config 用于调度配置。Interval 可以是 Go duration，也可以是 5 段 cron 表达式。
type Config struct {
	Interval string `yaml:"interval" json:"interval"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// Recommender 执行一次推荐扇出，search.Service 满足该接口。
type Recommender interface {
	Recommend(ctx context.Context, profile model.UserProfile, filters model.ScholarshipFilters) (search.Dashboard, error)
}

// ProfileSource 提供当前资料与筛选条件。
type ProfileSource interface {
	Profile() model.UserProfile
	Filters() model.ScholarshipFilters
}

// KV 保存推荐快照。
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Notifier 用于发送新增奖学金通知。
type Notifier interface {
	Notify(ctx context.Context, items []model.Scholarship) error
}

// Scheduler 负责周期性刷新推荐并比对快照。
type Scheduler struct {
	rec       Recommender
	profiles  ProfileSource
	kv        KV
	notif     Notifier
	logger    *log.Logger
	interval  time.Duration
	cronSpec  string
	cron      cron.Schedule
	timeout   time.Duration
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewScheduler 创建 Scheduler，解析配置的间隔与超时。
func NewScheduler(rec Recommender, profiles ProfileSource, kv KV, n Notifier, cfg Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stdout, "[scheduler] ", log.LstdFlags)
	}
	interval, spec, schedule := parseSchedule(cfg.Interval)
	timeout := defaultTimeout
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	return &Scheduler{
		rec:       rec,
		profiles:  profiles,
		kv:        kv,
		notif:     n,
		logger:    logger,
		interval:  interval,
		cronSpec:  spec,
		cron:      schedule,
		timeout:   timeout,
		newTicker: defaultTicker,
		now:       time.Now,
	}
}

// Start 启动调度循环，直到上下文取消。单次刷新失败只记录日志。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.rec == nil || s.profiles == nil || s.kv == nil {
		return fmt.Errorf("scheduler missing dependencies")
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		s.logger.Printf("refresher started cron=%q", s.cronSpec)
		g.Go(func() error {
			return s.startCron(ctx)
		})
	} else {
		s.logger.Printf("refresher started interval=%s", s.interval)
		tick := s.newTicker(s.interval)
		ch := tick.C()

		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ch:
					s.runLogged(ctx)
				drain:
					for {
						select {
						case <-ch:
							continue
						default:
							break drain
						}
					}
				}
			}
		})
	}

	return g.Wait()
}

// RunOnce 对外暴露单次刷新，返回新出现的奖学金数量；与进行中的刷新重叠时返回 ErrRunInProgress。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.runOnce(ctx)
}

func (s *Scheduler) runLogged(ctx context.Context) {
	n, err := s.runOnce(ctx)
	if errors.Is(err, ErrRunInProgress) {
		s.logger.Printf("refresh skipped: previous run still in progress")
		return
	}
	if err != nil {
		s.logger.Printf("refresh failed: %v", err)
		return
	}
	s.logger.Printf("refresh done new=%d", n)
}

func (s *Scheduler) runOnce(ctx context.Context) (int, error) {
	if s.running.Swap(true) {
		return 0, ErrRunInProgress
	}
	defer s.running.Store(false)

	profile := s.profiles.Profile()
	if !profile.IsComplete() {
		s.logger.Printf("profile incomplete, skipping refresh")
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dash, err := s.rec.Recommend(ctx, profile, s.profiles.Filters())
	if err != nil {
		return 0, fmt.Errorf("recommend: %w", err)
	}
	slot := dash.Scholarships
	if slot.Status != search.StatusSuccess || slot.Result == nil {
		return 0, fmt.Errorf("recommend scholarships: %s", slot.Error)
	}
	current := slot.Result.Scholarships

	previous, err := s.loadSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	fresh := diff(previous, current)

	if err := s.saveSnapshot(ctx, current); err != nil {
		return 0, err
	}

	if s.notif != nil && len(fresh) > 0 {
		if err := s.notif.Notify(ctx, fresh); err != nil {
			return len(fresh), fmt.Errorf("notify: %w", err)
		}
	}
	return len(fresh), nil
}

func (s *Scheduler) loadSnapshot(ctx context.Context) ([]model.Scholarship, error) {
	raw, ok, err := s.kv.Get(ctx, SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var items []model.Scholarship
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Printf("snapshot unreadable, treating all results as new: %v", err)
		return nil, nil
	}
	return items, nil
}

func (s *Scheduler) saveSnapshot(ctx context.Context, items []model.Scholarship) error {
	if items == nil {
		items = []model.Scholarship{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, SnapshotKey, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// diff 返回 current 中不在 previous 里的奖学金，按名称与提供方识别。
func diff(previous, current []model.Scholarship) []model.Scholarship {
	seen := make(map[string]struct{}, len(previous))
	for _, p := range previous {
		seen[identity(p)] = struct{}{}
	}
	var fresh []model.Scholarship
	for _, c := range current {
		key := identity(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

func identity(s model.Scholarship) string {
	return s.Name + "\x00" + s.Provider
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }

func (s *Scheduler) startCron(ctx context.Context) error {
	for {
		next := s.cron.Next(s.now())
		if next.IsZero() {
			return fmt.Errorf("cron spec %q never fires", s.cronSpec)
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.runLogged(ctx)
		}
	}
}

// parseSchedule 优先按 duration 解析，其次按标准 cron 表达式，均失败时回落到默认间隔。
func parseSchedule(value string) (time.Duration, string, cron.Schedule) {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		if d, err := time.ParseDuration(trimmed); err == nil && d > 0 {
			return d, "", nil
		}
		if schedule, err := cron.ParseStandard(trimmed); err == nil {
			return 0, trimmed, schedule
		}
	}
	return defaultInterval, "", nil
}
