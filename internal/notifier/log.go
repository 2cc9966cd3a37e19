package notifier

import (
	"context"
	"errors"
	"log"
	"os"

	"scholira/internal/model"
)

// Notifier 接收新出现的推荐奖学金。
type Notifier interface {
	Notify(ctx context.Context, items []model.Scholarship) error
}

// LogNotifier 仅打印新增奖学金，适合开发阶段使用。
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier 创建日志通知器，未提供 logger 时默认输出到标准输出。
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

// Notify 逐条打印新增奖学金。
func (n LogNotifier) Notify(ctx context.Context, items []model.Scholarship) error {
	for _, s := range items {
		n.logger.Printf("new scholarship: %s (%s) deadline=%s %s", s.Name, s.Provider, s.Deadline, s.ApplicationURL)
	}
	return nil
}

// Multi 依次调用全部通知器，单个失败不影响其余。
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, items []model.Scholarship) error {
	if len(items) == 0 {
		return nil
	}
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
