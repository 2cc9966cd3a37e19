package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scholira/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// Config 数据库配置，driver 支持 sqlite（默认）与 postgres。
type Config struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Store 封装数据库访问，负责键值设置、收藏奖学金与咨询记录。
type Store struct {
	db *gorm.DB
}

// Open 按配置打开数据库并自动迁移数据表。
func Open(cfg Config) (*Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "scholira.db"
		}
		return NewStore(path)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres dsn required")
		}
		db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return migrate(db)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewStore 创建 SQLite Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return migrate(db)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
}

func migrate(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&model.Setting{}, &model.TrackedScholarship{}, &model.ChatMessage{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// Get 读取键值，不存在时 ok 为 false。
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var setting model.Setting
	err := s.db.WithContext(ctx).Where("setting_key = ?", key).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return []byte(setting.Value), true, nil
}

// Set 写入键值，已存在则覆盖。
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	setting := model.Setting{Key: key, Value: datatypes.JSON(value), UpdatedAt: time.Now()}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting)
	if tx.Error != nil {
		return fmt.Errorf("set setting %s: %w", key, tx.Error)
	}
	return nil
}

// CreateTracked 新增收藏奖学金。
func (s *Store) CreateTracked(ctx context.Context, t *model.TrackedScholarship) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create tracked scholarship: %w", err)
	}
	return nil
}

// ListTracked 返回收藏列表，按创建时间倒序。
func (s *Store) ListTracked(ctx context.Context) ([]model.TrackedScholarship, error) {
	var items []model.TrackedScholarship
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list tracked scholarships: %w", err)
	}
	return items, nil
}

// GetTracked 根据 ID 获取收藏。
func (s *Store) GetTracked(ctx context.Context, id string) (*model.TrackedScholarship, error) {
	var item model.TrackedScholarship
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tracked scholarship: %w", err)
	}
	return &item, nil
}

// UpdateTrackedStatus 更新收藏状态。
func (s *Store) UpdateTrackedStatus(ctx context.Context, id string, status model.TrackedScholarshipStatus) error {
	tx := s.db.WithContext(ctx).Model(&model.TrackedScholarship{}).Where("id = ?", id).Update("status", status)
	if tx.Error != nil {
		return fmt.Errorf("update tracked status: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("update tracked status %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTracked 删除收藏。
func (s *Store) DeleteTracked(ctx context.Context, id string) error {
	tx := s.db.WithContext(ctx).Delete(&model.TrackedScholarship{}, "id = ?", id)
	if tx.Error != nil {
		return fmt.Errorf("delete tracked scholarship: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("delete tracked scholarship %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendMessage 追加一条咨询消息。
func (s *Store) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListMessages 按时间顺序返回完整对话。
func (s *Store) ListMessages(ctx context.Context) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	if err := s.db.WithContext(ctx).Order("timestamp ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return msgs, nil
}

// ClearMessages 清空对话。
func (s *Store) ClearMessages(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&model.ChatMessage{}).Error; err != nil {
		return fmt.Errorf("clear chat messages: %w", err)
	}
	return nil
}
