package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"scholira/internal/notifier"
	"scholira/internal/scheduler"
	"scholira/internal/storage"
	"scholira/internal/upstream"
)

// AppConfig 应用配置。
type AppConfig struct {
	Upstream     upstream.Config      `yaml:"upstream"`
	Server       ServerConfig         `yaml:"server"`
	Database     storage.Config       `yaml:"database"`
	ProfileStore ProfileStoreConfig   `yaml:"profile_store"`
	Scheduler    scheduler.Config     `yaml:"scheduler"`
	Email        notifier.EmailConfig `yaml:"email"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ProfileStoreConfig 选择资料存储后端：sqlite（与数据库共用）或 redis。
type ProfileStoreConfig struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
}

// envOverrides 环境变量到配置字段的映射。
var envOverrides = map[string]func(*AppConfig, string){
	"SCHOLIRA_SCHOLARSHIP_ENDPOINT": func(c *AppConfig, v string) { c.Upstream.ScholarshipEndpoint = v },
	"SCHOLIRA_COURSE_ENDPOINT":      func(c *AppConfig, v string) { c.Upstream.CourseEndpoint = v },
	"SCHOLIRA_CHAT_ENDPOINT":        func(c *AppConfig, v string) { c.Upstream.ChatEndpoint = v },
	"SCHOLIRA_UPSTREAM_TIMEOUT":     func(c *AppConfig, v string) { c.Upstream.Timeout = v },
	"SCHOLIRA_ADDR":                 func(c *AppConfig, v string) { c.Server.Addr = v },
	"SCHOLIRA_DB_DRIVER":            func(c *AppConfig, v string) { c.Database.Driver = v },
	"SCHOLIRA_DB_PATH":              func(c *AppConfig, v string) { c.Database.Path = v },
	"SCHOLIRA_DB_DSN":               func(c *AppConfig, v string) { c.Database.DSN = v },
	"SCHOLIRA_PROFILE_BACKEND":      func(c *AppConfig, v string) { c.ProfileStore.Backend = v },
	"SCHOLIRA_REDIS_URL":            func(c *AppConfig, v string) { c.ProfileStore.RedisURL = v },
}

// loadConfig 先加载 .env，再读取 $CONFIG_FILE 或 config.yaml，最后应用 SCHOLIRA_* 覆盖。
func loadConfig() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

// loadConfigFile 读取 YAML 配置，文件不存在时返回默认配置。
func loadConfigFile(path string) (AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("config %s not found, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig, lookup func(string) (string, bool)) {
	for key, set := range envOverrides {
		if v, ok := lookup(key); ok && v != "" {
			set(cfg, v)
		}
	}
}
