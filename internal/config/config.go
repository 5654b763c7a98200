package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabasePath string        `yaml:"database_path"`
	LogLevel     string        `yaml:"log_level"`
	Hub          HubConfig     `yaml:"hub"`
	Health       HealthConfig  `yaml:"health"`
	Monitor      MonitorConfig `yaml:"monitor"`
}

type HubConfig struct {
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type MonitorConfig struct {
	SampleIntervalSeconds int `yaml:"sample_interval_seconds"`
	InactiveAfterMinutes  int `yaml:"inactive_after_minutes"`
	RetentionDays         int `yaml:"retention_days"`
	HalfLifeHours         int `yaml:"half_life_hours"`
	TargetHoursPerDay     int `yaml:"target_hours_per_day"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "/data/activity_samples.sqlite",
		LogLevel:     "info",
		Hub: HubConfig{
			APIURL: "http://127.0.0.1:8081/hub/api",
		},
		Health: HealthConfig{Enabled: true, Addr: ":8080"},
		Monitor: MonitorConfig{
			SampleIntervalSeconds: 600,
			InactiveAfterMinutes:  60,
			RetentionDays:         7,
			HalfLifeHours:         72,
			TargetHoursPerDay:     8,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Hub.APIURL = envString("JUPYTERHUB_API_URL", cfg.Hub.APIURL)
	cfg.Hub.APIToken = envString("JUPYTERHUB_API_TOKEN", cfg.Hub.APIToken)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Monitor.SampleIntervalSeconds = envInt("JUPYTERHUB_ACTIVITYMON_SAMPLE_INTERVAL", cfg.Monitor.SampleIntervalSeconds)
	cfg.Monitor.InactiveAfterMinutes = envInt("JUPYTERHUB_ACTIVITYMON_INACTIVE_AFTER", cfg.Monitor.InactiveAfterMinutes)
	cfg.Monitor.RetentionDays = envInt("JUPYTERHUB_ACTIVITYMON_RETENTION_DAYS", cfg.Monitor.RetentionDays)
	cfg.Monitor.HalfLifeHours = envInt("JUPYTERHUB_ACTIVITYMON_HALF_LIFE", cfg.Monitor.HalfLifeHours)
	cfg.Monitor.TargetHoursPerDay = envInt("JUPYTERHUB_ACTIVITYMON_TARGET_HOURS", cfg.Monitor.TargetHoursPerDay)
}

func (c Config) Validate() error {
	return c.Monitor.Validate()
}

func (m MonitorConfig) Validate() error {
	if m.SampleIntervalSeconds < 60 || m.SampleIntervalSeconds > 86400 {
		return fmt.Errorf("sample_interval_seconds=%d out of range (60-86400)", m.SampleIntervalSeconds)
	}
	if m.InactiveAfterMinutes < 1 || m.InactiveAfterMinutes > 1440 {
		return fmt.Errorf("inactive_after_minutes=%d out of range (1-1440)", m.InactiveAfterMinutes)
	}
	if m.RetentionDays < 1 || m.RetentionDays > 365 {
		return fmt.Errorf("retention_days=%d out of range (1-365)", m.RetentionDays)
	}
	if m.HalfLifeHours < 1 || m.HalfLifeHours > 168 {
		return fmt.Errorf("half_life_hours=%d out of range (1-168)", m.HalfLifeHours)
	}
	if m.TargetHoursPerDay < 1 || m.TargetHoursPerDay > 24 {
		return fmt.Errorf("target_hours_per_day=%d out of range (1-24)", m.TargetHoursPerDay)
	}
	return nil
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
