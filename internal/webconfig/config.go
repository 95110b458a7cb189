package webconfig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	Port        int      `json:"port"`
	Bind        string   `json:"bind"`
	CORSOrigins []string `json:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	JWTExpire string `json:"jwt_expire"`
}

type DatabaseConfig struct {
	Driver      string `json:"driver"`
	SQLitePath  string `json:"sqlite_path"`
	PostgresDSN string `json:"postgres_dsn"`
}

type LogConfig struct {
	Level      string `json:"level"`
	Mode       string `json:"mode"`
	FilePath   string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// SecurityConfig 认证与锁定策略
type SecurityConfig struct {
	MaxLoginAttempts    int `json:"max_login_attempts"`
	LockDurationMinutes int `json:"lock_duration_minutes"`
	PasswordMinLength   int `json:"password_min_length"`
}

// TrackingConfig 活动追踪策略
type TrackingConfig struct {
	IntervalSeconds           int `json:"interval_seconds"`
	MaxSessionDurationMinutes int `json:"max_session_duration_minutes"`
	RecentWindowMinutes       int `json:"recent_window_minutes"`
}

type AlertConfig struct {
	NotificationsEnabled bool     `json:"notifications_enabled"`
	WebhookURL           string   `json:"webhook_url"`
	Channels             []string `json:"channels"`
}

type Config struct {
	Server   ServerConfig   `json:"server"`
	Auth     AuthConfig     `json:"auth"`
	Database DatabaseConfig `json:"database"`
	Log      LogConfig      `json:"log"`
	Security SecurityConfig `json:"security"`
	Tracking TrackingConfig `json:"tracking"`
	Alert    AlertConfig    `json:"alert"`
}

// defaultDataDir 返回 ShadowHawk 自身的数据目录（存放 shadowhawk.db/json/log）
func defaultDataDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "./data"
	}
	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, "data")
}

func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:        18920,
			Bind:        "0.0.0.0",
			CORSOrigins: []string{},
		},
		Auth: AuthConfig{
			JWTSecret: "",
			JWTExpire: "24h",
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(dataDir, "shadowhawk.db"),
		},
		Log: LogConfig{
			Level:      "info",
			Mode:       "production",
			FilePath:   filepath.Join(dataDir, "shadowhawk.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:    5,
			LockDurationMinutes: 30,
			PasswordMinLength:   6,
		},
		Tracking: TrackingConfig{
			IntervalSeconds:           30,
			MaxSessionDurationMinutes: 480,
			RecentWindowMinutes:       60,
		},
		Alert: AlertConfig{
			NotificationsEnabled: false,
			Channels:             []string{},
		},
	}
}

func ConfigPath() string {
	if custom := strings.TrimSpace(os.Getenv("SHDW_CONFIG")); custom != "" {
		return custom
	}
	return filepath.Join(defaultDataDir(), "shadowhawk.json")
}

func Load() (Config, error) {
	cfg := Default()

	// Layer 1: config file
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Default(), err
		}
	}

	// Layer 2: environment variables override
	applyEnvOverrides(&cfg)

	// Layer 3: generate JWT secret if empty and persist it
	if cfg.Auth.JWTSecret == "" {
		secret, err := generateSecret(32)
		if err != nil {
			return cfg, err
		}
		cfg.Auth.JWTSecret = secret
		// Persist so the secret survives restarts
		_ = Save(cfg)
	}

	return cfg, nil
}

func Save(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func (c *Config) ListenAddr() string {
	return c.Server.Bind + ":" + strconv.Itoa(c.Server.Port)
}

func (c *Config) JWTExpireDuration() time.Duration {
	d, err := time.ParseDuration(c.Auth.JWTExpire)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) LockDuration() time.Duration {
	if c.Security.LockDurationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Security.LockDurationMinutes) * time.Minute
}

func (c *Config) TrackingInterval() time.Duration {
	if c.Tracking.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Tracking.IntervalSeconds) * time.Second
}

func (c *Config) MaxSessionDuration() time.Duration {
	if c.Tracking.MaxSessionDurationMinutes <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(c.Tracking.MaxSessionDurationMinutes) * time.Minute
}

func (c *Config) RecentWindow() time.Duration {
	if c.Tracking.RecentWindowMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Tracking.RecentWindowMinutes) * time.Minute
}

func (c *Config) IsDebug() bool {
	return strings.EqualFold(c.Log.Mode, "debug")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHDW_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("SHDW_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("SHDW_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SHDW_DB_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("SHDW_DB_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("SHDW_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("SHDW_JWT_EXPIRE"); v != "" {
		cfg.Auth.JWTExpire = v
	}
	if v := os.Getenv("SHDW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SHDW_LOG_MODE"); v != "" {
		cfg.Log.Mode = v
	}
	if v := os.Getenv("SHDW_LOG_FILE"); v != "" {
		cfg.Log.FilePath = v
	}
	if v := os.Getenv("SHDW_MAX_LOGIN_ATTEMPTS"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Security.MaxLoginAttempts = p
		}
	}
	if v := os.Getenv("SHDW_LOCK_DURATION_MINUTES"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Security.LockDurationMinutes = p
		}
	}
	if v := os.Getenv("SHDW_PASSWORD_MIN_LENGTH"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Security.PasswordMinLength = p
		}
	}
	if v := os.Getenv("SHDW_TRACKING_INTERVAL"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Tracking.IntervalSeconds = p
		}
	}
	if v := os.Getenv("SHDW_MAX_SESSION_MINUTES"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Tracking.MaxSessionDurationMinutes = p
		}
	}
	if v := os.Getenv("SHDW_ALERT_ENABLED"); v != "" {
		cfg.Alert.NotificationsEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SHDW_ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alert.WebhookURL = v
	}
}

func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
