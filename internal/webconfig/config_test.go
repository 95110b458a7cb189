package webconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempConfig 将配置文件指向临时目录，避免污染真实数据目录
func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shadowhawk.json")
	t.Setenv("SHDW_CONFIG", path)
	return path
}

// ============== Defaults ==============

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 18920, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Bind)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Security.MaxLoginAttempts)
	assert.Equal(t, 30, cfg.Security.LockDurationMinutes)
	assert.Equal(t, 6, cfg.Security.PasswordMinLength)
	assert.Equal(t, 30, cfg.Tracking.IntervalSeconds)
	assert.Equal(t, 480, cfg.Tracking.MaxSessionDurationMinutes)
	assert.Equal(t, 60, cfg.Tracking.RecentWindowMinutes)
	assert.False(t, cfg.Alert.NotificationsEnabled)
}

// ============== Load / Save ==============

func TestLoad_GeneratesAndPersistsJWTSecret(t *testing.T) {
	path := useTempConfig(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Auth.JWTSecret, 64) // 32 字节 hex

	// 重新加载应读到同一个密钥
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.Auth.JWTSecret, again.Auth.JWTSecret)
}

func TestLoad_ReadsSavedFile(t *testing.T) {
	useTempConfig(t)

	cfg := Default()
	cfg.Server.Port = 28080
	cfg.Auth.JWTSecret = "fixed-secret"
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 28080, loaded.Server.Port)
	assert.Equal(t, "fixed-secret", loaded.Auth.JWTSecret)
}

func TestLoad_BadJSONFallsBackToDefaults(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cfg, err := Load()
	assert.Error(t, err)
	assert.Equal(t, 18920, cfg.Server.Port)
}

func TestSave_RestrictsPermissions(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, Save(Default()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// ============== Env overrides ==============

func TestLoad_EnvOverrides(t *testing.T) {
	useTempConfig(t)
	t.Setenv("SHDW_PORT", "9999")
	t.Setenv("SHDW_BIND", "127.0.0.1")
	t.Setenv("SHDW_JWT_SECRET", "env-secret")
	t.Setenv("SHDW_LOG_MODE", "debug")
	t.Setenv("SHDW_MAX_LOGIN_ATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 3, cfg.Security.MaxLoginAttempts)
	assert.True(t, cfg.IsDebug())
}

func TestLoad_EnvBadIntIgnored(t *testing.T) {
	useTempConfig(t)
	t.Setenv("SHDW_PORT", "not-a-port")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 18920, cfg.Server.Port)
}

// ============== Helpers ==============

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:18920", cfg.ListenAddr())
	assert.Equal(t, 24*time.Hour, cfg.JWTExpireDuration())
	assert.Equal(t, 30*time.Minute, cfg.LockDuration())
	assert.Equal(t, 30*time.Second, cfg.TrackingInterval())
	assert.Equal(t, 8*time.Hour, cfg.MaxSessionDuration())
	assert.Equal(t, time.Hour, cfg.RecentWindow())
}

func TestDurationHelpers_FallbackOnInvalid(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTExpire = "garbage"
	cfg.Security.LockDurationMinutes = 0
	cfg.Tracking.IntervalSeconds = -1

	assert.Equal(t, 24*time.Hour, cfg.JWTExpireDuration())
	assert.Equal(t, 30*time.Minute, cfg.LockDuration())
	assert.Equal(t, 30*time.Second, cfg.TrackingInterval())
}
