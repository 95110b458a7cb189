package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/security"
	"shadowhawk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func createTestUser(t *testing.T, username, password string) *database.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &database.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         constants.RoleViewer,
		IsActive:     true,
	}
	require.NoError(t, database.NewUserRepo().Create(user))
	return user
}

func testMeta() Meta {
	return Meta{IP: "10.0.0.1", UserAgent: "test-agent", Device: "desktop", Location: "Berlin"}
}

// ============== Authenticate ==============

func TestAuthenticate_Success(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	createTestUser(t, "sarah", "hunter22")

	mgr := NewManager(testutil.TestConfig())
	user, err := mgr.Authenticate("sarah", "hunter22", testMeta())
	require.NoError(t, err)
	assert.Equal(t, "sarah", user.Username)
	assert.Equal(t, 0, user.FailedAttempts)
	assert.True(t, user.IsActive)
	assert.NotNil(t, user.LastLogin)
}

func TestAuthenticate_EmptyCredentials(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	mgr := NewManager(testutil.TestConfig())

	_, err := mgr.Authenticate("", "pass", testMeta())
	assert.ErrorIs(t, err, ErrEmptyCredentials)

	_, err = mgr.Authenticate("user", "   ", testMeta())
	assert.ErrorIs(t, err, ErrEmptyCredentials)
}

func TestAuthenticate_InjectionBlocked(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	mgr := NewManager(testutil.TestConfig())

	for _, input := range []string{
		"<script>alert(1)</script>",
		"javascript:alert(1)",
		`x" onerror=alert(1)`,
		"< iframe src=x>",
	} {
		_, err := mgr.Authenticate(input, "whatever", testMeta())
		assert.ErrorIs(t, err, ErrUnsafeInput, "input %q should be rejected", input)
	}

	// 拦截要先于账户查询，审计里留 blocked 记录
	logs, total, err := database.NewAuditLogRepo().List(database.AuditFilter{
		Action: constants.ActionLoginBlocked,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.NotEmpty(t, logs)
}

func TestAuthenticate_UnknownUserUndisclosed(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	mgr := NewManager(testutil.TestConfig())
	_, err := mgr.Authenticate("nobody", "pass123", testMeta())

	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, -1, credErr.Remaining)
	assert.NotContains(t, err.Error(), "attempts remaining")
}

func TestAuthenticate_WrongPasswordCountsDown(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	createTestUser(t, "sarah", "hunter22")
	mgr := NewManager(testutil.TestConfig())

	for i := 1; i <= 4; i++ {
		_, err := mgr.Authenticate("sarah", "wrong", testMeta())
		var credErr *CredentialsError
		require.ErrorAs(t, err, &credErr, "attempt %d", i)
		assert.Equal(t, 5-i, credErr.Remaining, "attempt %d", i)
	}
}

func TestAuthenticate_LockoutAtThreshold(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	user := createTestUser(t, "sarah", "hunter22")
	mgr := NewManager(testutil.TestConfig())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mgr.SetClock(func() time.Time { return base })

	for i := 0; i < 4; i++ {
		_, err := mgr.Authenticate("sarah", "wrong", testMeta())
		var credErr *CredentialsError
		require.ErrorAs(t, err, &credErr)
	}

	// 第 5 次失败触发锁定
	_, err := mgr.Authenticate("sarah", "wrong", testMeta())
	var lockErr *LockedError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, base.Add(30*time.Minute), lockErr.Until)

	// 锁定期内 is_active 必须为 false
	stored, err2 := database.NewUserRepo().FindByID(user.ID)
	require.NoError(t, err2)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.LockedUntil)
	assert.Equal(t, 5, stored.FailedAttempts)

	// 锁定期内凭据正确与否都拒绝
	_, err = mgr.Authenticate("sarah", "hunter22", testMeta())
	require.ErrorAs(t, err, &lockErr)

	// 锁定期内的尝试写 suspended 记录
	records, _, err := database.NewLoginRecordRepo().List(database.LoginRecordFilter{
		Status: constants.LoginSuspended,
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, constants.RiskHigh, records[0].Risk)
}

func TestAuthenticate_LockoutRaisesAlert(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	createTestUser(t, "sarah", "hunter22")
	cfg := testutil.TestConfig()
	mgr := NewManager(cfg)
	mgr.SetAlertSink(security.NewAlertSink(nil, false))

	for i := 0; i < cfg.Security.MaxLoginAttempts; i++ {
		mgr.Authenticate("sarah", "wrong", testMeta())
	}

	// 触发锁定的那次失败要落一条告警
	alerts, err := database.NewAlertRepo().Recent(10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, constants.RiskHigh, alerts[0].Risk)
	assert.Equal(t, "account locked", alerts[0].Message)
	assert.Contains(t, alerts[0].Detail, "sarah")
	assert.Contains(t, alerts[0].Detail, "10.0.0.1")
}

func TestAuthenticate_LazyUnlockAfterExpiry(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	user := createTestUser(t, "sarah", "hunter22")
	mgr := NewManager(testutil.TestConfig())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mgr.SetClock(func() time.Time { return base })

	require.NoError(t, mgr.Lock(user, 30*time.Minute))

	// 锁定期刚过一秒，下一次尝试先解锁再验证
	mgr.SetClock(func() time.Time { return base.Add(30*time.Minute + time.Second) })

	logged, err := mgr.Authenticate("sarah", "hunter22", testMeta())
	require.NoError(t, err)
	assert.True(t, logged.IsActive)
	assert.Nil(t, logged.LockedUntil)
	assert.Equal(t, 0, logged.FailedAttempts)

	stored, err := database.NewUserRepo().FindByID(user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Nil(t, stored.LockedUntil)
}

func TestAuthenticate_SuccessResetsCounter(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	user := createTestUser(t, "sarah", "hunter22")
	mgr := NewManager(testutil.TestConfig())

	for i := 0; i < 3; i++ {
		mgr.Authenticate("sarah", "wrong", testMeta())
	}
	stored, _ := database.NewUserRepo().FindByID(user.ID)
	assert.Equal(t, 3, stored.FailedAttempts)

	_, err := mgr.Authenticate("sarah", "hunter22", testMeta())
	require.NoError(t, err)

	stored, _ = database.NewUserRepo().FindByID(user.ID)
	assert.Equal(t, 0, stored.FailedAttempts)

	// 计数清零后又有完整的 5 次余量
	_, err = mgr.Authenticate("sarah", "wrong", testMeta())
	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 4, credErr.Remaining)
}

// ============== Legacy passwords ==============

func TestAuthenticate_LegacyPlaintextMigratesToBcrypt(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	// 遗留记录：口令字段存的是明文
	user := &database.User{
		Username:     "legacy",
		PasswordHash: "oldplain99",
		Role:         constants.RoleViewer,
		IsActive:     true,
	}
	require.NoError(t, database.NewUserRepo().Create(user))

	mgr := NewManager(testutil.TestConfig())
	logged, err := mgr.Authenticate("legacy", "oldplain99", testMeta())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(logged.PasswordHash, "$2"), "password should be migrated to bcrypt")

	stored, err := database.NewUserRepo().FindByID(user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("oldplain99")))

	// 迁移后旧明文不再以明文形式匹配其它输入
	_, err = mgr.Authenticate("legacy", "oldplain99x", testMeta())
	var credErr *CredentialsError
	assert.True(t, errors.As(err, &credErr))
}

func TestAuthenticate_LegacyWrongPasswordNotMigrated(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	user := &database.User{
		Username:     "legacy",
		PasswordHash: "oldplain99",
		Role:         constants.RoleViewer,
		IsActive:     true,
	}
	require.NoError(t, database.NewUserRepo().Create(user))

	mgr := NewManager(testutil.TestConfig())
	_, err := mgr.Authenticate("legacy", "guess", testMeta())
	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)

	stored, _ := database.NewUserRepo().FindByID(user.ID)
	assert.Equal(t, "oldplain99", stored.PasswordHash)
}
