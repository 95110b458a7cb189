package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/security"
	"shadowhawk/internal/webconfig"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmptyCredentials = errors.New("username and password required")
	ErrUnsafeInput      = errors.New("input contains injection patterns")
)

// LockedError 账户处于锁定期，凭据正确与否都拒绝
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// CredentialsError 凭据错误。Remaining 为剩余尝试次数，
// 用户不存在时为 -1（对外不区分两种失败）
type CredentialsError struct {
	Remaining int
}

func (e *CredentialsError) Error() string {
	if e.Remaining >= 0 {
		return fmt.Sprintf("invalid credentials, %d attempts remaining", e.Remaining)
	}
	return "invalid credentials"
}

// Meta 登录请求的客户端元数据，用于失败记录
type Meta struct {
	IP        string
	UserAgent string
	Device    string
	Location  string
}

// Manager 凭据验证与失败锁定。每次调用都是一个同步决策，
// 不在内部重试。
type Manager struct {
	userRepo  *database.UserRepo
	loginRepo *database.LoginRecordRepo
	auditRepo *database.AuditLogRepo
	alerts    *security.AlertSink
	cfg       *webconfig.Config
	now       func() time.Time
}

func NewManager(cfg *webconfig.Config) *Manager {
	return &Manager{
		userRepo:  database.NewUserRepo(),
		loginRepo: database.NewLoginRecordRepo(),
		auditRepo: database.NewAuditLogRepo(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock 注入时钟（测试用）
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// SetAlertSink 注入告警出口，锁定事件经由它发出
func (m *Manager) SetAlertSink(sink *security.AlertSink) { m.alerts = sink }

// Authenticate 验证凭据。成功时重置失败计数并返回用户记录；
// 调用方负责创建成功的 LoginRecord 并开启会话。
func (m *Manager) Authenticate(username, password string, meta Meta) (*database.User, error) {
	username = security.SanitizeUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, ErrEmptyCredentials
	}

	// 注入检测先于账户查询，命中时不区分账户是否存在
	if security.ContainsInjection(username) || security.ContainsInjection(password) {
		m.auditRepo.Create(&database.AuditLog{
			Action: constants.ActionLoginBlocked,
			Result: "blocked",
			Detail: "injection pattern in login input",
			IP:     meta.IP,
		})
		logger.Auth.Warn().Str("ip", meta.IP).Msg("login blocked: injection pattern in input")
		return nil, ErrUnsafeInput
	}

	user, err := m.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m.auditRepo.Create(&database.AuditLog{
				Username: username,
				Action:   constants.ActionLoginFailed,
				Result:   "failed",
				Detail:   "user not found",
				IP:       meta.IP,
			})
			logger.Auth.Warn().Str("username", username).Str("ip", meta.IP).Msg("login failed: user not found")
			return nil, &CredentialsError{Remaining: -1}
		}
		return nil, err
	}

	now := m.now()

	// 惰性解锁：锁定期已过则先清锁再验证凭据
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		if err := m.userRepo.Unlock(user.ID); err != nil {
			return nil, err
		}
		user.LockedUntil = nil
		user.FailedAttempts = 0
		user.IsActive = true
		m.auditRepo.Create(&database.AuditLog{
			UserID:   user.ID,
			Username: user.Username,
			Action:   constants.ActionAccountUnlock,
			Result:   "success",
			Detail:   "lock expired",
			IP:       meta.IP,
		})
		logger.Auth.Info().Str("username", user.Username).Msg("lock expired, account reactivated")
	}

	// 仍在锁定期：凭据正确与否都拒绝
	if user.Locked(now) {
		m.recordAttempt(user, meta, constants.LoginSuspended, constants.RiskHigh)
		m.auditRepo.Create(&database.AuditLog{
			UserID:   user.ID,
			Username: user.Username,
			Action:   constants.ActionLoginFailed,
			Result:   "failed",
			Detail:   "account locked",
			IP:       meta.IP,
		})
		logger.Auth.Warn().Str("username", user.Username).Str("ip", meta.IP).Msg("login failed: account locked")
		return nil, &LockedError{Until: *user.LockedUntil}
	}

	if !m.verifyPassword(user, password) {
		return nil, m.handleFailure(user, meta)
	}

	// 成功：重置计数、刷新最近登录
	if err := m.userRepo.RecordLogin(user.ID, now); err != nil {
		return nil, err
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.IsActive = true
	user.LastLogin = &now

	logger.Auth.Info().Str("username", user.Username).Str("ip", meta.IP).Msg("user logged in")
	return user, nil
}

// verifyPassword 验证密码。"$2" 前缀按 bcrypt 校验，否则按遗留
// 明文常量时间比较；明文命中后立即迁移为 bcrypt。
func (m *Manager) verifyPassword(user *database.User, password string) bool {
	if strings.HasPrefix(user.PasswordHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
	}

	if subtle.ConstantTimeCompare([]byte(user.PasswordHash), []byte(password)) != 1 {
		return false
	}

	// 遗留明文口令一次性迁移
	if hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); err == nil {
		if err := m.userRepo.UpdatePassword(user.ID, string(hash)); err != nil {
			logger.Auth.Error().Err(err).Str("username", user.Username).Msg("遗留口令迁移失败")
		} else {
			user.PasswordHash = string(hash)
			logger.Auth.Info().Str("username", user.Username).Msg("遗留明文口令已迁移为 bcrypt")
		}
	}
	return true
}

// VerifyPassword 校验用户当前口令，走与登录相同的路径（bcrypt 或
// 遗留明文），不做失败计数。改口令等需要二次确认的场景使用。
func (m *Manager) VerifyPassword(user *database.User, password string) bool {
	return m.verifyPassword(user, password)
}

// handleFailure 失败计数递增，达到阈值即锁定并停用账户
func (m *Manager) handleFailure(user *database.User, meta Meta) error {
	if err := m.userRepo.IncrementFailedAttempts(user.ID); err != nil {
		return err
	}
	attempts := user.FailedAttempts + 1

	m.auditRepo.Create(&database.AuditLog{
		UserID:   user.ID,
		Username: user.Username,
		Action:   constants.ActionLoginFailed,
		Result:   "failed",
		Detail:   "wrong password",
		IP:       meta.IP,
	})

	if attempts >= m.cfg.Security.MaxLoginAttempts {
		until := m.now().Add(m.cfg.LockDuration())
		if err := m.Lock(user, m.cfg.LockDuration()); err != nil {
			return err
		}
		m.recordAttempt(user, meta, constants.LoginFailed, constants.RiskHigh)
		if m.alerts != nil {
			m.alerts.Raise(constants.RiskHigh, "account locked",
				fmt.Sprintf("user %s locked after %d failed attempts from %s", user.Username, attempts, meta.IP))
		}
		logger.Auth.Warn().
			Str("username", user.Username).
			Str("ip", meta.IP).
			Time("until", until).
			Msg("account locked: too many failed attempts")
		return &LockedError{Until: until}
	}

	m.recordAttempt(user, meta, constants.LoginFailed, constants.RiskMedium)
	remaining := m.cfg.Security.MaxLoginAttempts - attempts
	logger.Auth.Warn().
		Str("username", user.Username).
		Str("ip", meta.IP).
		Int("remaining", remaining).
		Msg("login failed: wrong password")
	return &CredentialsError{Remaining: remaining}
}

// Lock 锁定账户并停用。锁定期内 is_active 必须为 false。
func (m *Manager) Lock(user *database.User, d time.Duration) error {
	until := m.now().Add(d)
	if err := m.userRepo.Lock(user.ID, until); err != nil {
		return err
	}
	user.LockedUntil = &until
	user.IsActive = false

	m.auditRepo.Create(&database.AuditLog{
		UserID:   user.ID,
		Username: user.Username,
		Action:   constants.ActionAccountLocked,
		Result:   "locked",
		Detail:   "too many failed attempts",
	})
	return nil
}

// recordAttempt 写入失败/拒绝的登录记录。成功记录由调用方负责。
func (m *Manager) recordAttempt(user *database.User, meta Meta, status, risk string) {
	rec := &database.LoginRecord{
		UserID:    user.ID,
		Username:  user.Username,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Device:    meta.Device,
		Location:  meta.Location,
		Status:    status,
		Risk:      risk,
	}
	if err := m.loginRepo.Create(rec); err != nil {
		logger.Auth.Error().Err(err).Str("username", user.Username).Msg("登录记录写入失败")
	}
}
