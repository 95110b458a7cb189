package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shadowhawk/internal/auth"
	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/tracker"
	"shadowhawk/internal/web"
	"shadowhawk/internal/webconfig"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	manager   *auth.Manager
	userRepo  *database.UserRepo
	loginRepo *database.LoginRecordRepo
	auditRepo *database.AuditLogRepo
	trk       *tracker.Tracker
	cfg       *webconfig.Config
}

func NewAuthHandler(cfg *webconfig.Config, manager *auth.Manager, trk *tracker.Tracker) *AuthHandler {
	return &AuthHandler{
		manager:   manager,
		userRepo:  database.NewUserRepo(),
		loginRepo: database.NewLoginRecordRepo(),
		auditRepo: database.NewAuditLogRepo(),
		trk:       trk,
		cfg:       cfg,
	}
}

type loginRequest struct {
	Username string                `json:"username"`
	Password string                `json:"password"`
	Device   database.DeviceInfo   `json:"device"`
	Location database.LocationInfo `json:"location"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt string        `json:"expires_at"`
	SessionID string        `json:"session_id"`
	User      loginUserInfo `json:"user"`
}

type loginUserInfo struct {
	ID            uint   `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Department    string `json:"department"`
	SecurityScore int    `json:"security_score"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.FailErr(w, r, web.ErrInvalidBody)
		return
	}

	meta := auth.Meta{
		IP:        web.ClientIP(r),
		UserAgent: r.UserAgent(),
		Device:    req.Device.DeviceType,
		Location:  req.Location.City,
	}

	user, err := h.manager.Authenticate(req.Username, req.Password, meta)
	if err != nil {
		var lockErr *auth.LockedError
		var credErr *auth.CredentialsError
		switch {
		case errors.Is(err, auth.ErrEmptyCredentials):
			web.FailErr(w, r, web.ErrEmptyCredentials)
		case errors.Is(err, auth.ErrUnsafeInput):
			web.FailErr(w, r, web.ErrUnsafeInput)
		case errors.As(err, &lockErr):
			web.FailErr(w, r, web.ErrAccountLocked)
		case errors.As(err, &credErr):
			if credErr.Remaining >= 0 {
				web.Fail(w, r, web.ErrInvalidPassword.Code,
					fmt.Sprintf("invalid username or password, %d attempts remaining", credErr.Remaining),
					web.ErrInvalidPassword.HTTPStatus)
			} else {
				web.FailErr(w, r, web.ErrInvalidPassword)
			}
		default:
			web.FailErr(w, r, web.ErrLoginFailed)
		}
		return
	}

	// 成功登录：调用方负责写成功记录并开启会话
	sessionID := "sess_" + uuid.NewString()
	h.loginRepo.Create(&database.LoginRecord{
		UserID:    user.ID,
		Username:  user.Username,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Device:    req.Device.DeviceType,
		Location:  req.Location.City,
		Status:    constants.LoginSuccess,
		Risk:      constants.RiskLow,
	})

	session := tracker.Session{
		UserID:    user.ID,
		Username:  user.Username,
		SessionID: sessionID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}
	h.trk.StartSession(session)
	if _, err := h.trk.Record(session, tracker.Event{
		Action:   constants.ActionLogin,
		Device:   req.Device,
		Location: req.Location,
	}); err != nil && !errors.Is(err, tracker.ErrStopped) {
		logger.Auth.Warn().Err(err).Msg("login activity not recorded")
	}

	token, expiresAt, err := web.GenerateJWT(user.ID, user.Username, user.Role, sessionID,
		h.cfg.Auth.JWTSecret, h.cfg.JWTExpireDuration())
	if err != nil {
		logger.Auth.Error().Err(err).Msg("JWT generation failed")
		web.FailErr(w, r, web.ErrLoginFailed)
		return
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   user.ID,
		Username: user.Username,
		Action:   constants.ActionLogin,
		Result:   "success",
		IP:       meta.IP,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "hawk_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	web.OK(w, r, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		SessionID: sessionID,
		User: loginUserInfo{
			ID:            user.ID,
			Username:      user.Username,
			Name:          user.Name,
			Role:          user.Role,
			Department:    user.Department,
			SecurityScore: user.SecurityScore,
		},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := web.GetSessionID(r)
	if sessionID != "" {
		session := tracker.Session{
			UserID:    web.GetUserID(r),
			Username:  web.GetUsername(r),
			SessionID: sessionID,
			IP:        web.ClientIP(r),
			UserAgent: r.UserAgent(),
		}
		if _, err := h.trk.Record(session, tracker.Event{Action: constants.ActionLogout}); err != nil && !errors.Is(err, tracker.ErrStopped) {
			logger.Auth.Warn().Err(err).Msg("logout activity not recorded")
		}
		h.trk.EndSession(sessionID)
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionLogout,
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "hawk_token",
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-1 * time.Hour),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	web.OK(w, r, map[string]string{"message": "logged out"})
}

type setupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// Setup 首次启动创建管理员，仅当用户表为空时允许
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	count, err := h.userRepo.Count()
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	if count > 0 {
		web.FailErr(w, r, web.ErrSetupDone)
		return
	}

	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.FailErr(w, r, web.ErrInvalidBody)
		return
	}
	if req.Username == "" || len(req.Password) < h.cfg.Security.PasswordMinLength {
		web.FailErr(w, r, web.ErrEmptyCredentials)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		web.FailErr(w, r, web.ErrEncrypt)
		return
	}

	user := &database.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Name:         req.Name,
		Email:        req.Email,
		Role:         constants.RoleAdmin,
		IsActive:     true,
	}
	if err := h.userRepo.Create(user); err != nil {
		web.FailErr(w, r, web.ErrUserCreateFail)
		return
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   user.ID,
		Username: user.Username,
		Action:   constants.ActionSetup,
		Result:   "success",
		IP:       web.ClientIP(r),
	})

	logger.Auth.Info().Str("username", user.Username).Msg("admin account created")
	web.OK(w, r, map[string]string{"message": "ok"})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.FailErr(w, r, web.ErrInvalidBody)
		return
	}
	if len(req.NewPassword) < h.cfg.Security.PasswordMinLength {
		web.FailErr(w, r, web.ErrPasswordTooShort)
		return
	}

	userID := web.GetUserID(r)
	user, err := h.userRepo.FindByID(userID)
	if err != nil {
		web.FailErr(w, r, web.ErrUserNotFound)
		return
	}

	if !h.manager.VerifyPassword(user, req.OldPassword) {
		h.auditRepo.Create(&database.AuditLog{
			UserID:   user.ID,
			Username: user.Username,
			Action:   constants.ActionPasswordChange,
			Result:   "failed",
			Detail:   "wrong old password",
			IP:       web.ClientIP(r),
		})
		web.FailErr(w, r, web.ErrOldPasswordWrong)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		web.FailErr(w, r, web.ErrEncrypt)
		return
	}

	h.userRepo.UpdatePassword(user.ID, string(hash))

	h.auditRepo.Create(&database.AuditLog{
		UserID:   user.ID,
		Username: user.Username,
		Action:   constants.ActionPasswordChange,
		Result:   "success",
		IP:       web.ClientIP(r),
	})

	logger.Auth.Info().Str("username", user.Username).Msg("password changed")
	web.OK(w, r, map[string]string{"message": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := web.GetUserID(r)
	user, err := h.userRepo.FindByID(userID)
	if err != nil {
		web.FailErr(w, r, web.ErrUserNotFound)
		return
	}
	web.OK(w, r, loginUserInfo{
		ID:            user.ID,
		Username:      user.Username,
		Name:          user.Name,
		Role:          user.Role,
		Department:    user.Department,
		SecurityScore: user.SecurityScore,
	})
}
