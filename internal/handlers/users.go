package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/security"
	"shadowhawk/internal/web"
	"shadowhawk/internal/webconfig"

	"golang.org/x/crypto/bcrypt"
)

type UserHandler struct {
	userRepo  *database.UserRepo
	auditRepo *database.AuditLogRepo
	cfg       *webconfig.Config
}

func NewUserHandler(cfg *webconfig.Config) *UserHandler {
	return &UserHandler{
		userRepo:  database.NewUserRepo(),
		auditRepo: database.NewAuditLogRepo(),
		cfg:       cfg,
	}
}

type userView struct {
	ID            uint   `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Department    string `json:"department"`
	SecurityScore int    `json:"security_score"`
	IsActive      bool   `json:"is_active"`
	LastLogin     string `json:"last_login,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toUserView(u *database.User) userView {
	v := userView{
		ID:            u.ID,
		Username:      u.Username,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		Department:    u.Department,
		SecurityScore: u.SecurityScore,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if u.LastLogin != nil {
		v.LastLogin = u.LastLogin.Format("2006-01-02 15:04:05")
	}
	return v
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.List()
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toUserView(&users[i]))
	}
	web.OK(w, r, views)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		web.FailErr(w, r, web.ErrInvalidParam)
		return
	}
	user, err := h.userRepo.FindByID(uint(id))
	if err != nil {
		web.FailErr(w, r, web.ErrUserNotFound)
		return
	}
	web.OK(w, r, toUserView(user))
}

type createUserRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.FailErr(w, r, web.ErrInvalidBody)
		return
	}

	req.Username = security.SanitizeUsername(req.Username)
	if req.Username == "" || req.Password == "" {
		web.FailErr(w, r, web.ErrEmptyCredentials)
		return
	}
	if security.ContainsInjection(req.Username) || security.ContainsInjection(req.Name) {
		web.FailErr(w, r, web.ErrUnsafeInput)
		return
	}
	if len(req.Password) < h.cfg.Security.PasswordMinLength {
		web.FailErr(w, r, web.ErrPasswordTooShort)
		return
	}
	if req.Role == "" {
		req.Role = constants.RoleViewer
	}
	if !slices.Contains(constants.AllRoles, req.Role) {
		web.FailErr(w, r, web.ErrInvalidRole)
		return
	}

	if _, err := h.userRepo.FindByUsername(req.Username); err == nil {
		web.FailErr(w, r, web.ErrUserExists)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		web.FailErr(w, r, web.ErrEncrypt)
		return
	}

	user := &database.User{
		Username:      req.Username,
		PasswordHash:  string(hash),
		Name:          req.Name,
		Email:         req.Email,
		Role:          req.Role,
		Department:    req.Department,
		SecurityScore: 50,
		IsActive:      true,
	}
	if err := h.userRepo.Create(user); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			web.FailErr(w, r, web.ErrUserExists)
			return
		}
		logger.Auth.Error().Err(err).Str("username", req.Username).Msg("user creation failed")
		web.FailErr(w, r, web.ErrUserCreateFail)
		return
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionUserCreate,
		Detail:   user.Username,
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	web.OK(w, r, toUserView(user))
}

type updateUserRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Role       *string `json:"role"`
	Department *string `json:"department"`
	IsActive   *bool   `json:"is_active"`
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		web.FailErr(w, r, web.ErrInvalidParam)
		return
	}
	user, err := h.userRepo.FindByID(uint(id))
	if err != nil {
		web.FailErr(w, r, web.ErrUserNotFound)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.FailErr(w, r, web.ErrInvalidBody)
		return
	}

	if req.Role != nil {
		if !slices.Contains(constants.AllRoles, *req.Role) {
			web.FailErr(w, r, web.ErrInvalidRole)
			return
		}
		user.Role = *req.Role
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Department != nil {
		user.Department = *req.Department
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := h.userRepo.Update(user); err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionUserUpdate,
		Detail:   user.Username,
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	web.OK(w, r, toUserView(user))
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		web.FailErr(w, r, web.ErrInvalidParam)
		return
	}
	// 禁止删除当前登录用户
	if uint(id) == web.GetUserID(r) {
		web.FailErr(w, r, web.ErrUserSelfDelete)
		return
	}
	user, err := h.userRepo.FindByID(uint(id))
	if err != nil {
		web.FailErr(w, r, web.ErrUserNotFound)
		return
	}
	if err := h.userRepo.Delete(user.ID); err != nil {
		web.FailErr(w, r, web.ErrUserDeleteFail)
		return
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionUserDelete,
		Detail:   user.Username,
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	web.OK(w, r, map[string]string{"message": "ok"})
}

// Unlock 管理员手动解除账户锁定
func (h *UserHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		web.FailErr(w, r, web.ErrInvalidParam)
		return
	}
	user, err := h.userRepo.FindByID(uint(id))
	if err != nil {
		web.FailErr(w, r, web.ErrUserNotFound)
		return
	}
	if err := h.userRepo.Unlock(user.ID); err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionAccountUnlock,
		Detail:   user.Username,
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	web.OK(w, r, map[string]string{"message": "ok"})
}
