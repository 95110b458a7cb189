package handlers

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/security"
	"shadowhawk/internal/web"

	"golang.org/x/crypto/bcrypt"
)

// ImportDefaultPassword 导入用户的初始口令，首次登录后应立即修改
const ImportDefaultPassword = "ChangeMe123"

// ImportHandler 用户批量导入（CSV）
type ImportHandler struct {
	userRepo  *database.UserRepo
	auditRepo *database.AuditLogRepo
}

func NewImportHandler() *ImportHandler {
	return &ImportHandler{
		userRepo:  database.NewUserRepo(),
		auditRepo: database.NewAuditLogRepo(),
	}
}

type importResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Users 导入用户 CSV。列同导出格式；口令统一重置为初始值，
// 逐行校验，单行失败不影响其余行。
func (h *ImportHandler) Users(w http.ResponseWriter, r *http.Request) {
	reader := csv.NewReader(r.Body)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		web.FailErr(w, r, web.ErrImportBadCSV)
		return
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["username"]; !ok {
		web.FailErr(w, r, web.ErrImportBadCSV, "missing username column")
		return
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(ImportDefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		web.FailErr(w, r, web.ErrEncrypt)
		return
	}

	result := importResult{Errors: []string{}}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": malformed row")
			continue
		}

		username := security.SanitizeUsername(field(row, "username"))
		if username == "" {
			result.Skipped++
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": empty username")
			continue
		}
		if security.ContainsInjection(username) {
			result.Skipped++
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": illegal characters in username")
			continue
		}
		if _, err := h.userRepo.FindByUsername(username); err == nil {
			result.Skipped++
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": username "+username+" already exists")
			continue
		}

		role := field(row, "role")
		if role == "" {
			role = constants.RoleViewer
		}
		if !slices.Contains(constants.AllRoles, role) {
			result.Skipped++
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": unknown role "+role)
			continue
		}

		score := 50
		if v := field(row, "security_score"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
				score = n
			}
		}
		active := true
		if v := field(row, "is_active"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				active = b
			}
		}

		user := &database.User{
			Username:      username,
			PasswordHash:  string(hash),
			Name:          field(row, "name"),
			Email:         field(row, "email"),
			Role:          role,
			Department:    field(row, "department"),
			SecurityScore: score,
			IsActive:      active,
		}
		if err := h.userRepo.Create(user); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": "+err.Error())
			continue
		}
		result.Imported++
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionImport,
		Detail:   "users: " + strconv.Itoa(result.Imported) + " imported, " + strconv.Itoa(result.Skipped) + " skipped",
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	logger.Auth.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("user import finished")

	web.OK(w, r, result)
}
