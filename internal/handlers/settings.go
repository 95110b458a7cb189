package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/notify"
	"shadowhawk/internal/web"
)

// 含敏感内容的设置键，读取时打码
var sensitiveSettingKeys = []string{"token", "secret", "webhook", "password"}

// SettingsHandler 运行期设置的读写，写入后热加载通知通道
type SettingsHandler struct {
	settingRepo *database.SettingRepo
	auditRepo   *database.AuditLogRepo
	notifier    *notify.Manager
}

func NewSettingsHandler(notifier *notify.Manager) *SettingsHandler {
	return &SettingsHandler{
		settingRepo: database.NewSettingRepo(),
		auditRepo:   database.NewAuditLogRepo(),
		notifier:    notifier,
	}
}

func maskSensitive(key, value string) string {
	if value == "" {
		return ""
	}
	lower := strings.ToLower(key)
	for _, frag := range sensitiveSettingKeys {
		if strings.Contains(lower, frag) {
			if len(value) <= 6 {
				return "******"
			}
			return value[:3] + "******"
		}
	}
	return value
}

func (h *SettingsHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingRepo.GetAll()
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	masked := make(map[string]string, len(settings))
	for k, v := range settings {
		masked[k] = maskSensitive(k, v)
	}
	web.OK(w, r, masked)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var items map[string]string
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		web.FailErr(w, r, web.ErrInvalidBody)
		return
	}
	if len(items) == 0 {
		web.FailErr(w, r, web.ErrInvalidParam, "no settings provided")
		return
	}

	if err := h.settingRepo.SetBatch(items); err != nil {
		web.FailErr(w, r, web.ErrSettingFailed)
		return
	}

	// 通知通道配置可能已变化，重建
	if h.notifier != nil {
		h.notifier.Reload(h.settingRepo)
	}

	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionSettingsUpdate,
		Detail:   strings.Join(keys, ","),
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	logger.Config.Info().Strs("keys", keys).Msg("settings updated")
	web.OK(w, r, map[string]string{"message": "ok"})
}

// AuditHandler 审计日志查询（只读）
type AuditHandler struct {
	auditRepo *database.AuditLogRepo
}

func NewAuditHandler() *AuditHandler {
	return &AuditHandler{auditRepo: database.NewAuditLogRepo()}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := web.ParsePageQuery(r)
	filter := database.AuditFilter{
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Action:    r.URL.Query().Get("action"),
		Result:    r.URL.Query().Get("result"),
	}
	logs, total, err := h.auditRepo.List(filter)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OKPage(w, r, logs, total, filter.Page, filter.PageSize)
}
