package handlers

import (
	"net/http"
	"strconv"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/web"
)

// AlertHandler 告警查询与已读管理
type AlertHandler struct {
	alertRepo *database.AlertRepo
	auditRepo *database.AuditLogRepo
}

func NewAlertHandler() *AlertHandler {
	return &AlertHandler{
		alertRepo: database.NewAlertRepo(),
		auditRepo: database.NewAuditLogRepo(),
	}
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := web.ParsePageQuery(r)
	filter := database.AlertFilter{
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Risk:      r.URL.Query().Get("risk"),
	}
	alerts, total, err := h.alertRepo.List(filter)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OKPage(w, r, alerts, total, filter.Page, filter.PageSize)
}

func (h *AlertHandler) Unread(w http.ResponseWriter, r *http.Request) {
	count, err := h.alertRepo.CountUnread()
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OK(w, r, map[string]int64{"unread": count})
}

func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		web.FailErr(w, r, web.ErrInvalidParam)
		return
	}
	if err := h.alertRepo.MarkNotified(uint(id)); err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionAlertRead,
		Detail:   r.PathValue("id"),
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	web.OK(w, r, map[string]string{"message": "ok"})
}

func (h *AlertHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.alertRepo.MarkAllNotified(); err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionAlertRead,
		Detail:   "all",
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	web.OK(w, r, map[string]string{"message": "ok"})
}
