package handlers

import (
	"net/http"
	"strconv"

	"shadowhawk/internal/database"
	"shadowhawk/internal/web"
)

// LoginRecordHandler 登录记录查询接口（只读）
type LoginRecordHandler struct {
	loginRepo *database.LoginRecordRepo
}

func NewLoginRecordHandler() *LoginRecordHandler {
	return &LoginRecordHandler{loginRepo: database.NewLoginRecordRepo()}
}

func (h *LoginRecordHandler) List(w http.ResponseWriter, r *http.Request) {
	q := web.ParsePageQuery(r)
	filter := database.LoginRecordFilter{
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Status:    r.URL.Query().Get("status"),
		Risk:      r.URL.Query().Get("risk"),
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			filter.UserID = uint(id)
		}
	}

	records, total, err := h.loginRepo.List(filter)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OKPage(w, r, records, total, filter.Page, filter.PageSize)
}

func (h *LoginRecordHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	userID := uint(0)
	if v := r.URL.Query().Get("user_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			userID = uint(id)
		}
	}
	records, err := h.loginRepo.Recent(userID, limit)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OK(w, r, records)
}
