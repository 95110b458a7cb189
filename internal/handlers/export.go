package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/web"
)

// ExportHandler 数据导出：用户、登录记录、活动，支持 CSV/JSON
type ExportHandler struct {
	userRepo     *database.UserRepo
	loginRepo    *database.LoginRecordRepo
	activityRepo *database.ActivityRepo
	auditRepo    *database.AuditLogRepo
}

func NewExportHandler() *ExportHandler {
	return &ExportHandler{
		userRepo:     database.NewUserRepo(),
		loginRepo:    database.NewLoginRecordRepo(),
		activityRepo: database.NewActivityRepo(),
		auditRepo:    database.NewAuditLogRepo(),
	}
}

func exportFormat(r *http.Request) string {
	if r.URL.Query().Get("format") == "json" {
		return "json"
	}
	return "csv"
}

func setDownloadHeaders(w http.ResponseWriter, name, format string) {
	ts := time.Now().Format("20060102_150405")
	if format == "json" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s_%s.json"`, name, ts))
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s_%s.csv"`, name, ts))
	}
}

func (h *ExportHandler) audit(r *http.Request, what string) {
	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionExport,
		Detail:   what,
		Result:   "success",
		IP:       web.ClientIP(r),
	})
}

// userCSVHeader 与导入端共用的列定义
var userCSVHeader = []string{
	"username", "name", "email", "role", "department", "security_score", "is_active",
}

// Users 导出全部用户（不含口令散列）
func (h *ExportHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.List()
	if err != nil {
		web.FailErr(w, r, web.ErrExportFailed)
		return
	}

	format := exportFormat(r)
	setDownloadHeaders(w, "users", format)

	if format == "json" {
		views := make([]userView, 0, len(users))
		for i := range users {
			views = append(views, toUserView(&users[i]))
		}
		json.NewEncoder(w).Encode(views)
		h.audit(r, "users.json")
		return
	}

	cw := csv.NewWriter(w)
	cw.Write(userCSVHeader)
	for i := range users {
		u := &users[i]
		cw.Write([]string{
			u.Username,
			u.Name,
			u.Email,
			u.Role,
			u.Department,
			strconv.Itoa(u.SecurityScore),
			strconv.FormatBool(u.IsActive),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.Auth.Error().Err(err).Msg("user export write failed")
	}
	h.audit(r, "users.csv")
}

// LoginRecords 导出登录记录，query 参数同列表接口
func (h *ExportHandler) LoginRecords(w http.ResponseWriter, r *http.Request) {
	q := web.ParsePageQuery(r)
	filter := database.LoginRecordFilter{
		Page:      1,
		PageSize:  10000,
		SortBy:    "created_at",
		SortOrder: "desc",
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Status:    r.URL.Query().Get("status"),
		Risk:      r.URL.Query().Get("risk"),
	}
	records, _, err := h.loginRepo.List(filter)
	if err != nil {
		web.FailErr(w, r, web.ErrExportFailed)
		return
	}

	format := exportFormat(r)
	setDownloadHeaders(w, "login_records", format)

	if format == "json" {
		json.NewEncoder(w).Encode(records)
		h.audit(r, "login_records.json")
		return
	}

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "user_id", "username", "ip", "device", "location", "status", "risk", "created_at"})
	for i := range records {
		rec := &records[i]
		cw.Write([]string{
			strconv.FormatUint(uint64(rec.ID), 10),
			strconv.FormatUint(uint64(rec.UserID), 10),
			rec.Username,
			rec.IP,
			rec.Device,
			rec.Location,
			rec.Status,
			rec.Risk,
			rec.CreatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
	h.audit(r, "login_records.csv")
}

// Activities 导出活动事件
func (h *ExportHandler) Activities(w http.ResponseWriter, r *http.Request) {
	q := web.ParsePageQuery(r)
	filter := database.ActivityFilter{
		Page:      1,
		PageSize:  10000,
		SortBy:    "timestamp",
		SortOrder: "desc",
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Risk:      r.URL.Query().Get("risk"),
	}
	activities, _, err := h.activityRepo.List(filter)
	if err != nil {
		web.FailErr(w, r, web.ErrExportFailed)
		return
	}

	format := exportFormat(r)
	setDownloadHeaders(w, "activities", format)

	if format == "json" {
		json.NewEncoder(w).Encode(activities)
		h.audit(r, "activities.json")
		return
	}

	cw := csv.NewWriter(w)
	cw.Write([]string{"event_id", "user_id", "username", "action", "session_id", "risk", "ip", "timestamp"})
	for i := range activities {
		a := &activities[i]
		cw.Write([]string{
			a.EventID,
			strconv.FormatUint(uint64(a.UserID), 10),
			a.Username,
			a.Action,
			a.SessionID,
			a.Risk,
			a.IP,
			a.Timestamp.Format(time.RFC3339),
		})
	}
	cw.Flush()
	h.audit(r, "activities.csv")
}
