package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shadowhawk/internal/database"
	"shadowhawk/internal/tracker"
	"shadowhawk/internal/web"
	"shadowhawk/internal/webconfig"
)

// TrackHandler 活动追踪接口：事件上报与会话查询
type TrackHandler struct {
	trk          *tracker.Tracker
	activityRepo *database.ActivityRepo
	cfg          *webconfig.Config
}

func NewTrackHandler(cfg *webconfig.Config, trk *tracker.Tracker) *TrackHandler {
	return &TrackHandler{
		trk:          trk,
		activityRepo: database.NewActivityRepo(),
		cfg:          cfg,
	}
}

type trackRequest struct {
	Action    string                `json:"action"`
	Device    database.DeviceInfo   `json:"device"`
	Location  database.LocationInfo `json:"location"`
	Timestamp string                `json:"timestamp"`
}

// Record 接收客户端上报的单条事件
func (h *TrackHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.FailErr(w, r, web.ErrInvalidBody)
		return
	}
	if req.Action == "" {
		web.FailErr(w, r, web.ErrInvalidParam, "action required")
		return
	}

	session := tracker.Session{
		UserID:    web.GetUserID(r),
		Username:  web.GetUsername(r),
		SessionID: web.GetSessionID(r),
		IP:        web.ClientIP(r),
		UserAgent: r.UserAgent(),
	}

	ev := tracker.Event{
		Action:   req.Action,
		Device:   req.Device,
		Location: req.Location,
	}
	if req.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}

	activity, err := h.trk.Record(session, ev)
	if err != nil {
		if errors.Is(err, tracker.ErrStopped) {
			web.FailErr(w, r, web.ErrTrackerStopped)
			return
		}
		web.FailErr(w, r, web.ErrTrackFailed)
		return
	}

	web.OK(w, r, map[string]interface{}{
		"event_id": activity.EventID,
		"risk":     activity.Risk,
	})
}

// Recent 查询最近窗口内的活动。user_id=0 时返回全部用户
func (h *TrackHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := uint(0)
	if v := r.URL.Query().Get("user_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			userID = uint(id)
		}
	}
	minutes := h.cfg.Tracking.RecentWindowMinutes
	if v := r.URL.Query().Get("minutes"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			minutes = m
		}
	}

	activities, err := h.trk.RecentActivities(userID, minutes)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OK(w, r, activities)
}

// List 分页查询历史活动
func (h *TrackHandler) List(w http.ResponseWriter, r *http.Request) {
	q := web.ParsePageQuery(r)
	filter := database.ActivityFilter{
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Keyword:   q.Keyword,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Risk:      r.URL.Query().Get("risk"),
		SessionID: r.URL.Query().Get("session_id"),
	}
	if q.SortBy == "created_at" {
		filter.SortBy = "timestamp"
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			filter.UserID = uint(id)
		}
	}

	activities, total, err := h.activityRepo.List(filter)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OKPage(w, r, activities, total, filter.Page, filter.PageSize)
}

// Sessions 当前活跃会话列表
func (h *TrackHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	web.OK(w, r, h.trk.ActiveSessions())
}

// Stats 活动统计汇总
func (h *TrackHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trk.GetStats()
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OK(w, r, stats)
}

// Status 追踪器运行状态
func (h *TrackHandler) Status(w http.ResponseWriter, r *http.Request) {
	web.OK(w, r, map[string]interface{}{
		"running":          h.trk.IsRunning(),
		"active_sessions":  len(h.trk.ActiveSessions()),
		"interval_seconds": h.cfg.Tracking.IntervalSeconds,
	})
}
