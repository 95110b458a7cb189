package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"shadowhawk/internal/database"
	"shadowhawk/internal/metrics"
	"shadowhawk/internal/web"
)

// DashboardHandler 总览接口：指标快照 + 最近告警 + 风险概览
type DashboardHandler struct {
	agg          *metrics.Aggregator
	alertRepo    *database.AlertRepo
	userRepo     *database.UserRepo
	loginRepo    *database.LoginRecordRepo
	activityRepo *database.ActivityRepo
}

func NewDashboardHandler(agg *metrics.Aggregator) *DashboardHandler {
	return &DashboardHandler{
		agg:          agg,
		alertRepo:    database.NewAlertRepo(),
		userRepo:     database.NewUserRepo(),
		loginRepo:    database.NewLoginRecordRepo(),
		activityRepo: database.NewActivityRepo(),
	}
}

// Metrics 当前指标快照
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	web.OK(w, r, h.agg.Current())
}

// Refresh 强制全量重算一次快照
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.agg.Refresh()
	web.OK(w, r, h.agg.Current())
}

type dashboardOverview struct {
	Snapshot     metrics.Snapshot       `json:"snapshot"`
	RecentAlerts []database.Alert       `json:"recent_alerts"`
	RecentLogins []database.LoginRecord `json:"recent_logins"`
	ActionCounts map[string]int64       `json:"action_counts"`
}

// Overview 首页汇总：快照、最近告警、最近登录、动作分布
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	snap := h.agg.Current()

	alerts, err := h.alertRepo.Recent(10)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	logins, err := h.loginRepo.Recent(0, 10)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	actions, err := h.activityRepo.CountByAction(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}

	web.OK(w, r, dashboardOverview{
		Snapshot:     snap,
		RecentAlerts: alerts,
		RecentLogins: logins,
		ActionCounts: actions,
	})
}

// RiskUsers 按安全评分升序列出风险最高的用户
func (h *DashboardHandler) RiskUsers(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	users, err := h.userRepo.List()
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	// 评分越低风险越高
	sort.Slice(users, func(i, j int) bool {
		return users[i].SecurityScore < users[j].SecurityScore
	})
	if len(users) > limit {
		users = users[:limit]
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toUserView(&users[i]))
	}
	web.OK(w, r, views)
}
