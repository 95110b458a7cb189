package handlers

import (
	"net/http"
	"time"

	"shadowhawk/internal/anomaly"
	"shadowhawk/internal/auth"
	"shadowhawk/internal/metrics"
	"shadowhawk/internal/notify"
	"shadowhawk/internal/security"
	"shadowhawk/internal/tracker"
	"shadowhawk/internal/version"
	"shadowhawk/internal/web"
	"shadowhawk/internal/webconfig"
)

// Set 聚合全部 HTTP 处理器，统一注册路由
type Set struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Track       *TrackHandler
	LoginRecord *LoginRecordHandler
	Anomaly     *AnomalyHandler
	Dashboard   *DashboardHandler
	Alerts      *AlertHandler
	Settings    *SettingsHandler
	Audit       *AuditHandler
	Export      *ExportHandler
	Import      *ImportHandler

	wsHub *web.WSHub
	cfg   *webconfig.Config
}

func NewSet(
	cfg *webconfig.Config,
	manager *auth.Manager,
	trk *tracker.Tracker,
	est *anomaly.Estimator,
	agg *metrics.Aggregator,
	alerts *security.AlertSink,
	notifier *notify.Manager,
	wsHub *web.WSHub,
) *Set {
	return &Set{
		Auth:        NewAuthHandler(cfg, manager, trk),
		Users:       NewUserHandler(cfg),
		Track:       NewTrackHandler(cfg, trk),
		LoginRecord: NewLoginRecordHandler(),
		Anomaly:     NewAnomalyHandler(cfg, est, alerts),
		Dashboard:   NewDashboardHandler(agg),
		Alerts:      NewAlertHandler(),
		Settings:    NewSettingsHandler(notifier),
		Audit:       NewAuditHandler(),
		Export:      NewExportHandler(),
		Import:      NewImportHandler(),
		wsHub:       wsHub,
		cfg:         cfg,
	}
}

// Register 注册全部路由。鉴权与角色检查由中间件完成，
// 这里只声明路径与角色下限。
func (s *Set) Register(rt *web.Router) {
	start := time.Now()

	// 公开接口
	rt.GET("/api/health", func(w http.ResponseWriter, r *http.Request) {
		web.OK(w, r, map[string]interface{}{
			"status":  "ok",
			"version": version.Version,
			"uptime":  time.Since(start).Round(time.Second).String(),
		})
	})
	rt.POST("/api/auth/login", s.Auth.Login)
	rt.POST("/api/auth/setup", s.Auth.Setup)

	// 会话内接口
	rt.POST("/api/auth/logout", s.Auth.Logout)
	rt.GET("/api/auth/me", s.Auth.Me)
	rt.POST("/api/auth/password", s.Auth.ChangePassword)

	rt.POST("/api/track", s.Track.Record)
	rt.GET("/api/track/recent", s.Track.Recent)
	rt.GET("/api/track/status", s.Track.Status)

	rt.GET("/api/dashboard", s.Dashboard.Overview)
	rt.GET("/api/dashboard/metrics", s.Dashboard.Metrics)

	rt.GET("/api/alerts", s.Alerts.List)
	rt.GET("/api/alerts/unread", s.Alerts.Unread)
	rt.POST("/api/alerts/{id}/read", s.Alerts.MarkRead)
	rt.POST("/api/alerts/read-all", s.Alerts.MarkAllRead)

	// 分析员及以上
	rt.GET("/api/activities", web.RequireRole("analyst", s.Track.List))
	rt.GET("/api/track/sessions", web.RequireRole("analyst", s.Track.Sessions))
	rt.GET("/api/track/stats", web.RequireRole("analyst", s.Track.Stats))
	rt.GET("/api/login-records", web.RequireRole("analyst", s.LoginRecord.List))
	rt.GET("/api/login-records/recent", web.RequireRole("analyst", s.LoginRecord.Recent))
	rt.POST("/api/dashboard/refresh", web.RequireRole("analyst", s.Dashboard.Refresh))
	rt.GET("/api/dashboard/risk-users", web.RequireRole("analyst", s.Dashboard.RiskUsers))

	rt.POST("/api/anomaly/learn", web.RequireRole("analyst", s.Anomaly.Learn))
	rt.POST("/api/anomaly/detect", web.RequireRole("analyst", s.Anomaly.Detect))
	rt.GET("/api/anomaly/profile", web.RequireRole("analyst", s.Anomaly.Profile))
	rt.GET("/api/anomaly/recent", web.RequireRole("analyst", s.Anomaly.Recent))

	rt.GET("/api/export/users", web.RequireRole("analyst", s.Export.Users))
	rt.GET("/api/export/login-records", web.RequireRole("analyst", s.Export.LoginRecords))
	rt.GET("/api/export/activities", web.RequireRole("analyst", s.Export.Activities))

	// 仅管理员
	rt.GET("/api/users", web.RequireAdmin(s.Users.List))
	rt.POST("/api/users", web.RequireAdmin(s.Users.Create))
	rt.GET("/api/users/{id}", web.RequireAdmin(s.Users.Get))
	rt.PUT("/api/users/{id}", web.RequireAdmin(s.Users.Update))
	rt.DELETE("/api/users/{id}", web.RequireAdmin(s.Users.Delete))
	rt.POST("/api/users/{id}/unlock", web.RequireAdmin(s.Users.Unlock))
	rt.POST("/api/import/users", web.RequireAdmin(s.Import.Users))
	rt.GET("/api/settings", web.RequireAdmin(s.Settings.GetAll))
	rt.PUT("/api/settings", web.RequireAdmin(s.Settings.Update))
	rt.GET("/api/audit-logs", web.RequireAdmin(s.Audit.List))

	// WebSocket 推送（JWT 经 query 参数或 cookie）
	rt.Handle("*", "/ws", s.wsHub.HandleWS(s.cfg.Auth.JWTSecret))
}
