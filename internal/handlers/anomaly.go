package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"shadowhawk/internal/anomaly"
	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/security"
	"shadowhawk/internal/web"
	"shadowhawk/internal/webconfig"

	"gorm.io/gorm"
)

// AnomalyHandler 行为基线与异常检测接口
type AnomalyHandler struct {
	est          *anomaly.Estimator
	activityRepo *database.ActivityRepo
	profileRepo  *database.ProfileRepo
	anomalyRepo  *database.AnomalyRepo
	auditRepo    *database.AuditLogRepo
	alerts       *security.AlertSink
	cfg          *webconfig.Config
}

func NewAnomalyHandler(cfg *webconfig.Config, est *anomaly.Estimator, alerts *security.AlertSink) *AnomalyHandler {
	return &AnomalyHandler{
		est:          est,
		activityRepo: database.NewActivityRepo(),
		profileRepo:  database.NewProfileRepo(),
		anomalyRepo:  database.NewAnomalyRepo(),
		auditRepo:    database.NewAuditLogRepo(),
		alerts:       alerts,
		cfg:          cfg,
	}
}

func parseUserID(r *http.Request) (uint, bool) {
	v := r.URL.Query().Get("user_id")
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Learn 用指定天数内的历史活动重建用户行为基线
func (h *AnomalyHandler) Learn(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		web.FailErr(w, r, web.ErrInvalidParam, "user_id required")
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 && d <= 90 {
			days = d
		}
	}

	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	actions, err := h.activityRepo.Recent(userID, since)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}

	profile, err := h.est.Learn(userID, actions)
	if err != nil {
		logger.Anomaly.Warn().Err(err).Uint("user_id", userID).Msg("baseline learning failed")
		web.FailErr(w, r, web.ErrLearnFailed, err.Error())
		return
	}

	h.auditRepo.Create(&database.AuditLog{
		UserID:   web.GetUserID(r),
		Username: web.GetUsername(r),
		Action:   constants.ActionProfileLearn,
		Detail:   strconv.FormatUint(uint64(userID), 10),
		Result:   "success",
		IP:       web.ClientIP(r),
	})
	web.OK(w, r, profile)
}

// Detect 用最近窗口内的活动对基线做一次检测
func (h *AnomalyHandler) Detect(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		web.FailErr(w, r, web.ErrInvalidParam, "user_id required")
		return
	}

	since := time.Now().UTC().Add(-time.Duration(h.cfg.Tracking.RecentWindowMinutes) * time.Minute)
	current, err := h.activityRepo.Recent(userID, since)
	if err != nil {
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}

	anomalies, err := h.est.Detect(userID, current)
	if err != nil {
		logger.Anomaly.Error().Err(err).Uint("user_id", userID).Msg("detection failed")
		web.FailErr(w, r, web.ErrDetectFailed)
		return
	}

	for i := range anomalies {
		if constants.RiskRank(anomalies[i].Severity) >= constants.RiskRank(constants.RiskHigh) {
			h.alerts.Raise(anomalies[i].Severity, "behavior anomaly detected", anomalies[i].Description)
		}
	}

	web.OK(w, r, anomalies)
}

// Profile 返回某用户的行为基线
func (h *AnomalyHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		web.FailErr(w, r, web.ErrInvalidParam, "user_id required")
		return
	}
	profile, err := h.profileRepo.Get(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			web.FailErr(w, r, web.ErrNoProfile)
			return
		}
		web.FailErr(w, r, web.ErrDBQuery)
		return
	}
	web.OK(w, r, profile)
}

// Recent 最近异常，优先读内存环，ring 为空时回落数据库
func (h *AnomalyHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	anomalies := h.est.RecentFromRing(limit)
	if len(anomalies) == 0 {
		userID := uint(0)
		if id, ok := parseUserID(r); ok {
			userID = id
		}
		var err error
		anomalies, err = h.anomalyRepo.Recent(userID, limit)
		if err != nil {
			web.FailErr(w, r, web.ErrDBQuery)
			return
		}
	}
	web.OK(w, r, anomalies)
}
