package metrics

import (
	"sync"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/tracker"
	"shadowhawk/internal/web"
)

// 两个独立的采样周期：活跃会话刷新快，完整快照慢。
// 两个定时器互不协调，消费者短暂读到不一致是接受的取舍。
const (
	sessionTickInterval  = 5 * time.Second
	snapshotTickInterval = 30 * time.Second
)

// Snapshot 仪表盘聚合计数，每次全量重算
type Snapshot struct {
	ActiveSessions  int              `json:"active_sessions"`
	TotalUsers      int64            `json:"total_users"`
	TotalLogins     int64            `json:"total_logins"`
	FailedLogins24h int64            `json:"failed_logins_24h"`
	Activities1h    int64            `json:"activities_1h"`
	RiskCounts      map[string]int64 `json:"risk_counts"`
	AnomalyCounts   map[string]int64 `json:"anomaly_counts"`
	UnreadAlerts    int64            `json:"unread_alerts"`
	RiskScore       int              `json:"risk_score"`
	ComputedAt      time.Time        `json:"computed_at"`
}

// Aggregator 周期性拉取追踪器与各仓库，重算仪表盘计数并通过
// WebSocket 推送。不做增量更新，只缓存最近一次结果。
type Aggregator struct {
	trk         *tracker.Tracker
	userRepo    *database.UserRepo
	loginRepo   *database.LoginRecordRepo
	anomalyRepo *database.AnomalyRepo
	alertRepo   *database.AlertRepo
	wsHub       *web.WSHub
	now         func() time.Time

	mu      sync.RWMutex
	current Snapshot
	running bool
	stopCh  chan struct{}
}

func NewAggregator(trk *tracker.Tracker, wsHub *web.WSHub) *Aggregator {
	return &Aggregator{
		trk:         trk,
		userRepo:    database.NewUserRepo(),
		loginRepo:   database.NewLoginRecordRepo(),
		anomalyRepo: database.NewAnomalyRepo(),
		alertRepo:   database.NewAlertRepo(),
		wsHub:       wsHub,
		now:         func() time.Time { return time.Now().UTC() },
		stopCh:      make(chan struct{}),
	}
}

// SetClock 注入时钟（测试用）
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Start 启动采样循环，阻塞直到 Stop
func (a *Aggregator) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	stopCh := a.stopCh
	a.mu.Unlock()

	logger.Metrics.Info().
		Dur("session_tick", sessionTickInterval).
		Dur("snapshot_tick", snapshotTickInterval).
		Msg("指标聚合已启动")

	// 启动即产出一次完整快照
	a.Refresh()

	sessionTicker := time.NewTicker(sessionTickInterval)
	snapshotTicker := time.NewTicker(snapshotTickInterval)
	defer sessionTicker.Stop()
	defer snapshotTicker.Stop()

	for {
		select {
		case <-sessionTicker.C:
			a.refreshSessions()
		case <-snapshotTicker.C:
			a.Refresh()
		case <-stopCh:
			logger.Metrics.Info().Msg("指标聚合已停止")
			return
		}
	}
}

func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	a.running = false
	close(a.stopCh)
	a.stopCh = make(chan struct{})
}

// Current 最近一次计算结果
func (a *Aggregator) Current() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// refreshSessions 只刷新活跃会话数（5 秒档）
func (a *Aggregator) refreshSessions() {
	active := len(a.trk.ActiveSessions())
	a.mu.Lock()
	a.current.ActiveSessions = active
	a.mu.Unlock()
}

// Refresh 全量重算快照（30 秒档），并推送给订阅者
func (a *Aggregator) Refresh() {
	snap, err := a.compute()
	if err != nil {
		logger.Metrics.Error().Err(err).Msg("快照重算失败")
		return
	}

	a.mu.Lock()
	a.current = snap
	a.mu.Unlock()

	if a.wsHub != nil {
		a.wsHub.Broadcast("metrics", "metrics", snap)
	}
}

func (a *Aggregator) compute() (Snapshot, error) {
	now := a.now()
	since1h := now.Add(-time.Hour)
	since24h := now.Add(-24 * time.Hour)

	totalUsers, err := a.userRepo.Count()
	if err != nil {
		return Snapshot{}, err
	}
	totalLogins, err := a.loginRepo.Count()
	if err != nil {
		return Snapshot{}, err
	}
	failed24h, err := a.loginRepo.CountByStatus(constants.LoginFailed, since24h)
	if err != nil {
		return Snapshot{}, err
	}

	stats, err := a.trk.GetStats()
	if err != nil {
		return Snapshot{}, err
	}

	anomalyCounts, err := a.anomalyRepo.CountBySeverity(since1h)
	if err != nil {
		return Snapshot{}, err
	}
	unread, err := a.alertRepo.CountUnread()
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		ActiveSessions:  stats.ActiveSessions,
		TotalUsers:      totalUsers,
		TotalLogins:     totalLogins,
		FailedLogins24h: failed24h,
		Activities1h:    stats.Total,
		RiskCounts:      stats.ByRisk,
		AnomalyCounts:   anomalyCounts,
		UnreadAlerts:    unread,
		RiskScore:       riskScore(stats.ByRisk, failed24h),
		ComputedAt:      now,
	}, nil
}

// riskScore 合成风险分（0-100）：最近一小时活动按风险等级加权，
// 叠加 24 小时内的失败登录
func riskScore(riskCounts map[string]int64, failed24h int64) int {
	score := int(riskCounts[constants.RiskCritical]*15 +
		riskCounts[constants.RiskHigh]*8 +
		riskCounts[constants.RiskMedium]*3 +
		failed24h*5)
	if score > 100 {
		score = 100
	}
	return score
}
