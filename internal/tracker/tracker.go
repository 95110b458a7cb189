package tracker

import (
	"errors"
	"sync"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/webconfig"

	"github.com/google/uuid"
)

// riskWindow 风险分级回看窗口
const riskWindow = 5 * time.Minute

var ErrStopped = errors.New("tracker is not running")

// Session 一次连续追踪会话的显式句柄。所有 Record 调用都必须
// 携带它，追踪层不做任何隐式的"当前用户"查找。
type Session struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// Event 客户端上报的单个交互事件
type Event struct {
	Action    string                `json:"action"`
	Device    database.DeviceInfo   `json:"device"`
	Location  database.LocationInfo `json:"location"`
	Timestamp time.Time             `json:"timestamp"`
}

// SessionState 会话在内存中的活跃状态
type SessionState struct {
	Session
	StartedAt  time.Time `json:"started_at"`
	LastSeen   time.Time `json:"last_seen"`
	EventCount int64     `json:"event_count"`
}

// Stats 默认最近窗口内的活动统计
type Stats struct {
	Total          int64            `json:"total"`
	ActiveSessions int              `json:"active_sessions"`
	ByRisk         map[string]int64 `json:"by_risk"`
	ByDevice       map[string]int64 `json:"by_device"`
	ByAction       map[string]int64 `json:"by_action"`
}

// Tracker 活动追踪服务。状态机只有 inactive 和 active 两态：
// Start 启动维护循环进入 active，Stop 关闭循环回到 inactive。
type Tracker struct {
	activityRepo *database.ActivityRepo
	anomalyRepo  *database.AnomalyRepo
	cfg          *webconfig.Config
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*SessionState
	running  bool
	stopCh   chan struct{}
}

func New(cfg *webconfig.Config) *Tracker {
	return &Tracker{
		activityRepo: database.NewActivityRepo(),
		anomalyRepo:  database.NewAnomalyRepo(),
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		sessions:     make(map[string]*SessionState),
		stopCh:       make(chan struct{}),
	}
}

// SetClock 注入时钟（测试用）
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func (t *Tracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Start 启动维护循环，阻塞直到 Stop
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	stopCh := t.stopCh
	t.mu.Unlock()

	logger.Tracker.Info().
		Dur("interval", t.cfg.TrackingInterval()).
		Dur("retention", t.cfg.MaxSessionDuration()).
		Msg("活动追踪已启动")

	ticker := time.NewTicker(t.cfg.TrackingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Maintain()
		case <-stopCh:
			logger.Tracker.Info().Msg("活动追踪已停止")
			return
		}
	}
}

// Stop 停止维护循环并清空会话表
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.stopCh = make(chan struct{})
	t.sessions = make(map[string]*SessionState)
}

// StartSession 登记新会话
func (t *Tracker) StartSession(s Session) {
	now := t.now()
	t.mu.Lock()
	t.sessions[s.SessionID] = &SessionState{
		Session:   s,
		StartedAt: now,
		LastSeen:  now,
	}
	t.mu.Unlock()
}

// EndSession 显式注销会话
func (t *Tracker) EndSession(sessionID string) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
}

// Record 分类并落库一个事件。写入是逐条直写，不做批量缓冲。
// 设备/位置缺失按空值降级，不报错。
func (t *Tracker) Record(s Session, ev Event) (*database.Activity, error) {
	if !t.IsRunning() {
		return nil, ErrStopped
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}

	risk, err := t.classify(s.UserID, ev, ts)
	if err != nil {
		return nil, err
	}

	activity := &database.Activity{
		EventID:   "evt_" + uuid.NewString(),
		UserID:    s.UserID,
		Username:  s.Username,
		Action:    ev.Action,
		SessionID: s.SessionID,
		Risk:      risk,
		IP:        s.IP,
		UserAgent: s.UserAgent,
		Device:    ev.Device,
		Location:  ev.Location,
		Timestamp: ts,
	}
	if err := t.activityRepo.Create(activity); err != nil {
		return nil, err
	}

	// 刷新会话活跃指针
	t.mu.Lock()
	if st, ok := t.sessions[s.SessionID]; ok {
		st.LastSeen = t.now()
		st.EventCount++
	} else {
		now := t.now()
		t.sessions[s.SessionID] = &SessionState{
			Session:    s,
			StartedAt:  now,
			LastSeen:   now,
			EventCount: 1,
		}
	}
	t.mu.Unlock()

	logger.Tracker.Debug().
		Str("event_id", activity.EventID).
		Str("action", ev.Action).
		Str("risk", risk).
		Msg("activity recorded")
	return activity, nil
}

// classify 风险分级：统计该用户最近 5 分钟内 action 含
// logout/failed 或已是 high 风险的活动数 k。
// k>3 → critical，k>1 → high，k>0 → medium，否则 low。
// 断网事件无条件 high。
func (t *Tracker) classify(userID uint, ev Event, ts time.Time) (string, error) {
	if ev.Action == constants.EventOffline {
		return constants.RiskHigh, nil
	}

	flagged, err := t.activityRepo.CountFlagged(userID, ts.Add(-riskWindow))
	if err != nil {
		return "", err
	}

	switch {
	case flagged > 3:
		return constants.RiskCritical, nil
	case flagged > 1:
		return constants.RiskHigh, nil
	case flagged > 0:
		return constants.RiskMedium, nil
	default:
		return constants.RiskLow, nil
	}
}

// Maintain 执行一次周期维护：清理超过保留期的活动与异常记录，
// 并剔除超时未活跃的会话
func (t *Tracker) Maintain() {
	cutoff := t.now().Add(-t.cfg.MaxSessionDuration())

	deleted, err := t.activityRepo.DeleteOlderThan(cutoff)
	if err != nil {
		logger.Tracker.Error().Err(err).Msg("活动保留清理失败")
	} else if deleted > 0 {
		logger.Tracker.Info().Int64("deleted", deleted).Msg("已清理过期活动")
	}

	if _, err := t.anomalyRepo.DeleteOlderThan(cutoff); err != nil {
		logger.Tracker.Error().Err(err).Msg("异常记录保留清理失败")
	}

	t.mu.Lock()
	for id, st := range t.sessions {
		if st.LastSeen.Before(cutoff) {
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()
}

// RecentActivities 最近 minutes 分钟的活动，按时间倒序。
// userID 为 0 时不限用户；minutes<=0 时取默认窗口。
func (t *Tracker) RecentActivities(userID uint, minutes int) ([]database.Activity, error) {
	window := t.cfg.RecentWindow()
	if minutes > 0 {
		window = time.Duration(minutes) * time.Minute
	}
	return t.activityRepo.Recent(userID, t.now().Add(-window))
}

// ActiveSessions 当前会话表快照
func (t *Tracker) ActiveSessions() []SessionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SessionState, 0, len(t.sessions))
	for _, st := range t.sessions {
		out = append(out, *st)
	}
	return out
}

// GetStats 默认最近窗口内的计数与风险/设备分布
func (t *Tracker) GetStats() (*Stats, error) {
	since := t.now().Add(-t.cfg.RecentWindow())

	total, err := t.activityRepo.CountSince(since)
	if err != nil {
		return nil, err
	}
	byRisk, err := t.activityRepo.CountByRisk(since)
	if err != nil {
		return nil, err
	}
	byDevice, err := t.activityRepo.CountByDevice(since)
	if err != nil {
		return nil, err
	}
	byAction, err := t.activityRepo.CountByAction(since)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	active := len(t.sessions)
	t.mu.RUnlock()

	return &Stats{
		Total:          total,
		ActiveSessions: active,
		ByRisk:         byRisk,
		ByDevice:       byDevice,
		ByAction:       byAction,
	}, nil
}
