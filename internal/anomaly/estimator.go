package anomaly

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRingSize 进程内异常环形缓冲的默认容量
const DefaultRingSize = 512

// topN 基线中保留的高频动作/页面/位置条数
const topN = 10

// Estimator 行为基线学习与异常检测。纯拉取式，除写入自身的
// 异常列表外没有副作用，也不挂定时器。
type Estimator struct {
	profileRepo *database.ProfileRepo
	anomalyRepo *database.AnomalyRepo
	now         func() time.Time

	mu   sync.RWMutex
	ring []database.Anomaly
	head int
	size int
}

func NewEstimator(ringSize int) *Estimator {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &Estimator{
		profileRepo: database.NewProfileRepo(),
		anomalyRepo: database.NewAnomalyRepo(),
		now:         func() time.Time { return time.Now().UTC() },
		ring:        make([]database.Anomaly, ringSize),
	}
}

// SetClock 注入时钟（测试用）
func (e *Estimator) SetClock(now func() time.Time) { e.now = now }

// Learn 从历史活动推导用户基线，整体替换旧档案。
// 登录时段为 [mean−σ, mean+σ]，截断到 [0,23]；
// 基线风险 = 50 + 5×高风险数 + 2×中风险数，截断到 [0,100]。
func (e *Estimator) Learn(userID uint, actions []database.Activity) (*database.BehaviorProfile, error) {
	if len(actions) == 0 {
		return nil, errors.New("no actions to learn from")
	}

	var loginHours []float64
	actionCounts := make(map[string]int)
	pageCounts := make(map[string]int)
	locationCounts := make(map[string]int)
	sessions := make(map[string][]time.Time)
	highCount, mediumCount := 0, 0

	for _, a := range actions {
		actionCounts[a.Action]++
		if strings.Contains(a.Action, "login") {
			h := float64(a.Timestamp.Hour())
			loginHours = append(loginHours, h)
		}
		if page, ok := strings.CutPrefix(a.Action, "view:"); ok {
			pageCounts[page]++
		}
		if loc := locationKey(a.Location); loc != "" {
			locationCounts[loc]++
		}
		if a.SessionID != "" {
			sessions[a.SessionID] = append(sessions[a.SessionID], a.Timestamp)
		}
		switch a.Risk {
		case constants.RiskHigh:
			highCount++
		case constants.RiskMedium:
			mediumCount++
		}
	}

	hourMin, hourMax := 0.0, 23.0
	if len(loginHours) > 0 {
		m, sd := meanStddev(loginHours)
		hourMin = clamp(m-sd, 0, 23)
		hourMax = clamp(m+sd, 0, 23)
	}

	baseline := 50 + 5*highCount + 2*mediumCount
	if baseline > 100 {
		baseline = 100
	}

	avgActions := 0.0
	avgMinutes := 0.0
	if len(sessions) > 0 {
		avgActions = float64(len(actions)) / float64(len(sessions))
		var totalMinutes float64
		for _, stamps := range sessions {
			first, last := stamps[0], stamps[0]
			for _, ts := range stamps[1:] {
				if ts.Before(first) {
					first = ts
				}
				if ts.After(last) {
					last = ts
				}
			}
			totalMinutes += last.Sub(first).Minutes()
		}
		avgMinutes = totalMinutes / float64(len(sessions))
	}

	profile := &database.BehaviorProfile{
		UserID:               userID,
		LoginHourMin:         hourMin,
		LoginHourMax:         hourMax,
		AvgSessionMinutes:    avgMinutes,
		AvgActionsPerSession: avgActions,
		BaselineRisk:         baseline,
		LearnedAt:            e.now(),
	}
	profile.SetCommonActions(rankByCount(actionCounts, topN))
	profile.SetFrequentPages(rankByCount(pageCounts, topN))
	profile.SetTypicalLocations(rankByCount(locationCounts, topN))

	if err := e.profileRepo.Replace(profile); err != nil {
		return nil, err
	}

	logger.Anomaly.Info().
		Uint("user_id", userID).
		Int("actions", len(actions)).
		Float64("hour_min", hourMin).
		Float64("hour_max", hourMax).
		Int("baseline", baseline).
		Msg("行为基线已更新")
	return profile, nil
}

// Detect 对当前活动执行三个独立启发式检测并合并结果。
// 没有基线档案时返回空列表（无基线不检测）。
func (e *Estimator) Detect(userID uint, current []database.Activity) ([]database.Anomaly, error) {
	profile, err := e.profileRepo.Get(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var found []database.Anomaly
	found = append(found, e.detectTiming(profile, current)...)
	found = append(found, e.detectBehavior(profile, current)...)
	found = append(found, e.detectFrequency(profile, current)...)

	for i := range found {
		if err := e.anomalyRepo.Create(&found[i]); err != nil {
			logger.Anomaly.Error().Err(err).Msg("异常记录写入失败")
		}
		e.push(found[i])
	}

	if len(found) > 0 {
		logger.Anomaly.Warn().
			Uint("user_id", userID).
			Int("count", len(found)).
			Msg("检测到行为异常")
	}
	return found, nil
}

// detectTiming 登录时段偏离基线范围。严重程度按偏离距离相对
// 范围宽度分级：> 2×宽度为 critical，> 宽度为 high，否则 medium。
func (e *Estimator) detectTiming(profile *database.BehaviorProfile, current []database.Activity) []database.Anomaly {
	var out []database.Anomaly
	width := profile.LoginHourMax - profile.LoginHourMin

	for _, a := range current {
		if !strings.Contains(a.Action, "login") {
			continue
		}
		hour := float64(a.Timestamp.Hour())
		if hour >= profile.LoginHourMin && hour <= profile.LoginHourMax {
			continue
		}

		distance := profile.LoginHourMin - hour
		if hour > profile.LoginHourMax {
			distance = hour - profile.LoginHourMax
		}

		severity := constants.RiskMedium
		switch {
		case distance > 2*width:
			severity = constants.RiskCritical
		case distance > width:
			severity = constants.RiskHigh
		}

		evidence, _ := json.Marshal(map[string]float64{
			"hour":     hour,
			"hour_min": profile.LoginHourMin,
			"hour_max": profile.LoginHourMax,
			"distance": distance,
		})
		out = append(out, database.Anomaly{
			AnomalyID:   "anm_" + uuid.NewString(),
			UserID:      profile.UserID,
			Type:        constants.AnomalyTiming,
			Severity:    severity,
			Description: fmt.Sprintf("login at hour %.0f outside normal range [%.1f, %.1f]", hour, profile.LoginHourMin, profile.LoginHourMax),
			Confidence:  clamp(0.6+distance/24, 0, 1),
			Evidence:    string(evidence),
			CreatedAt:   e.now(),
		})
	}
	return out
}

// detectBehavior 基线常见动作集合之外、出现超过 2 次的动作
func (e *Estimator) detectBehavior(profile *database.BehaviorProfile, current []database.Activity) []database.Anomaly {
	common := make(map[string]bool)
	for _, a := range profile.CommonActionList() {
		common[a] = true
	}

	counts := make(map[string]int)
	for _, a := range current {
		if !common[a.Action] {
			counts[a.Action]++
		}
	}

	var out []database.Anomaly
	for action, n := range counts {
		if n <= 2 {
			continue
		}
		evidence, _ := json.Marshal(map[string]interface{}{
			"action": action,
			"count":  n,
		})
		out = append(out, database.Anomaly{
			AnomalyID:   "anm_" + uuid.NewString(),
			UserID:      profile.UserID,
			Type:        constants.AnomalyBehavior,
			Severity:    constants.RiskMedium,
			Description: fmt.Sprintf("unusual action %q repeated %d times", action, n),
			Confidence:  clamp(0.5+float64(n)*0.1, 0, 1),
			Evidence:    string(evidence),
			CreatedAt:   e.now(),
		})
	}
	// map iteration order is random; keep output stable
	sort.Slice(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out
}

// detectFrequency 当前会话动作数超过基线均值 3 倍
func (e *Estimator) detectFrequency(profile *database.BehaviorProfile, current []database.Activity) []database.Anomaly {
	if profile.AvgActionsPerSession <= 0 {
		return nil
	}
	if float64(len(current)) <= 3*profile.AvgActionsPerSession {
		return nil
	}

	evidence, _ := json.Marshal(map[string]float64{
		"count":   float64(len(current)),
		"average": profile.AvgActionsPerSession,
	})
	return []database.Anomaly{{
		AnomalyID:   "anm_" + uuid.NewString(),
		UserID:      profile.UserID,
		Type:        constants.AnomalyFrequency,
		Severity:    constants.RiskHigh,
		Description: fmt.Sprintf("%d actions in session, %.1fx the baseline average", len(current), float64(len(current))/profile.AvgActionsPerSession),
		Confidence:  clamp(0.5+float64(len(current))/(10*profile.AvgActionsPerSession), 0, 1),
		Evidence:    string(evidence),
		CreatedAt:   e.now(),
	}}
}

// push 追加到环形缓冲，写满后覆盖最旧的一条
func (e *Estimator) push(a database.Anomaly) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ring[e.head] = a
	e.head = (e.head + 1) % len(e.ring)
	if e.size < len(e.ring) {
		e.size++
	}
}

// RecentFromRing 环形缓冲中最近 n 条异常，新的在前
func (e *Estimator) RecentFromRing(n int) []database.Anomaly {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n <= 0 || n > e.size {
		n = e.size
	}
	out := make([]database.Anomaly, 0, n)
	for i := 0; i < n; i++ {
		idx := (e.head - 1 - i + len(e.ring)) % len(e.ring)
		out = append(out, e.ring[idx])
	}
	return out
}

func locationKey(loc database.LocationInfo) string {
	switch {
	case loc.City != "" && loc.Country != "":
		return loc.City + ", " + loc.Country
	case loc.City != "":
		return loc.City
	case loc.Country != "":
		return loc.Country
	default:
		return ""
	}
}

// rankByCount 按出现次数降序取前 n 个键，计数相同时按字典序
func rankByCount(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// meanStddev 均值与总体标准差
func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
