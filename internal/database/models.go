package database

import (
	"time"
)

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Role             string     `gorm:"not null;default:viewer" json:"role"`
	Department       string     `json:"department"`
	SecurityScore    int        `gorm:"default:50" json:"security_score"`
	FailedAttempts   int        `gorm:"default:0" json:"-"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	TwoFactorEnabled bool       `gorm:"default:false" json:"two_factor_enabled"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Locked 账户当前是否处于锁定期内
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// LoginRecord 登录事件，只追加不修改
type LoginRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Username  string    `gorm:"index" json:"username"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Device    string    `json:"device"`
	Location  string    `json:"location"`
	Status    string    `gorm:"index" json:"status"` // success / failed / suspended
	Risk      string    `gorm:"index" json:"risk"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// DeviceInfo 客户端上报的设备指纹
type DeviceInfo struct {
	DeviceType       string `json:"device_type"`
	OS               string `json:"os"`
	Browser          string `json:"browser"`
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
}

// LocationInfo 客户端上报的粗粒度位置，允许全部为空
type LocationInfo struct {
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
}

// Activity 追踪到的用户交互事件
type Activity struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	EventID   string       `gorm:"index" json:"event_id"`
	UserID    uint         `gorm:"index" json:"user_id"`
	Username  string       `json:"username"`
	Action    string       `gorm:"index" json:"action"`
	SessionID string       `gorm:"index" json:"session_id"`
	Risk      string       `gorm:"index" json:"risk"`
	IP        string       `json:"ip"`
	UserAgent string       `json:"user_agent"`
	Device    DeviceInfo   `gorm:"embedded;embeddedPrefix:device_" json:"device"`
	Location  LocationInfo `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Timestamp time.Time    `gorm:"index" json:"timestamp"`
	CreatedAt time.Time    `json:"created_at"`
}

// BehaviorProfile 每用户一行，重学习时整体替换
type BehaviorProfile struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               uint      `gorm:"uniqueIndex" json:"user_id"`
	LoginHourMin         float64   `json:"login_hour_min"`
	LoginHourMax         float64   `json:"login_hour_max"`
	AvgSessionMinutes    float64   `json:"avg_session_minutes"`
	AvgActionsPerSession float64   `json:"avg_actions_per_session"`
	CommonActions        string    `gorm:"type:text" json:"common_actions"`    // JSON array
	FrequentPages        string    `gorm:"type:text" json:"frequent_pages"`    // JSON array
	TypicalLocations     string    `gorm:"type:text" json:"typical_locations"` // JSON array
	BaselineRisk         int       `json:"baseline_risk"`
	LearnedAt            time.Time `json:"learned_at"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Anomaly 行为基线偏差检测结果
type Anomaly struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AnomalyID   string    `gorm:"index" json:"anomaly_id"`
	UserID      uint      `gorm:"index" json:"user_id"`
	Type        string    `gorm:"index" json:"type"` // timing / location / behavior / frequency / pattern
	Severity    string    `gorm:"index" json:"severity"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	Evidence    string    `gorm:"type:text" json:"evidence,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

type Alert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AlertID   string    `gorm:"index" json:"alert_id"`
	Risk      string    `gorm:"index" json:"risk"`
	Message   string    `json:"message"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	Notified  bool      `gorm:"default:false" json:"notified"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Username  string    `json:"username"`
	Action    string    `gorm:"index" json:"action"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	Result    string    `json:"result"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
