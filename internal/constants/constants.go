package constants

// Risk levels
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

var AllRiskLevels = []string{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// User roles
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)

var AllRoles = []string{RoleAdmin, RoleAnalyst, RoleViewer}

// Login record status
const (
	LoginSuccess   = "success"
	LoginFailed    = "failed"
	LoginSuspended = "suspended"
)

// Audit actions
const (
	ActionLogin          = "login"
	ActionLoginFailed    = "login.failed"
	ActionLoginBlocked   = "login.blocked"
	ActionAccountLocked  = "account.locked"
	ActionAccountUnlock  = "account.unlocked"
	ActionLogout         = "logout"
	ActionAuthFailed     = "auth.failed"
	ActionForbidden      = "forbidden"
	ActionPasswordChange = "password.change"
	ActionSetup          = "setup"
	ActionSettingsUpdate = "settings.update"
	ActionAlertRead      = "alert.read"
	ActionUserCreate     = "user.create"
	ActionUserUpdate     = "user.update"
	ActionUserDelete     = "user.delete"
	ActionExport         = "export"
	ActionImport         = "import"
	ActionProfileLearn   = "profile.learn"
)

// Tracked event kinds reported by dashboard clients
const (
	EventClick      = "click"
	EventKeydown    = "keydown"
	EventScroll     = "scroll"
	EventVisibility = "visibility"
	EventOnline     = "network.online"
	EventOffline    = "network.offline"
)

// Anomaly types
const (
	AnomalyTiming    = "timing"
	AnomalyLocation  = "location"
	AnomalyBehavior  = "behavior"
	AnomalyFrequency = "frequency"
	AnomalyPattern   = "pattern"
)

var AllAnomalyTypes = []string{
	AnomalyTiming, AnomalyLocation, AnomalyBehavior,
	AnomalyFrequency, AnomalyPattern,
}

// RiskRank 风险等级数值化（用于比较）
func RiskRank(risk string) int {
	switch risk {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}
