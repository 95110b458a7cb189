package security

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/web"
)

// Notifier is the interface used to send external notifications.
type Notifier interface {
	SendAlert(risk, message, detail string)
}

// AlertSink 告警出口：落库、WebSocket 推送、外部通知。
// 锁定事件和 high/critical 异常都经由这里发出。
type AlertSink struct {
	alertRepo *database.AlertRepo
	wsHub     *web.WSHub
	notifier  Notifier
	enabled   bool
}

func NewAlertSink(wsHub *web.WSHub, enabled bool) *AlertSink {
	return &AlertSink{
		alertRepo: database.NewAlertRepo(),
		wsHub:     wsHub,
		enabled:   enabled,
	}
}

// SetNotifier injects the external notification sender.
func (s *AlertSink) SetNotifier(n Notifier) {
	s.notifier = n
}

// Raise 创建告警记录并分发
func (s *AlertSink) Raise(risk, message, detail string) {
	alert := &database.Alert{
		AlertID: "alert_" + time.Now().UTC().Format("20060102150405") + "_" + randomHex(4),
		Risk:    risk,
		Message: message,
		Detail:  detail,
	}
	if err := s.alertRepo.Create(alert); err != nil {
		logger.Alert.Error().Err(err).Msg("告警写入失败")
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast("alert", "alert", map[string]interface{}{
			"id":        alert.AlertID,
			"risk":      alert.Risk,
			"message":   alert.Message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}

	logger.Alert.Warn().
		Str("alert_id", alert.AlertID).
		Str("risk", risk).
		Str("message", message).
		Msg("安全告警")

	// 外部通知只推送高危告警
	if s.enabled && s.notifier != nil && constants.RiskRank(risk) >= constants.RiskRank(constants.RiskHigh) {
		go s.notifier.SendAlert(risk, message, detail)
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
