package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"shadowhawk/internal/database"
	"shadowhawk/internal/logger"

	nfy "github.com/nikoksr/notify"
	nfydc "github.com/nikoksr/notify/service/discord"
	nfyhttp "github.com/nikoksr/notify/service/http"
	nfyslack "github.com/nikoksr/notify/service/slack"
	nfytg "github.com/nikoksr/notify/service/telegram"
)

// Manager wraps nikoksr/notify.Notify and manages channel lifecycle.
type Manager struct {
	mu           sync.RWMutex
	notifier     *nfy.Notify
	channelNames []string
}

// NewManager creates an empty notification manager.
func NewManager() *Manager {
	return &Manager{
		notifier: nfy.New(),
	}
}

// Reload reads notification settings from the database and rebuilds channels.
func (m *Manager) Reload(settingRepo *database.SettingRepo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Create a fresh notifier instance (drops old services)
	n := nfy.New()
	var names []string

	// ── Telegram ──
	tgToken, _ := settingRepo.Get("notify_telegram_token")
	tgChatID, _ := settingRepo.Get("notify_telegram_chat_id")
	if tgToken != "" && tgChatID != "" {
		tgSvc, err := nfytg.New(tgToken)
		if err == nil {
			// AddReceivers accepts int64 chat IDs
			if id, err := strconv.ParseInt(strings.TrimSpace(tgChatID), 10, 64); err == nil {
				tgSvc.AddReceivers(id)
				n.UseServices(tgSvc)
				names = append(names, "telegram")
			} else {
				logger.Alert.Warn().Str("chat_id", tgChatID).Msg("Telegram chat ID 格式无效")
			}
		} else {
			logger.Alert.Warn().Err(err).Msg("Telegram 服务初始化失败")
		}
	}

	// ── Slack ──
	slackToken, _ := settingRepo.Get("notify_slack_token")
	slackChannelID, _ := settingRepo.Get("notify_slack_channel_id")
	if slackToken != "" && slackChannelID != "" {
		slackSvc := nfyslack.New(slackToken)
		slackSvc.AddReceivers(strings.TrimSpace(slackChannelID))
		n.UseServices(slackSvc)
		names = append(names, "slack")
	}

	// ── Discord ──
	dcToken, _ := settingRepo.Get("notify_discord_token")
	dcChannelID, _ := settingRepo.Get("notify_discord_channel_id")
	if dcToken != "" && dcChannelID != "" {
		dcSvc := nfydc.New()
		if err := dcSvc.AuthenticateWithBotToken(dcToken); err == nil {
			dcSvc.AddReceivers(strings.TrimSpace(dcChannelID))
			n.UseServices(dcSvc)
			names = append(names, "discord")
		} else {
			logger.Alert.Warn().Err(err).Msg("Discord 服务初始化失败")
		}
	}

	// ── Generic webhook ──
	whURL, _ := settingRepo.Get("notify_webhook_url")
	if whURL != "" {
		whMethod, _ := settingRepo.Get("notify_webhook_method")
		if whMethod == "" {
			whMethod = "POST"
		}
		httpSvc := nfyhttp.New()
		httpSvc.AddReceivers(&nfyhttp.Webhook{
			URL:         whURL,
			Header:      http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
			ContentType: "application/json; charset=utf-8",
			Method:      whMethod,
			BuildPayload: func(subject, message string) (payload any) {
				return map[string]string{"subject": subject, "message": message}
			},
		})
		n.UseServices(httpSvc)
		names = append(names, "webhook")
	}

	m.notifier = n
	m.channelNames = names

	logger.Alert.Info().Int("channels", len(names)).Strs("names", names).Msg("通知渠道已重载")
}

// Send dispatches a message to all configured channels.
func (m *Manager) Send(text string) {
	m.mu.RLock()
	n := m.notifier
	m.mu.RUnlock()

	if n == nil {
		return
	}
	if err := n.Send(context.Background(), "ShadowHawk", text); err != nil {
		logger.Alert.Warn().Err(err).Msg("通知发送失败")
	}
}

// SendAlert formats and sends an alert notification.
func (m *Manager) SendAlert(risk, message, detail string) {
	emoji := "⚠️"
	switch risk {
	case "critical":
		emoji = "\U0001f6a8"
	case "high":
		emoji = "\U0001f534"
	case "medium":
		emoji = "\U0001f7e1"
	case "low":
		emoji = "\U0001f7e2"
	}
	text := fmt.Sprintf("%s [%s] %s", emoji, risk, message)
	if detail != "" && len(detail) < 200 {
		text += "\n" + detail
	}
	m.Send(text)
}

// HasChannels returns true if at least one channel is configured.
func (m *Manager) HasChannels() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channelNames) > 0
}

// ChannelNames returns the names of all configured channels.
func (m *Manager) ChannelNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, len(m.channelNames))
	copy(result, m.channelNames)
	return result
}
