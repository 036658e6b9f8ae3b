// Package opsalert posts scheduler tick summaries to a Telegram chat.
package opsalert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/format"
	"github.com/hray3182/Followup/internal/scheduler"
)

const (
	// maxListedFailures bounds the message size for ticks with many failures.
	maxListedFailures = 10

	// requestTimeout bounds every Bot API call.
	requestTimeout = 10 * time.Second
)

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter implements scheduler.Alerter.
type TelegramAlerter struct {
	bot    Sender
	chatID int64
	logger *zap.Logger
}

var _ scheduler.Alerter = (*TelegramAlerter)(nil)

func New(bot Sender, chatID int64, logger *zap.Logger) *TelegramAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramAlerter{bot: bot, chatID: chatID, logger: logger.Named("opsalert")}
}

// NewTelegram connects to the Bot API with token. Requests time out after requestTimeout.
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*TelegramAlerter, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: requestTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return New(api, chatID, logger), nil
}

func (a *TelegramAlerter) TickCompleted(ctx context.Context, result scheduler.TickResult) {
	if ctx.Err() != nil {
		a.logger.Debug("Context done, tick alert dropped", zap.Error(ctx.Err()))
		return
	}
	parsed := format.ParseMarkdown(BuildTickSummary(result))
	msg := tgbotapi.NewMessage(a.chatID, parsed.Text)
	msg.Entities = parsed.Entities
	msg.DisableWebPagePreview = true

	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Warn("Failed to send tick alert", zap.Error(err))
	}
}

// BuildTickSummary renders result as markdown with **bold** and `code` spans.
func BuildTickSummary(result scheduler.TickResult) string {
	var b strings.Builder

	b.WriteString("⚠️ **Reminder tick needs attention**\n")
	if !result.Started.IsZero() {
		fmt.Fprintf(&b, "%s\n", result.Started.UTC().Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "\nDue %d · sent %d · failed %d · canceled %d · deferred %d · errors %d\n",
		result.Due, result.Sent, result.Failed, result.Canceled, result.Deferred, result.Errors)

	if len(result.Failures) > 0 {
		b.WriteString("\n**Failures**\n")
	}
	for i, f := range result.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(&b, "… and %d more\n", len(result.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(&b, "• `%s` %s %s: %s\n", plain(f.ReminderID), f.Channel, f.Kind, plain(f.Error))
	}
	return b.String()
}

// plain removes characters that would open a markdown span.
func plain(s string) string {
	return strings.NewReplacer("`", "'", "**", "*").Replace(s)
}
