package opsalert

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/scheduler"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestBuildTickSummary(t *testing.T) {
	result := scheduler.TickResult{
		Started: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Due:     3,
		Sent:    1,
		Failed:  2,
		Failures: []scheduler.FailureSummary{
			{ReminderID: "r1", Channel: models.ChannelSMS, Kind: models.FailureInvalidRecipient, Error: "bad `number`"},
			{ReminderID: "r2", Channel: models.ChannelEmail, Kind: models.FailureProviderRejected, Error: "550"},
		},
	}

	got := BuildTickSummary(result)

	assert.Contains(t, got, "2024-01-01 10:00 UTC")
	assert.Contains(t, got, "Due 3 · sent 1 · failed 2")
	assert.Contains(t, got, "• `r1` sms invalid_recipient: bad 'number'")
	assert.Contains(t, got, "• `r2` email provider_rejected: 550")
}

func TestBuildTickSummaryTruncates(t *testing.T) {
	var result scheduler.TickResult
	for i := 0; i < maxListedFailures+4; i++ {
		result.Failures = append(result.Failures, scheduler.FailureSummary{ReminderID: fmt.Sprintf("r%d", i)})
	}

	got := BuildTickSummary(result)

	assert.Contains(t, got, "… and 4 more")
	assert.NotContains(t, got, "`r10`")
}

func TestTickCompletedSendsEntities(t *testing.T) {
	sender := &fakeSender{}
	alerter := New(sender, 42, nil)

	alerter.TickCompleted(context.Background(), scheduler.TickResult{Errors: 1})

	require.Len(t, sender.sent, 1)
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.NotContains(t, msg.Text, "**")
	require.NotEmpty(t, msg.Entities)
	assert.Equal(t, "bold", msg.Entities[0].Type)
}

func TestTickCompletedSwallowsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	alerter := New(sender, 42, nil)

	assert.NotPanics(t, func() {
		alerter.TickCompleted(context.Background(), scheduler.TickResult{Failed: 1})
	})
	assert.Len(t, sender.sent, 1)
}

func TestTickCompletedSkipsWhenContextDone(t *testing.T) {
	sender := &fakeSender{}
	alerter := New(sender, 42, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alerter.TickCompleted(ctx, scheduler.TickResult{Failed: 1})

	assert.Empty(t, sender.sent)
}
