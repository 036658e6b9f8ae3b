package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/recurrence"
)

// CompletionResult reports what a work status change triggered.
type CompletionResult struct {
	PreviousStatus string             `json:"previousStatus"`
	Triggered      bool               `json:"triggered"`
	Immediate      *models.Reminder   `json:"immediate,omitempty"`
	ImmediateError string             `json:"immediateError,omitempty"`
	Scheduled      []*models.Reminder `json:"scheduled"`
}

// SetClientWorkStatus records the client's work status. Moving into
// "completed" sends an immediate email and, when the project's policy is
// enabled, enqueues one reminder per schedule rule.
func (s *Service) SetClientWorkStatus(ctx context.Context, clientID, status string) (*CompletionResult, error) {
	previous, err := s.store.UpdateClientWorkStatus(ctx, clientID, status)
	if err != nil {
		return nil, err
	}
	result := &CompletionResult{PreviousStatus: previous, Scheduled: []*models.Reminder{}}
	if status != models.WorkStatusCompleted || previous == models.WorkStatusCompleted {
		return result, nil
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.ReminderOptOut {
		s.logger.Info("Client opted out, skipping completion reminders", zap.String("client_id", clientID))
		return result, nil
	}
	project, err := s.store.GetProject(ctx, client.ProjectID)
	if err != nil {
		return nil, err
	}
	result.Triggered = true

	now := s.now()
	immediate := &models.Reminder{
		ProjectID:   project.ID,
		ClientID:    client.ID,
		Channel:     models.ChannelEmail,
		ScheduledAt: now,
		Metadata:    models.Metadata{models.MetaAutomatic: true},
	}
	stored, err := s.dispatcher.CreateAndSend(ctx, immediate)
	if stored == nil {
		return nil, fmt.Errorf("creating completion reminder: %w", err)
	}
	if err != nil {
		s.logger.Warn("Completion reminder not sent",
			zap.String("reminder_id", stored.ID), zap.Error(err))
		result.ImmediateError = err.Error()
	}
	result.Immediate = stored

	settings := project.Settings
	if !settings.Enabled {
		return result, nil
	}

	loc := settings.Location()
	for _, rule := range settings.Schedule {
		day, err := recurrence.AddDays(now.In(loc), rule.OffsetDays)
		if err != nil {
			return result, fmt.Errorf("planning follow-up reminder: %w", err)
		}
		sendTime := rule.SendTime
		if sendTime == "" {
			sendTime = models.DefaultSendTime
		}
		followUp := &models.Reminder{
			ProjectID:   project.ID,
			ClientID:    client.ID,
			Channel:     settings.DefaultChannel(),
			ScheduledAt: recurrence.AtClock(day, sendTime),
			Metadata:    models.Metadata{models.MetaAutomatic: true},
		}
		if err := s.store.CreateReminder(ctx, followUp); err != nil {
			return result, fmt.Errorf("creating follow-up reminder: %w", err)
		}
		result.Scheduled = append(result.Scheduled, followUp)
	}

	s.logger.Info("Client completed, reminders enqueued",
		zap.String("client_id", client.ID),
		zap.Int("scheduled", len(result.Scheduled)),
	)
	return result, nil
}
