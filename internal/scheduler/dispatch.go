package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/channel"
	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/repository"
	"github.com/hray3182/Followup/internal/template"
)

type dispositionKind int

const (
	dispositionNone dispositionKind = iota // still pending: store error or lost race
	dispositionSent
	dispositionFailed
	dispositionCanceled
	dispositionDeferred
)

type disposition struct {
	kind    dispositionKind
	failure models.Failed
}

// attempt is one dispatch of one reminder.
type attempt struct {
	reminder   *models.Reminder
	client     *models.Client // nil when the client row is gone
	expect     models.ReminderStatus
	automated  bool
	deferQuiet bool
}

// run checks the reminder's preconditions, sends it and records the outcome
// with a single conditional update. The returned error is nil only when the
// reminder was sent or deliberately deferred.
func (s *Scheduler) run(ctx context.Context, a attempt, now time.Time) (disposition, error) {
	r := a.reminder
	log := s.logger.With(zap.String("reminder_id", r.ID), zap.String("channel", string(r.Channel)))

	if a.client == nil {
		failed := models.Failed{At: now, Kind: models.FailureClientNotFound, Error: "Client not found", Automated: a.automated}
		return s.record(ctx, a, failed, false, ErrClientNotFound)
	}

	if a.client.ReminderOptOut {
		log.Info("Client opted out, canceling reminder", zap.String("client_id", a.client.ID))
		canceled := models.Canceled{At: now, Reason: models.CancelClientOptedOut}
		return s.record(ctx, a, canceled, false, ErrRecipientOptedOut)
	}

	project, err := s.projects.GetProject(ctx, r.ProjectID)
	if errors.Is(err, repository.ErrNotFound) {
		failed := models.Failed{At: now, Kind: models.FailureProjectNotFound, Error: "Project not found", Automated: a.automated}
		return s.record(ctx, a, failed, false, ErrProjectNotFound)
	}
	if err != nil {
		return disposition{}, fmt.Errorf("loading project of reminder %s: %w", r.ID, err)
	}

	if a.deferQuiet && project.Settings.IsQuietHours(now) {
		log.Debug("Quiet hours, deferring reminder", zap.String("project_id", project.ID))
		return disposition{kind: dispositionDeferred}, nil
	}

	sendErr := s.deliver(ctx, r, a.client, project)
	sentAt := s.now()
	if sendErr != nil {
		se := channel.AsSendError(r.Channel, sendErr)
		log.Warn("Failed to send reminder", zap.String("kind", string(se.Kind)), zap.Error(se))
		failed := models.Failed{
			At:           sentAt,
			Kind:         se.Kind,
			Error:        se.Error(),
			ProviderCode: se.Code,
			Automated:    a.automated,
		}
		return s.record(ctx, a, failed, true, se)
	}

	d, err := s.record(ctx, a, models.Sent{At: sentAt, Automated: a.automated}, true, nil)
	if err != nil {
		return d, err
	}
	log.Info("Reminder sent", zap.Int("attempt", r.AttemptNumber+1))

	s.scheduleSuccessor(ctx, r, project, sentAt)
	return d, nil
}

// deliver renders the reminder's template and hands it to the channel under the send timeout.
func (s *Scheduler) deliver(ctx context.Context, r *models.Reminder, client *models.Client, project *models.Project) error {
	tmpl := template.Resolve(project, r.Channel, r.TemplateKey)
	url := template.TestimonialURL(s.baseURL, project.ID, client.Email)
	msg := template.RenderMessage(tmpl, r.Channel, template.Vars(project, client, url))

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	return s.channels.Deliver(sendCtx, r.Channel, client, channel.Content{
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
}

// record writes the outcome if the reminder still has the expected status.
// cause is returned alongside a successfully recorded failure or cancellation.
func (s *Scheduler) record(ctx context.Context, a attempt, o models.Outcome, attempted bool, cause error) (disposition, error) {
	patch := models.OutcomePatch(o, a.expect, attempted)
	_, err := s.reminders.UpdateReminder(ctx, a.reminder.ID, patch)
	if errors.Is(err, repository.ErrStatusConflict) {
		s.logger.Warn("Reminder changed status during dispatch, outcome dropped",
			zap.String("reminder_id", a.reminder.ID),
			zap.String("outcome", string(o.Status())),
		)
		return disposition{}, err
	}
	if err != nil {
		return disposition{}, fmt.Errorf("recording %s outcome of reminder %s: %w", o.Status(), a.reminder.ID, err)
	}

	switch o := o.(type) {
	case models.Sent:
		return disposition{kind: dispositionSent}, cause
	case models.Failed:
		return disposition{kind: dispositionFailed, failure: o}, cause
	case models.Canceled:
		return disposition{kind: dispositionCanceled}, cause
	}
	return disposition{}, cause
}

// scheduleSuccessor enqueues the next reminder of a recurring chain. Errors
// are logged; the sent outcome is already recorded.
func (s *Scheduler) scheduleSuccessor(ctx context.Context, prev *models.Reminder, project *models.Project, now time.Time) {
	next, ok := s.planner.Next(prev, project, now)
	if !ok {
		return
	}
	child := s.planner.Successor(prev, next)
	if err := s.reminders.CreateReminder(ctx, child); err != nil {
		s.logger.Error("Failed to create recurring reminder",
			zap.String("parent_id", prev.ID), zap.Error(err))
		return
	}
	s.logger.Info("Recurring reminder scheduled",
		zap.String("parent_id", prev.ID),
		zap.String("reminder_id", child.ID),
		zap.Time("scheduled_at", next),
	)
}
