// Package lifecycle is the application-facing API for creating, sending and
// unwinding testimonial reminders.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/repository"
)

var (
	ErrInvalidReminder    = errors.New("invalid reminder")
	ErrClientOptedOut     = errors.New("client opted out of reminders")
	ErrReminderNotPending = errors.New("reminder is no longer pending")
)

// Dispatcher sends reminders on demand and wakes the polling loop.
type Dispatcher interface {
	SendNow(ctx context.Context, id string) error
	// CreateAndSend stores and dispatches a reminder in one step. It returns
	// nil when the reminder could not be stored.
	CreateAndSend(ctx context.Context, r *models.Reminder) (*models.Reminder, error)
	Notify()
}

// Service implements the reminder lifecycle on top of a store and a dispatcher.
type Service struct {
	store      repository.Store
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(store repository.Store, dispatcher Dispatcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.Named("lifecycle"),
		now:        time.Now,
	}
}

// CreateParams describes a reminder to enqueue. A zero ScheduledAt means now.
type CreateParams struct {
	ProjectID   string          `json:"projectId"`
	ClientID    string          `json:"clientId"`
	Channel     models.Channel  `json:"channel"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	TemplateKey *string         `json:"templateKey,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

func (p CreateParams) validate() error {
	var problems []string
	if p.ProjectID == "" {
		problems = append(problems, "projectId is required")
	}
	if p.ClientID == "" {
		problems = append(problems, "clientId is required")
	}
	if !p.Channel.Valid() {
		problems = append(problems, fmt.Sprintf("channel %q is not supported", p.Channel))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidReminder, strings.Join(problems, "; "))
	}
	return nil
}

// CreateReminder enqueues a pending reminder after checking the client
// belongs to the project and has not opted out.
func (s *Service) CreateReminder(ctx context.Context, params CreateParams) (*models.Reminder, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	client, err := s.store.GetClient(ctx, params.ClientID)
	if err != nil {
		return nil, err
	}
	if client.ProjectID != params.ProjectID {
		return nil, fmt.Errorf("%w: client %s does not belong to project %s", ErrInvalidReminder, client.ID, params.ProjectID)
	}
	if client.ReminderOptOut {
		return nil, fmt.Errorf("client %s: %w", client.ID, ErrClientOptedOut)
	}

	now := s.now()
	scheduledAt := params.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	reminder := &models.Reminder{
		ProjectID:   params.ProjectID,
		ClientID:    params.ClientID,
		Channel:     params.Channel,
		ScheduledAt: scheduledAt,
		TemplateKey: params.TemplateKey,
		Metadata:    models.Metadata{}.Merge(params.Metadata),
	}
	if err := s.store.CreateReminder(ctx, reminder); err != nil {
		return nil, err
	}

	s.logger.Info("Reminder created",
		zap.String("reminder_id", reminder.ID),
		zap.String("client_id", reminder.ClientID),
		zap.Time("scheduled_at", reminder.ScheduledAt),
	)
	if !reminder.ScheduledAt.After(now) {
		s.dispatcher.Notify()
	}
	return reminder, nil
}

// SendNow dispatches a pending or failed reminder immediately.
func (s *Service) SendNow(ctx context.Context, id string) error {
	return s.dispatcher.SendNow(ctx, id)
}

// UpdateParams changes a pending reminder. Nil fields are left alone.
type UpdateParams struct {
	ScheduledAt *time.Time      `json:"scheduledAt,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

// UpdateReminder reschedules or annotates a reminder that is still pending.
func (s *Service) UpdateReminder(ctx context.Context, id string, params UpdateParams) (*models.Reminder, error) {
	expect := models.ReminderStatusPending
	updated, err := s.store.UpdateReminder(ctx, id, models.ReminderPatch{
		ExpectStatus: &expect,
		ScheduledAt:  params.ScheduledAt,
		Metadata:     params.Metadata,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, fmt.Errorf("reminder %s: %w", id, ErrReminderNotPending)
	}
	if err != nil {
		return nil, err
	}
	if updated.IsDue(s.now()) {
		s.dispatcher.Notify()
	}
	return updated, nil
}

// CancelReminder cancels a pending reminder. An empty reason means manual.
func (s *Service) CancelReminder(ctx context.Context, id string, reason models.CancelReason) (*models.Reminder, error) {
	if reason == "" {
		reason = models.CancelManual
	}
	canceled, err := s.cancel(ctx, id, reason)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, fmt.Errorf("reminder %s: %w", id, ErrReminderNotPending)
	}
	return canceled, err
}

func (s *Service) cancel(ctx context.Context, id string, reason models.CancelReason) (*models.Reminder, error) {
	patch := models.OutcomePatch(models.Canceled{At: s.now(), Reason: reason}, models.ReminderStatusPending, false)
	return s.store.UpdateReminder(ctx, id, patch)
}

func (s *Service) DeleteReminder(ctx context.Context, id string) error {
	if err := s.store.DeleteReminder(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Reminder deleted", zap.String("reminder_id", id))
	return nil
}

func (s *Service) ListPendingReminders(ctx context.Context, projectID string) ([]*models.Reminder, error) {
	return s.store.PendingRemindersForProject(ctx, projectID)
}

// TestimonialReceived cancels every pending reminder of the clients with that
// email in the project. It returns how many were canceled. An unknown email
// cancels nothing.
func (s *Service) TestimonialReceived(ctx context.Context, projectID, clientEmail string) (int, error) {
	clients, err := s.store.FindClientsByProjectAndEmail(ctx, projectID, clientEmail)
	if err != nil {
		return 0, err
	}
	if len(clients) == 0 {
		return 0, nil
	}
	clientIDs := make(map[string]struct{}, len(clients))
	for _, c := range clients {
		clientIDs[c.ID] = struct{}{}
	}

	pending, err := s.store.PendingRemindersForProject(ctx, projectID)
	if err != nil {
		return 0, err
	}

	canceled := 0
	for _, r := range pending {
		if _, ok := clientIDs[r.ClientID]; !ok {
			continue
		}
		_, err := s.cancel(ctx, r.ID, models.CancelTestimonialReceived)
		switch {
		case err == nil:
			canceled++
		case errors.Is(err, repository.ErrStatusConflict), errors.Is(err, repository.ErrNotFound):
			// dispatched or removed since it was listed
		default:
			return canceled, fmt.Errorf("canceling reminder %s: %w", r.ID, err)
		}
	}

	s.logger.Info("Testimonial received, pending reminders canceled",
		zap.String("project_id", projectID),
		zap.Int("clients", len(clients)),
		zap.Int("canceled", canceled),
	)
	return canceled, nil
}
