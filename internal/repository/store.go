package repository

import (
	"context"
	"errors"

	"github.com/hray3182/Followup/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned by a conditional update whose expected status no longer holds.
	ErrStatusConflict = errors.New("reminder status changed concurrently")
)

// PendingReminder is a pending reminder joined with its client.
// Client is nil when the client row no longer exists.
type PendingReminder struct {
	*models.Reminder
	Client *models.Client
}

// ReminderStore persists reminders. UpdateReminder is the only mutation path
// for status, attempt number and metadata.
type ReminderStore interface {
	CreateReminder(ctx context.Context, reminder *models.Reminder) error
	GetReminder(ctx context.Context, id string) (*models.Reminder, error)
	UpdateReminder(ctx context.Context, id string, patch models.ReminderPatch) (*models.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	AllPendingReminders(ctx context.Context) ([]PendingReminder, error)
	PendingRemindersForProject(ctx context.Context, projectID string) ([]*models.Reminder, error)
}

// ProjectStore reads projects and their reminder policy.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	CreateProject(ctx context.Context, project *models.Project) error
}

// ClientStore reads clients and records the few client fields the reminder flow changes.
type ClientStore interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
	FindClientsByProjectAndEmail(ctx context.Context, projectID, email string) ([]*models.Client, error)
	CreateClient(ctx context.Context, client *models.Client) error
	UpdateClientWorkStatus(ctx context.Context, id, status string) (previous string, err error)
	SetClientOptOut(ctx context.Context, id string, optOut bool) error
}

// Store bundles every store the reminder engine needs.
type Store interface {
	ReminderStore
	ProjectStore
	ClientStore
}

// PrepareReminder fills the defaults every backend applies on insert.
func PrepareReminder(r *models.Reminder, newID func() string) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = models.ReminderStatusPending
	}
	if r.Metadata == nil {
		r.Metadata = models.Metadata{}
	}
}

func statusPtr(s *models.ReminderStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
