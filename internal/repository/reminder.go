package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/Followup/internal/database"
	"github.com/hray3182/Followup/internal/models"
)

const reminderColumns = `r.id, r.project_id, r.client_id, r.channel, r.scheduled_at, r.status,
	r.attempt_number, r.template_key, r.metadata, r.created_at, r.updated_at`

const clientColumns = `c.id, c.project_id, c.name, c.email, COALESCE(c.phone, ''),
	c.reminder_opt_out, c.work_status, c.created_at`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReminderRepository is the Postgres ReminderStore.
type ReminderRepository struct {
	db *database.DB
}

func NewReminderRepository(db *database.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) CreateReminder(ctx context.Context, reminder *models.Reminder) error {
	PrepareReminder(reminder, uuid.NewString)
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO reminders (id, project_id, client_id, channel, scheduled_at, status, attempt_number, template_key, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		 RETURNING created_at, updated_at`,
		reminder.ID, reminder.ProjectID, reminder.ClientID, string(reminder.Channel), reminder.ScheduledAt.UTC(),
		string(reminder.Status), reminder.AttemptNumber, reminder.TemplateKey, reminder.Metadata,
	).Scan(&reminder.CreatedAt, &reminder.UpdatedAt)
}

func (r *ReminderRepository) GetReminder(ctx context.Context, id string) (*models.Reminder, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders r WHERE r.id = $1`, id)
	reminder, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting reminder %s: %w", id, err)
	}
	return reminder, nil
}

// UpdateReminder applies the patch in a single statement. When ExpectStatus is set
// the row is only touched if its status still matches. RemoveMetadata keys are
// dropped before the patch document is merged.
func (r *ReminderRepository) UpdateReminder(ctx context.Context, id string, patch models.ReminderPatch) (*models.Reminder, error) {
	increment := 0
	if patch.IncrementAttempt {
		increment = 1
	}
	var scheduledAt *time.Time
	if patch.ScheduledAt != nil {
		t := patch.ScheduledAt.UTC()
		scheduledAt = &t
	}
	metadata := patch.Metadata
	if metadata == nil {
		metadata = models.Metadata{}
	}
	remove := patch.RemoveMetadata
	if remove == nil {
		remove = []string{}
	}

	row := r.db.Pool.QueryRow(ctx,
		`UPDATE reminders r SET
		    status = COALESCE($2, r.status),
		    attempt_number = r.attempt_number + $3,
		    scheduled_at = COALESCE($4, r.scheduled_at),
		    metadata = (r.metadata - $7::text[]) || $5::jsonb,
		    updated_at = now()
		 WHERE r.id = $1 AND ($6::text IS NULL OR r.status = $6)
		 RETURNING `+reminderColumns,
		id, statusPtr(patch.Status), increment, scheduledAt, metadata, statusPtr(patch.ExpectStatus), remove,
	)
	reminder, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating reminder %s: %w", id, err)
	}
	return reminder, nil
}

// missOrConflict tells a missing row apart from a failed status precondition.
func (r *ReminderRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reminders WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking reminder %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("reminder %s: %w", id, ErrStatusConflict)
}

func (r *ReminderRepository) DeleteReminder(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting reminder %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *ReminderRepository) AllPendingReminders(ctx context.Context) ([]PendingReminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+`, `+clientColumns+`
		 FROM reminders r LEFT JOIN clients c ON c.id = r.client_id
		 WHERE r.status = 'pending'
		 ORDER BY r.scheduled_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending reminders: %w", err)
	}
	defer rows.Close()

	var pending []PendingReminder
	for rows.Next() {
		var (
			reminder models.Reminder
			nc       nullableClient
		)
		dest := append(reminderDest(&reminder), nc.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning pending reminder: %w", err)
		}
		pending = append(pending, PendingReminder{Reminder: &reminder, Client: nc.client()})
	}
	return pending, rows.Err()
}

func (r *ReminderRepository) PendingRemindersForProject(ctx context.Context, projectID string) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders r
		 WHERE r.project_id = $1 AND r.status = 'pending'
		 ORDER BY r.scheduled_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending reminders for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reminder: %w", err)
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func reminderDest(reminder *models.Reminder) []any {
	return []any{
		&reminder.ID, &reminder.ProjectID, &reminder.ClientID, &reminder.Channel, &reminder.ScheduledAt,
		&reminder.Status, &reminder.AttemptNumber, &reminder.TemplateKey, &reminder.Metadata,
		&reminder.CreatedAt, &reminder.UpdatedAt,
	}
}

func scanReminder(row rowScanner) (*models.Reminder, error) {
	reminder := &models.Reminder{}
	if err := row.Scan(reminderDest(reminder)...); err != nil {
		return nil, err
	}
	return reminder, nil
}

// nullableClient receives the LEFT JOINed client columns.
type nullableClient struct {
	id, projectID, name, email, phone, workStatus *string
	optOut                                       *bool
	createdAt                                    *time.Time
}

func (n *nullableClient) dest() []any {
	return []any{&n.id, &n.projectID, &n.name, &n.email, &n.phone, &n.optOut, &n.workStatus, &n.createdAt}
}

func (n *nullableClient) client() *models.Client {
	if n.id == nil {
		return nil
	}
	c := &models.Client{ID: *n.id}
	if n.projectID != nil {
		c.ProjectID = *n.projectID
	}
	if n.name != nil {
		c.Name = *n.name
	}
	if n.email != nil {
		c.Email = *n.email
	}
	if n.phone != nil {
		c.Phone = *n.phone
	}
	if n.optOut != nil {
		c.ReminderOptOut = *n.optOut
	}
	if n.workStatus != nil {
		c.WorkStatus = *n.workStatus
	}
	if n.createdAt != nil {
		c.CreatedAt = *n.createdAt
	}
	return c
}
