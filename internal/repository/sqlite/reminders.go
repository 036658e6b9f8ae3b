package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/repository"
)

const reminderColumns = `r.id, r.project_id, r.client_id, r.channel, r.scheduled_at, r.status,
	r.attempt_number, r.template_key, r.metadata, r.created_at, r.updated_at`

const clientColumns = `c.id, c.project_id, c.name, c.email, COALESCE(c.phone, ''),
	c.reminder_opt_out, c.work_status, c.created_at`

// RETURNING may not qualify column names.
const returningColumns = `id, project_id, client_id, channel, scheduled_at, status,
	attempt_number, template_key, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateReminder(ctx context.Context, reminder *models.Reminder) error {
	repository.PrepareReminder(reminder, uuid.NewString)
	now := s.now().UTC()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (
			id, project_id, client_id, channel, scheduled_at, status,
			attempt_number, template_key, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reminder.ID, reminder.ProjectID, reminder.ClientID, string(reminder.Channel),
		formatTime(reminder.ScheduledAt), string(reminder.Status),
		reminder.AttemptNumber, reminder.TemplateKey, reminder.Metadata,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("creating reminder: %w", err)
	}
	return nil
}

func (s *Store) GetReminder(ctx context.Context, id string) (*models.Reminder, error) {
	row := s.db.QueryRowxContext(ctx, `SELECT `+reminderColumns+` FROM reminders r WHERE r.id = ?`, id)
	reminder, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting reminder %s: %w", id, err)
	}
	return reminder, nil
}

// UpdateReminder applies the patch in one statement. json_patch merges the
// metadata document key by key; removed keys are sent as nulls, which
// json_patch deletes.
func (s *Store) UpdateReminder(ctx context.Context, id string, patch models.ReminderPatch) (*models.Reminder, error) {
	increment := 0
	if patch.IncrementAttempt {
		increment = 1
	}
	var scheduledAt *string
	if patch.ScheduledAt != nil {
		v := formatTime(*patch.ScheduledAt)
		scheduledAt = &v
	}
	metadata := make(models.Metadata, len(patch.RemoveMetadata)+len(patch.Metadata))
	for _, key := range patch.RemoveMetadata {
		metadata[key] = nil
	}
	for key, value := range patch.Metadata {
		metadata[key] = value
	}
	expect := statusPtr(patch.ExpectStatus)

	row := s.db.QueryRowxContext(ctx, `
		UPDATE reminders SET
			status = COALESCE(?, status),
			attempt_number = attempt_number + ?,
			scheduled_at = COALESCE(?, scheduled_at),
			metadata = json_patch(metadata, ?),
			updated_at = ?
		WHERE id = ? AND (? IS NULL OR status = ?)
		RETURNING `+returningColumns,
		statusPtr(patch.Status), increment, scheduledAt, metadata, formatTime(s.now()),
		id, expect, expect,
	)
	reminder, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating reminder %s: %w", id, err)
	}
	return reminder, nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("checking reminder %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	return fmt.Errorf("reminder %s: %w", id, repository.ErrStatusConflict)
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting reminder %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (s *Store) AllPendingReminders(ctx context.Context) ([]repository.PendingReminder, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+reminderColumns+`, `+clientColumns+`
		FROM reminders r LEFT JOIN clients c ON c.id = r.client_id
		WHERE r.status = 'pending'
		ORDER BY r.scheduled_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying pending reminders: %w", err)
	}
	defer rows.Close()

	var pending []repository.PendingReminder
	for rows.Next() {
		var (
			rs reminderRow
			cs clientRow
		)
		if err := rows.Scan(append(rs.dest(), cs.dest()...)...); err != nil {
			return nil, fmt.Errorf("scanning pending reminder: %w", err)
		}
		pending = append(pending, repository.PendingReminder{Reminder: rs.reminder(), Client: cs.client()})
	}
	return pending, rows.Err()
}

func (s *Store) PendingRemindersForProject(ctx context.Context, projectID string) ([]*models.Reminder, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders r
		WHERE r.project_id = ? AND r.status = 'pending'
		ORDER BY r.scheduled_at ASC`, projectID)
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

// reminderRow holds the scan targets of reminderColumns.
type reminderRow struct {
	r                               models.Reminder
	channel, status                 string
	scheduledAt, createdAt, updated timestamp
}

func (rr *reminderRow) dest() []any {
	return []any{
		&rr.r.ID, &rr.r.ProjectID, &rr.r.ClientID, &rr.channel, &rr.scheduledAt, &rr.status,
		&rr.r.AttemptNumber, &rr.r.TemplateKey, &rr.r.Metadata, &rr.createdAt, &rr.updated,
	}
}

func (rr *reminderRow) reminder() *models.Reminder {
	r := rr.r
	r.Channel = models.Channel(rr.channel)
	r.Status = models.ReminderStatus(rr.status)
	r.ScheduledAt = rr.scheduledAt.t
	r.CreatedAt = rr.createdAt.t
	r.UpdatedAt = rr.updated.t
	if r.Metadata == nil {
		r.Metadata = models.Metadata{}
	}
	return &r
}

func scanReminder(row rowScanner) (*models.Reminder, error) {
	var rr reminderRow
	if err := row.Scan(rr.dest()...); err != nil {
		return nil, err
	}
	return rr.reminder(), nil
}

// clientRow holds the scan targets of clientColumns. Every field is nullable
// so it can sit on the right side of a LEFT JOIN.
type clientRow struct {
	id, projectID, name, email, phone, workStatus sql.NullString
	optOut                                       sql.NullInt64
	createdAt                                    timestamp
}

func (cr *clientRow) dest() []any {
	return []any{&cr.id, &cr.projectID, &cr.name, &cr.email, &cr.phone, &cr.optOut, &cr.workStatus, &cr.createdAt}
}

func (cr *clientRow) client() *models.Client {
	if !cr.id.Valid {
		return nil
	}
	return &models.Client{
		ID:             cr.id.String,
		ProjectID:      cr.projectID.String,
		Name:           cr.name.String,
		Email:          cr.email.String,
		Phone:          cr.phone.String,
		ReminderOptOut: cr.optOut.Int64 != 0,
		WorkStatus:     cr.workStatus.String,
		CreatedAt:      cr.createdAt.t,
	}
}

func statusPtr(s *models.ReminderStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
