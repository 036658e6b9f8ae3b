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

func (s *Store) CreateClient(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	client.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, project_id, name, email, phone, reminder_opt_out, work_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID, client.ProjectID, client.Name, client.Email, nullString(client.Phone),
		boolToInt(client.ReminderOptOut), client.WorkStatus, formatTime(client.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*models.Client, error) {
	row := s.db.QueryRowxContext(ctx, `SELECT `+clientColumns+` FROM clients c WHERE c.id = ?`, id)
	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting client %s: %w", id, err)
	}
	return client, nil
}

func (s *Store) FindClientsByProjectAndEmail(ctx context.Context, projectID, email string) ([]*models.Client, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+clientColumns+` FROM clients c
		WHERE c.project_id = ? AND c.email = ? COLLATE NOCASE
		ORDER BY c.created_at ASC`, projectID, email)
	if err != nil {
		return nil, fmt.Errorf("finding clients %s: %w", email, err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// UpdateClientWorkStatus runs in a transaction so the returned previous value
// is the one actually replaced.
func (s *Store) UpdateClientWorkStatus(ctx context.Context, id, status string) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var previous string
	err = tx.GetContext(ctx, &previous, `SELECT work_status FROM clients WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("client %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading work status of client %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE clients SET work_status = ? WHERE id = ?`, status, id); err != nil {
		return "", fmt.Errorf("updating work status of client %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing work status of client %s: %w", id, err)
	}
	return previous, nil
}

func (s *Store) SetClientOptOut(ctx context.Context, id string, optOut bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE clients SET reminder_opt_out = ? WHERE id = ?`, boolToInt(optOut), id)
	if err != nil {
		return fmt.Errorf("updating opt-out of client %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("client %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func scanClient(row rowScanner) (*models.Client, error) {
	var cr clientRow
	if err := row.Scan(cr.dest()...); err != nil {
		return nil, err
	}
	return cr.client(), nil
}
