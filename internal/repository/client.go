package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/Followup/internal/database"
	"github.com/hray3182/Followup/internal/models"
)

type ClientRepository struct {
	db *database.DB
}

func NewClientRepository(db *database.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	var phone *string
	if client.Phone != "" {
		phone = &client.Phone
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO clients (id, project_id, name, email, phone, reminder_opt_out, work_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		client.ID, client.ProjectID, client.Name, client.Email, phone, client.ReminderOptOut, client.WorkStatus,
	).Scan(&client.CreatedAt)
}

func (r *ClientRepository) GetClient(ctx context.Context, id string) (*models.Client, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients c WHERE c.id = $1`, id)
	client, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting client %s: %w", id, err)
	}
	return client, nil
}

// FindClientsByProjectAndEmail returns every client of the project with that
// email, matched case-insensitively, oldest first.
func (r *ClientRepository) FindClientsByProjectAndEmail(ctx context.Context, projectID, email string) ([]*models.Client, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients c
		 WHERE c.project_id = $1 AND lower(c.email) = lower($2)
		 ORDER BY c.created_at ASC`,
		projectID, email,
	)
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

// UpdateClientWorkStatus sets the work status and returns the value it replaced.
func (r *ClientRepository) UpdateClientWorkStatus(ctx context.Context, id, status string) (string, error) {
	var previous string
	err := r.db.Pool.QueryRow(ctx,
		`UPDATE clients c SET work_status = $2
		 FROM (SELECT id, work_status FROM clients WHERE id = $1 FOR UPDATE) old
		 WHERE c.id = old.id
		 RETURNING old.work_status`,
		id, status,
	).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("updating work status of client %s: %w", id, err)
	}
	return previous, nil
}

func (r *ClientRepository) SetClientOptOut(ctx context.Context, id string, optOut bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE clients SET reminder_opt_out = $2 WHERE id = $1`, id, optOut)
	if err != nil {
		return fmt.Errorf("updating opt-out of client %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanClient(row rowScanner) (*models.Client, error) {
	c := &models.Client{}
	err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Email, &c.Phone, &c.ReminderOptOut, &c.WorkStatus, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
