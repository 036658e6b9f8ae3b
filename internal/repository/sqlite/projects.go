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

func (s *Store) CreateProject(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	settings, err := project.MarshalSettings()
	if err != nil {
		return fmt.Errorf("encoding reminder settings: %w", err)
	}
	project.CreatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, company_name, reminder_settings, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.CompanyName, string(settings), formatTime(project.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var (
		project   models.Project
		settings  string
		createdAt timestamp
	)
	err := s.db.QueryRowxContext(ctx,
		`SELECT id, name, company_name, reminder_settings, created_at FROM projects WHERE id = ?`, id,
	).Scan(&project.ID, &project.Name, &project.CompanyName, &settings, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}
	project.CreatedAt = createdAt.t
	if err := project.UnmarshalSettings([]byte(settings)); err != nil {
		project.Settings = models.ReminderSettings{}
	}
	return &project, nil
}
