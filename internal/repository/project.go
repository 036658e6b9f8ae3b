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

type ProjectRepository struct {
	db *database.DB
}

func NewProjectRepository(db *database.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) CreateProject(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	settings, err := project.MarshalSettings()
	if err != nil {
		return fmt.Errorf("encoding reminder settings: %w", err)
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO projects (id, name, company_name, reminder_settings)
		 VALUES ($1, $2, $3, $4::jsonb)
		 RETURNING created_at`,
		project.ID, project.Name, project.CompanyName, string(settings),
	).Scan(&project.CreatedAt)
}

// GetProject loads a project with its reminder settings. Unparseable settings
// fall back to the zero policy rather than failing the caller.
func (r *ProjectRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	project := &models.Project{}
	var settingsJSON []byte

	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, company_name, reminder_settings, created_at
		 FROM projects WHERE id = $1`,
		id,
	).Scan(&project.ID, &project.Name, &project.CompanyName, &settingsJSON, &project.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}

	if err := project.UnmarshalSettings(settingsJSON); err != nil {
		project.Settings = models.ReminderSettings{}
	}
	return project, nil
}
