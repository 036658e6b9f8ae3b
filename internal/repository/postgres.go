package repository

import "github.com/hray3182/Followup/internal/database"

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	*ReminderRepository
	*ProjectRepository
	*ClientRepository
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{
		ReminderRepository: NewReminderRepository(db),
		ProjectRepository:  NewProjectRepository(db),
		ClientRepository:   NewClientRepository(db),
	}
}
