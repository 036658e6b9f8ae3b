package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/repository/sqlite"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(":memory:")
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		require.NoError(t, s.Close(), "closing test store")
	})

	return s
}

// SeedProject inserts a project with the given settings.
func SeedProject(t *testing.T, s *sqlite.Store, settings models.ReminderSettings) *models.Project {
	t.Helper()

	p := &models.Project{Name: "Acme Renovations", CompanyName: "Acme", Settings: settings}
	require.NoError(t, s.CreateProject(context.Background(), p), "seeding project")
	return p
}

// SeedClient inserts a client of project p.
func SeedClient(t *testing.T, s *sqlite.Store, p *models.Project, name, email, phone string) *models.Client {
	t.Helper()

	c := &models.Client{ProjectID: p.ID, Name: name, Email: email, Phone: phone}
	require.NoError(t, s.CreateClient(context.Background(), c), "seeding client")
	return c
}

// SeedReminder inserts a pending reminder for c scheduled at at.
func SeedReminder(t *testing.T, s *sqlite.Store, c *models.Client, channel models.Channel, at time.Time, metadata models.Metadata) *models.Reminder {
	t.Helper()

	r := &models.Reminder{
		ProjectID:   c.ProjectID,
		ClientID:    c.ID,
		Channel:     channel,
		ScheduledAt: at,
		Metadata:    metadata,
	}
	require.NoError(t, s.CreateReminder(context.Background(), r), "seeding reminder")
	return r
}
