package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/Followup/internal/models"
)

func recurringReminder(interval string, seq int) *models.Reminder {
	return &models.Reminder{
		ID:        "r1",
		ProjectID: "p1",
		ClientID:  "c1",
		Channel:   models.ChannelSMS,
		Status:    models.ReminderStatusSent,
		Metadata: models.RecurrenceInfo{
			Recurring: true,
			Interval:  interval,
			Sequence:  seq,
		}.Metadata().Merge(models.Metadata{models.MetaAutomatic: true}),
	}
}

func TestIntervalDays(t *testing.T) {
	assert.Equal(t, 1, Daily.Days())
	assert.Equal(t, 2, AlternateDays.Days())
	assert.Equal(t, 7, Weekly.Days())
	assert.Equal(t, 3, Interval("fortnightly").Days())
	assert.False(t, Interval("fortnightly").Known())
}

func TestNextWeekly(t *testing.T) {
	project := &models.Project{Settings: models.ReminderSettings{
		Timezone: "UTC",
		Schedule: []models.ScheduleRule{{OffsetDays: 3, SendTime: "10:30"}},
	}}
	now := time.Date(2024, 3, 1, 15, 45, 12, 0, time.UTC)

	next, ok := Planner{}.Next(recurringReminder("weekly", 1), project, now)
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2024, 3, 8, 10, 30, 0, 0, time.UTC)), "next = %v", next)

	child := Planner{}.Successor(recurringReminder("weekly", 1), next)
	info := child.Recurrence()
	assert.Equal(t, 2, info.Sequence)
	assert.Equal(t, "weekly", info.Interval)
	assert.Equal(t, "r1", info.ParentReminderID)
	assert.True(t, child.IsAutomatic())
	assert.Equal(t, models.ChannelSMS, child.Channel)
	assert.Equal(t, models.ReminderStatusPending, child.Status)
	assert.Equal(t, 0, child.AttemptNumber)
}

func TestNextUsesProjectTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	project := &models.Project{Settings: models.ReminderSettings{Timezone: "America/New_York"}}

	// 02:00 UTC on Mar 9 is still Mar 8 in New York; DST starts on Mar 10.
	now := time.Date(2024, 3, 9, 2, 0, 0, 0, time.UTC)
	next, ok := Planner{}.Next(recurringReminder("alternate_days", 0), project, now)
	require.True(t, ok)

	assert.True(t, next.Equal(time.Date(2024, 3, 10, 9, 0, 0, 0, loc)), "next = %v", next)
}

func TestNextUnknownIntervalDefaultsToThreeDays(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	next, ok := Planner{}.Next(recurringReminder("monthly", 0), nil, now)
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)))
}

func TestNextNotRecurring(t *testing.T) {
	now := time.Now()

	_, ok := Planner{}.Next(&models.Reminder{Metadata: models.Metadata{}}, nil, now)
	assert.False(t, ok)

	_, ok = Planner{}.Next(&models.Reminder{Metadata: models.Metadata{models.MetaRecurring: true}}, nil, now)
	assert.False(t, ok)
}

func TestNextEnforcedPolicy(t *testing.T) {
	project := &models.Project{Settings: models.ReminderSettings{
		Schedule: []models.ScheduleRule{{SendTime: "09:00", MaxAttempts: 3, CooldownDays: 5}},
	}}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	next, ok := Planner{EnforcePolicy: true}.Next(recurringReminder("daily", 1), project, now)
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)), "next = %v", next)

	_, ok = Planner{EnforcePolicy: true}.Next(recurringReminder("daily", 2), project, now)
	assert.False(t, ok)

	next, ok = Planner{}.Next(recurringReminder("daily", 2), project, now)
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)))
}
