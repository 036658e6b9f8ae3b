// Package recurrence plans the successor of a recurring reminder.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/Followup/internal/models"
)

// Interval is the value of the recurringInterval metadata key.
type Interval string

const (
	Daily         Interval = "daily"
	AlternateDays Interval = "alternate_days"
	Weekly        Interval = "weekly"
)

// DefaultIntervalDays applies to interval names the planner does not know.
const DefaultIntervalDays = 3

// Days returns the spacing of the interval in calendar days.
func (i Interval) Days() int {
	switch i {
	case Daily:
		return 1
	case AlternateDays:
		return 2
	case Weekly:
		return 7
	}
	return DefaultIntervalDays
}

// Known reports whether i is one of the named intervals.
func (i Interval) Known() bool {
	return i == Daily || i == AlternateDays || i == Weekly
}

// Planner computes when the next reminder of a chain is due.
type Planner struct {
	// EnforcePolicy makes the first schedule rule's MaxAttempts cap the chain
	// and CooldownDays act as a minimum spacing.
	EnforcePolicy bool
}

// Next returns the due time of prev's successor, counted from now rather than
// from prev's schedule. The time of day is the project's first send time in
// its timezone. ok is false when prev does not recur.
func (p Planner) Next(prev *models.Reminder, project *models.Project, now time.Time) (next time.Time, ok bool) {
	info := prev.Recurrence()
	if !info.Recurring || info.Interval == "" {
		return time.Time{}, false
	}

	var settings models.ReminderSettings
	if project != nil {
		settings = project.Settings
	}

	days := Interval(info.Interval).Days()
	if p.EnforcePolicy && len(settings.Schedule) > 0 {
		rule := settings.Schedule[0]
		if rule.MaxAttempts > 0 && info.Sequence+1 >= rule.MaxAttempts {
			return time.Time{}, false
		}
		if rule.CooldownDays > days {
			days = rule.CooldownDays
		}
	}

	loc := settings.Location()
	day, err := AddDays(now.In(loc), days)
	if err != nil {
		return time.Time{}, false
	}
	return AtClock(day, settings.FirstSendTime()), true
}

// Successor builds the pending child of prev due at next.
func (p Planner) Successor(prev *models.Reminder, next time.Time) *models.Reminder {
	info := prev.Recurrence()
	meta := models.RecurrenceInfo{
		Recurring:        true,
		Interval:         info.Interval,
		Sequence:         info.Sequence + 1,
		ParentReminderID: prev.ID,
	}.Metadata()
	if prev.IsAutomatic() {
		meta[models.MetaAutomatic] = true
	}

	return &models.Reminder{
		ProjectID:   prev.ProjectID,
		ClientID:    prev.ClientID,
		Channel:     prev.Channel,
		ScheduledAt: next,
		Status:      models.ReminderStatusPending,
		TemplateKey: prev.TemplateKey,
		Metadata:    meta,
	}
}

// AddDays steps days calendar days forward from start with a DAILY rule, so
// the wall clock survives DST changes in start's location.
func AddDays(start time.Time, days int) (time.Time, error) {
	if days <= 0 {
		return start, nil
	}
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Interval: days,
		Count:    2,
		Dtstart:  start,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build daily rule: %w", err)
	}
	occurrences := rule.All()
	if len(occurrences) < 2 {
		return time.Time{}, fmt.Errorf("daily rule produced %d occurrences", len(occurrences))
	}
	return occurrences[1], nil
}

// AtClock returns t's calendar day at the HH:MM clock in t's location, seconds zeroed.
func AtClock(t time.Time, clock string) time.Time {
	hour, minute := models.ParseClock(clock)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}
