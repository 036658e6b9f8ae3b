package models

import (
	"encoding/json"
	"time"
)

// DefaultSendTime is used when a project has no schedule rule.
const DefaultSendTime = "09:00"

// ScheduleRule is one step of a project's automatic follow-up schedule.
type ScheduleRule struct {
	OffsetDays   int    `json:"offsetDays"`
	SendTime     string `json:"sendTime"` // HH:MM format
	MaxAttempts  int    `json:"maxAttempts"`
	CooldownDays int    `json:"cooldownDays"`
}

// QuietHours is a daily window, in the project timezone, during which nothing should be sent.
type QuietHours struct {
	Start string `json:"start"` // HH:MM format
	End   string `json:"end"`   // HH:MM format
}

// MessageTemplate is a subject/body pair with {{placeholder}} variables.
// Subject is ignored for SMS.
type MessageTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ReminderSettings is a project's reminder policy. The core only reads it.
type ReminderSettings struct {
	Enabled    bool                       `json:"enabled"`
	Channels   []Channel                  `json:"channels"`
	Schedule   []ScheduleRule             `json:"schedule"`
	QuietHours *QuietHours                `json:"quietHours,omitempty"`
	Timezone   string                     `json:"timezone"`
	Templates  map[string]MessageTemplate `json:"templates,omitempty"`
}

// DefaultChannel returns the first configured channel, falling back to email.
func (s ReminderSettings) DefaultChannel() Channel {
	for _, c := range s.Channels {
		if c.Valid() {
			return c
		}
	}
	return ChannelEmail
}

// FirstSendTime returns the send time of the first schedule rule.
func (s ReminderSettings) FirstSendTime() string {
	if len(s.Schedule) > 0 && s.Schedule[0].SendTime != "" {
		return s.Schedule[0].SendTime
	}
	return DefaultSendTime
}

// Location resolves the configured timezone, defaulting to UTC.
func (s ReminderSettings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsQuietHours checks if the given time is within the project's quiet hours.
func (s ReminderSettings) IsQuietHours(t time.Time) bool {
	if s.QuietHours == nil || s.QuietHours.Start == "" || s.QuietHours.End == "" {
		return false
	}

	localTime := t.In(s.Location())
	currentMinutes := localTime.Hour()*60 + localTime.Minute()

	startHour, startMin := ParseClock(s.QuietHours.Start)
	endHour, endMin := ParseClock(s.QuietHours.End)

	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin
	if startMinutes == endMinutes {
		return false
	}

	// Overnight window, e.g. 22:00 - 08:00
	if startMinutes > endMinutes {
		return currentMinutes >= startMinutes || currentMinutes < endMinutes
	}
	return currentMinutes >= startMinutes && currentMinutes < endMinutes
}

// ParseClock parses "HH:MM" into hours and minutes. Invalid input yields 0, 0.
func ParseClock(clock string) (hour, min int) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}

// Project is the owner of clients and reminders.
type Project struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	CompanyName string           `json:"companyName"`
	Settings    ReminderSettings `json:"reminderSettings"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Company returns the sender-facing company name.
func (p *Project) Company() string {
	if p.CompanyName != "" {
		return p.CompanyName
	}
	return p.Name
}

// MarshalSettings encodes the reminder settings for storage.
func (p *Project) MarshalSettings() ([]byte, error) {
	return json.Marshal(p.Settings)
}

// UnmarshalSettings decodes stored reminder settings. Empty input leaves defaults.
func (p *Project) UnmarshalSettings(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &p.Settings)
}
