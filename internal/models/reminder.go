package models

import "time"

// ReminderStatus is the lifecycle state of a reminder.
type ReminderStatus string

const (
	ReminderStatusPending  ReminderStatus = "pending"
	ReminderStatusSent     ReminderStatus = "sent"
	ReminderStatusFailed   ReminderStatus = "failed"
	ReminderStatusCanceled ReminderStatus = "canceled"
)

// IsTerminal reports whether no automatic transition may leave this status.
// Failed reminders are terminal for the scheduler but can still be retried by hand.
func (s ReminderStatus) IsTerminal() bool {
	return s == ReminderStatusSent || s == ReminderStatusCanceled
}

// Channel is the delivery channel of a reminder.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Reminder is a scheduled testimonial request to a client.
type Reminder struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"projectId"`
	ClientID      string         `json:"clientId"`
	Channel       Channel        `json:"channel"`
	ScheduledAt   time.Time      `json:"scheduledAt"`
	Status        ReminderStatus `json:"status"`
	AttemptNumber int            `json:"attemptNumber"`
	TemplateKey   *string        `json:"templateKey,omitempty"`
	Metadata      Metadata       `json:"metadata"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// IsDue reports whether the reminder may be dispatched at now.
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Status == ReminderStatusPending && !r.ScheduledAt.After(now)
}

// IsAutomatic reports whether the reminder was created by the system rather than a user.
func (r *Reminder) IsAutomatic() bool {
	return r.Metadata.Bool(MetaAutomatic)
}

// Recurrence returns the typed recurrence view of the metadata.
func (r *Reminder) Recurrence() RecurrenceInfo {
	return RecurrenceFromMetadata(r.Metadata)
}

// Outcome returns the recorded terminal outcome, if any.
func (r *Reminder) Outcome() (Outcome, bool) {
	return OutcomeFromMetadata(r.Status, r.Metadata)
}

// ReminderPatch is a partial update applied by UpdateReminder.
// Metadata is merged key by key into the stored document.
type ReminderPatch struct {
	Status           *ReminderStatus
	ExpectStatus     *ReminderStatus // when set, the update only applies if the current status matches
	IncrementAttempt bool
	ScheduledAt      *time.Time
	Metadata         Metadata
	RemoveMetadata   []string // keys deleted before Metadata is merged
}

// failureKeys describe a failed attempt and go stale once a retry succeeds.
var failureKeys = []string{MetaFailedAt, MetaError, MetaErrorKind, MetaProviderCode}

// OutcomePatch builds the single atomic update that records an outcome.
// Recording Sent drops the failure keys of an earlier attempt, and a Failed
// outcome without a provider code drops a stale one.
func OutcomePatch(o Outcome, expect ReminderStatus, attempted bool) ReminderPatch {
	status := o.Status()
	patch := ReminderPatch{
		Status:           &status,
		ExpectStatus:     &expect,
		IncrementAttempt: attempted,
		Metadata:         o.Metadata(),
	}
	switch o := o.(type) {
	case Sent:
		patch.RemoveMetadata = failureKeys
	case Failed:
		if o.ProviderCode == "" {
			patch.RemoveMetadata = []string{MetaProviderCode}
		}
	}
	return patch
}
