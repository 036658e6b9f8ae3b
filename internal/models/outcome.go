package models

import "time"

// FailureKind classifies why a reminder ended up failed.
type FailureKind string

const (
	FailureClientNotFound      FailureKind = "client_not_found"
	FailureProjectNotFound     FailureKind = "project_not_found"
	FailureProviderUnavailable FailureKind = "provider_unavailable"
	FailureInvalidRecipient    FailureKind = "invalid_recipient"
	FailureProviderRejected    FailureKind = "provider_rejected"
)

// CancelReason explains a cancellation.
type CancelReason string

const (
	CancelClientOptedOut      CancelReason = "client_opted_out"
	CancelTestimonialReceived CancelReason = "testimonial_received"
	CancelManual              CancelReason = "manual"
)

// Outcome is the terminal result of a reminder: Sent, Failed or Canceled.
type Outcome interface {
	Status() ReminderStatus
	Metadata() Metadata
}

// Sent records a successful dispatch.
type Sent struct {
	At        time.Time
	Automated bool
}

func (Sent) Status() ReminderStatus { return ReminderStatusSent }

func (o Sent) Metadata() Metadata {
	m := Metadata{MetaSentAt: formatTime(o.At)}
	if o.Automated {
		m[MetaAutomated] = true
	}
	return m
}

// Failed records a failed attempt.
type Failed struct {
	At           time.Time
	Kind         FailureKind
	Error        string
	ProviderCode string
	Automated    bool
}

func (Failed) Status() ReminderStatus { return ReminderStatusFailed }

func (o Failed) Metadata() Metadata {
	m := Metadata{
		MetaFailedAt:  formatTime(o.At),
		MetaError:     o.Error,
		MetaErrorKind: string(o.Kind),
	}
	if o.ProviderCode != "" {
		m[MetaProviderCode] = o.ProviderCode
	}
	if o.Automated {
		m[MetaAutomated] = true
	}
	return m
}

// Canceled records a cancellation.
type Canceled struct {
	At     time.Time
	Reason CancelReason
}

func (Canceled) Status() ReminderStatus { return ReminderStatusCanceled }

func (o Canceled) Metadata() Metadata {
	return Metadata{
		MetaCanceledAt:   formatTime(o.At),
		MetaCancelReason: string(o.Reason),
	}
}

// OutcomeFromMetadata rebuilds the typed outcome of a reminder in a final status.
func OutcomeFromMetadata(status ReminderStatus, m Metadata) (Outcome, bool) {
	switch status {
	case ReminderStatusSent:
		at, _ := m.Time(MetaSentAt)
		return Sent{At: at, Automated: m.Bool(MetaAutomated)}, true
	case ReminderStatusFailed:
		at, _ := m.Time(MetaFailedAt)
		return Failed{
			At:           at,
			Kind:         FailureKind(m.String(MetaErrorKind)),
			Error:        m.String(MetaError),
			ProviderCode: m.String(MetaProviderCode),
			Automated:    m.Bool(MetaAutomated),
		}, true
	case ReminderStatusCanceled:
		at, _ := m.Time(MetaCanceledAt)
		return Canceled{At: at, Reason: CancelReason(m.String(MetaCancelReason))}, true
	}
	return nil, false
}

// RecurrenceInfo is the typed view of the recurrence keys in a reminder's metadata.
type RecurrenceInfo struct {
	Recurring        bool
	Interval         string
	Sequence         int
	ParentReminderID string
}

func RecurrenceFromMetadata(m Metadata) RecurrenceInfo {
	return RecurrenceInfo{
		Recurring:        m.Bool(MetaRecurring),
		Interval:         m.String(MetaRecurringInterval),
		Sequence:         m.Int(MetaRecurringSequence),
		ParentReminderID: m.String(MetaParentReminderID),
	}
}

// Metadata renders the recurrence keys. ParentReminderID is a back-reference only.
func (r RecurrenceInfo) Metadata() Metadata {
	m := Metadata{
		MetaRecurring:         r.Recurring,
		MetaRecurringInterval: r.Interval,
		MetaRecurringSequence: r.Sequence,
	}
	if r.ParentReminderID != "" {
		m[MetaParentReminderID] = r.ParentReminderID
	}
	return m
}
