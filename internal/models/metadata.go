package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata keys stored on a reminder.
const (
	MetaAutomatic         = "automatic"
	MetaAutomated         = "automated"
	MetaRecurring         = "recurring"
	MetaRecurringInterval = "recurringInterval"
	MetaRecurringSequence = "recurringSequence"
	MetaParentReminderID  = "parentReminderId"
	MetaSentAt            = "sentAt"
	MetaFailedAt          = "failedAt"
	MetaCanceledAt        = "canceledAt"
	MetaError             = "error"
	MetaErrorKind         = "errorKind"
	MetaProviderCode      = "providerCode"
	MetaCancelReason      = "cancelReason"
)

// Metadata is the open key/value document persisted with a reminder.
type Metadata map[string]any

// Merge returns a copy of m with every key of patch applied on top.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := make(Metadata, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func (m Metadata) Bool(key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Int reads a numeric value. JSON round trips turn integers into float64.
func (m Metadata) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Time reads an RFC 3339 timestamp.
func (m Metadata) Time(key string) (time.Time, bool) {
	s := m.String(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Value implements driver.Valuer so the document can be bound as a JSON column.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON and JSONB columns.
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case map[string]any:
		*m = Metadata(v)
		return nil
	default:
		return fmt.Errorf("unsupported metadata source %T", src)
	}
	out := Metadata{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("decoding metadata: %w", err)
		}
	}
	*m = out
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
