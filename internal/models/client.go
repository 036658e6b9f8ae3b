package models

import "time"

// WorkStatusCompleted is the client work status that triggers automatic follow-ups.
const WorkStatusCompleted = "completed"

// Client is a project's customer who is asked for a testimonial.
type Client struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"` // empty when unknown
	ReminderOptOut bool      `json:"reminderOptOut"`
	WorkStatus     string    `json:"workStatus"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasPhone reports whether the client can receive SMS.
func (c *Client) HasPhone() bool {
	return c.Phone != ""
}
