// Package channel delivers rendered reminders over email and SMS.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/hray3182/Followup/internal/models"
)

// EmailMessage is one outbound email. An empty From uses the sender's default address.
type EmailMessage struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Email sends email.
type Email interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// SMS sends text messages.
type SMS interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SendError is the typed failure of a delivery attempt.
type SendError struct {
	Kind    models.FailureKind
	Channel models.Channel
	Code    string // provider error code, if any
	Message string
	Err     error
}

func (e *SendError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Channel, e.Kind, e.Message)
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SendError) Unwrap() error { return e.Err }

func Unavailable(ch models.Channel, message string, err error) *SendError {
	return &SendError{Kind: models.FailureProviderUnavailable, Channel: ch, Message: message, Err: err}
}

func InvalidRecipient(ch models.Channel, message string) *SendError {
	return &SendError{Kind: models.FailureInvalidRecipient, Channel: ch, Message: message}
}

func Rejected(ch models.Channel, code, message string, err error) *SendError {
	return &SendError{Kind: models.FailureProviderRejected, Channel: ch, Code: code, Message: message, Err: err}
}

// AsSendError returns err as a *SendError. Foreign errors are classified as
// provider_rejected on channel ch.
func AsSendError(ch models.Channel, err error) *SendError {
	if err == nil {
		return nil
	}
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Unavailable(ch, "send timed out", err)
	}
	return Rejected(ch, "", "send failed", err)
}

// Set holds the configured providers. A nil member is an unconfigured provider.
type Set struct {
	Email Email
	SMS   SMS
}

// Content is the rendered message handed to Deliver.
type Content struct {
	Subject string
	Text    string
	HTML    string
}

// Deliver routes content to the provider for ch. The recipient is checked
// before the provider is called.
func (s Set) Deliver(ctx context.Context, ch models.Channel, client *models.Client, content Content) error {
	switch ch {
	case models.ChannelEmail:
		if s.Email == nil {
			return Unavailable(ch, "email provider not configured", nil)
		}
		if client.Email == "" {
			return InvalidRecipient(ch, "client has no email address")
		}
		return s.Email.SendEmail(ctx, EmailMessage{
			To:      client.Email,
			Subject: content.Subject,
			Text:    content.Text,
			HTML:    content.HTML,
		})
	case models.ChannelSMS:
		if s.SMS == nil {
			return Unavailable(ch, "sms provider not configured", nil)
		}
		if !client.HasPhone() {
			return InvalidRecipient(ch, "client has no phone number")
		}
		return s.SMS.SendSMS(ctx, client.Phone, content.Text)
	}
	return Unavailable(ch, fmt.Sprintf("unknown channel %q", ch), nil)
}
