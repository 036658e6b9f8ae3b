package channel

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/hray3182/Followup/internal/models"
)

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // empty disables AUTH
	Password string
	From     string
}

// SMTPEmail sends multipart text/html email over SMTP.
type SMTPEmail struct {
	cfg    SMTPConfig
	dialer net.Dialer
	now    func() time.Time
}

var _ Email = (*SMTPEmail)(nil)

func NewSMTPEmail(cfg SMTPConfig) *SMTPEmail {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPEmail{cfg: cfg, now: time.Now}
}

func (s *SMTPEmail) SendEmail(ctx context.Context, msg EmailMessage) error {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return InvalidRecipient(models.ChannelEmail, fmt.Sprintf("invalid email address %q", msg.To))
	}
	fromAddr := msg.From
	if fromAddr == "" {
		fromAddr = s.cfg.From
	}
	from, err := mail.ParseAddress(fromAddr)
	if err != nil {
		return Unavailable(models.ChannelEmail, fmt.Sprintf("invalid sender address %q", fromAddr), err)
	}

	body, err := composeMessage(from, to, msg, s.now())
	if err != nil {
		return Unavailable(models.ChannelEmail, "composing message", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Unavailable(models.ChannelEmail, "connecting to "+addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return classifySMTP(err, "greeting")
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return Unavailable(models.ChannelEmail, "starting TLS", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return classifySMTP(err, "authenticating")
		}
	}

	if err := client.Mail(from.Address); err != nil {
		return classifySMTP(err, "MAIL FROM")
	}
	if err := client.Rcpt(to.Address); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 550 && tpErr.Code <= 553 {
			se := InvalidRecipient(models.ChannelEmail, tpErr.Msg)
			se.Code = strconv.Itoa(tpErr.Code)
			return se
		}
		return classifySMTP(err, "RCPT TO")
	}

	w, err := client.Data()
	if err != nil {
		return classifySMTP(err, "DATA")
	}
	if _, err := w.Write(body); err != nil {
		return Unavailable(models.ChannelEmail, "writing message", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP(err, "finishing DATA")
	}
	if err := client.Quit(); err != nil {
		return classifySMTP(err, "QUIT")
	}
	return nil
}

// classifySMTP maps permanent (5xx) replies to provider_rejected and
// everything else to provider_unavailable.
func classifySMTP(err error, step string) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return Rejected(models.ChannelEmail, strconv.Itoa(tpErr.Code), step, err)
	}
	return Unavailable(models.ChannelEmail, step, err)
}

// composeMessage renders a multipart/alternative message with a text and, if
// present, an HTML part.
func composeMessage(from, to *mail.Address, msg EmailMessage, date time.Time) ([]byte, error) {
	var h gomail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*gomail.Address{{Name: from.Name, Address: from.Address}})
	h.SetAddressList("To", []*gomail.Address{{Name: to.Name, Address: to.Address}})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}

	if err := writePart(iw, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writePart(iw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}

	if err := iw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(iw *gomail.InlineWriter, contentType, body string) error {
	var ph gomail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(ph)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
