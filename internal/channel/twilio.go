package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hray3182/Followup/internal/models"
)

const twilioBaseURL = "https://api.twilio.com"

// Twilio error codes that mean the destination number cannot receive messages.
var twilioRecipientCodes = map[int]bool{
	21211: true, // invalid 'To' phone number
	21614: true, // 'To' number is not a valid mobile number
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// TwilioConfig holds Twilio credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string // defaults to the public API
}

// TwilioSMS sends SMS through the Twilio Messages API.
type TwilioSMS struct {
	cfg    TwilioConfig
	client *http.Client
}

var _ SMS = (*TwilioSMS)(nil)

func NewTwilioSMS(cfg TwilioConfig) *TwilioSMS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	return &TwilioSMS{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (t *TwilioSMS) SendSMS(ctx context.Context, to, body string) error {
	to = normalizePhone(to)
	if !e164.MatchString(to) {
		return InvalidRecipient(models.ChannelSMS, fmt.Sprintf("phone number %q is not in E.164 format", to))
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.cfg.FromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Unavailable(models.ChannelSMS, "building request", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Unavailable(models.ChannelSMS, "calling Twilio", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr twilioError
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Code == 0 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return Unavailable(models.ChannelSMS, fmt.Sprintf("Twilio returned %d", resp.StatusCode), nil)
		}
		return Rejected(models.ChannelSMS, strconv.Itoa(resp.StatusCode), strings.TrimSpace(string(raw)), nil)
	}

	code := strconv.Itoa(apiErr.Code)
	if twilioRecipientCodes[apiErr.Code] {
		se := InvalidRecipient(models.ChannelSMS, apiErr.Message)
		se.Code = code
		return se
	}
	if resp.StatusCode >= 500 {
		se := Unavailable(models.ChannelSMS, apiErr.Message, nil)
		se.Code = code
		return se
	}
	return Rejected(models.ChannelSMS, code, apiErr.Message, nil)
}

// normalizePhone strips the separators people type into phone fields.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}
