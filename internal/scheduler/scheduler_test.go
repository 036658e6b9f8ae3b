package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/Followup/internal/channel"
	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/repository/sqlite"
	"github.com/hray3182/Followup/internal/testutil"
)

var tickNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeEmail struct {
	mu      sync.Mutex
	sent    []channel.EmailMessage
	err     error
	entered chan struct{}
	release chan struct{}
	hook    func(msg channel.EmailMessage)
}

func (f *fakeEmail) SendEmail(ctx context.Context, msg channel.EmailMessage) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.hook != nil {
		f.hook(msg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeEmail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSMS struct {
	calls int
	err   error
}

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) error {
	f.calls++
	return f.err
}

type recordingAlerter struct {
	results []TickResult
	hook    func()
}

func (a *recordingAlerter) TickCompleted(ctx context.Context, result TickResult) {
	a.results = append(a.results, result)
	if a.hook != nil {
		a.hook()
	}
}

func newScheduler(t *testing.T, store *sqlite.Store, channels channel.Set, opts Options) *Scheduler {
	t.Helper()
	opts.Channels = channels
	opts.TestimonialBaseURL = "https://reviews.example.com"
	if opts.Now == nil {
		opts.Now = func() time.Time { return tickNow }
	}
	return New(store, opts)
}

func seedBasics(t *testing.T, store *sqlite.Store, settings models.ReminderSettings) (*models.Project, *models.Client) {
	t.Helper()
	p := testutil.SeedProject(t, store, settings)
	c := testutil.SeedClient(t, store, p, "Ada", "ada@example.com", "")
	return p, c
}

func getReminder(t *testing.T, store *sqlite.Store, id string) *models.Reminder {
	t.Helper()
	r, err := store.GetReminder(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestTickSendsDueReminders(t *testing.T) {
	store := testutil.NewTestStore(t)
	p, c := seedBasics(t, store, models.ReminderSettings{})
	due := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow.Add(-time.Minute), nil)
	future := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow.Add(time.Hour), nil)

	email := &fakeEmail{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	result := s.Tick(context.Background())

	assert.Equal(t, 1, result.Due)
	assert.Equal(t, 1, result.Sent)
	require.Equal(t, 1, email.count())
	msg := email.sent[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Contains(t, msg.Text, "https://reviews.example.com/testimonials/"+p.ID+"?email=ada%40example.com")
	assert.Contains(t, msg.Subject, "Ada")
	assert.NotEmpty(t, msg.HTML)

	got := getReminder(t, store, due.ID)
	assert.Equal(t, models.ReminderStatusSent, got.Status)
	assert.Equal(t, 1, got.AttemptNumber)
	assert.True(t, got.Metadata.Bool(models.MetaAutomated))
	sentAt, ok := got.Metadata.Time(models.MetaSentAt)
	require.True(t, ok)
	assert.True(t, sentAt.Equal(tickNow))

	assert.Equal(t, models.ReminderStatusPending, getReminder(t, store, future.ID).Status)
}

func TestTickOptOutTakesPrecedence(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, c := seedBasics(t, store, models.ReminderSettings{})
	require.NoError(t, store.SetClientOptOut(context.Background(), c.ID, true))
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	result := s.Tick(context.Background())

	assert.Equal(t, 1, result.Canceled)
	assert.Equal(t, 0, email.count())
	got := getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusCanceled, got.Status)
	assert.Equal(t, 0, got.AttemptNumber)
	assert.Equal(t, string(models.CancelClientOptedOut), got.Metadata.String(models.MetaCancelReason))
}

func TestTickConcurrentCallsDoNotDoubleSend(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{entered: make(chan struct{}), release: make(chan struct{})}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	done := make(chan TickResult)
	go func() { done <- s.Tick(context.Background()) }()

	<-email.entered
	second := s.Tick(context.Background())
	assert.True(t, second.Skipped)

	close(email.release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Sent)

	third := s.Tick(context.Background())
	assert.Equal(t, 0, third.Due)

	assert.Equal(t, 1, email.count())
	got := getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusSent, got.Status)
	assert.Equal(t, 1, got.AttemptNumber)
}

func TestTickRecurringSuccessScheduledSuccessor(t *testing.T) {
	store := testutil.NewTestStore(t)
	p, c := seedBasics(t, store, models.ReminderSettings{
		Schedule: []models.ScheduleRule{{OffsetDays: 3, SendTime: "11:15"}},
	})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, models.RecurrenceInfo{
		Recurring: true, Interval: "weekly", Sequence: 2,
	}.Metadata())

	s := newScheduler(t, store, channel.Set{Email: &fakeEmail{}}, Options{})
	s.Tick(context.Background())

	pending, err := store.PendingRemindersForProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	child := pending[0]
	assert.NotEqual(t, r.ID, child.ID)
	assert.True(t, child.ScheduledAt.Equal(time.Date(2024, 1, 8, 11, 15, 0, 0, time.UTC)), "scheduledAt = %v", child.ScheduledAt)
	info := child.Recurrence()
	assert.Equal(t, 3, info.Sequence)
	assert.Equal(t, r.ID, info.ParentReminderID)
	assert.Equal(t, models.ChannelEmail, child.Channel)
}

func TestTickFailureHaltsRecurrence(t *testing.T) {
	store := testutil.NewTestStore(t)
	p, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, models.RecurrenceInfo{
		Recurring: true, Interval: "daily",
	}.Metadata())

	email := &fakeEmail{err: channel.Rejected(models.ChannelEmail, "554", "message refused", nil)}
	alerter := &recordingAlerter{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{Alerter: alerter})

	result := s.Tick(context.Background())

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, models.FailureProviderRejected, result.Failures[0].Kind)
	require.Len(t, alerter.results, 1)

	got := getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusFailed, got.Status)
	assert.Equal(t, 1, got.AttemptNumber)
	outcome, ok := got.Outcome()
	require.True(t, ok)
	failed := outcome.(models.Failed)
	assert.Equal(t, models.FailureProviderRejected, failed.Kind)
	assert.Equal(t, "554", failed.ProviderCode)
	assert.True(t, failed.Automated)

	pending, err := store.PendingRemindersForProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTickSMSWithoutPhoneFailsWithoutSending(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelSMS, tickNow, nil)

	sms := &fakeSMS{}
	s := newScheduler(t, store, channel.Set{SMS: sms}, Options{})
	s.Tick(context.Background())

	assert.Equal(t, 0, sms.calls)
	got := getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusFailed, got.Status)
	assert.Equal(t, string(models.FailureInvalidRecipient), got.Metadata.String(models.MetaErrorKind))
}

func TestTickMissingClientAndProject(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	p, c := seedBasics(t, store, models.ReminderSettings{})

	orphan := &models.Reminder{ProjectID: p.ID, ClientID: "gone", Channel: models.ChannelEmail, ScheduledAt: tickNow}
	require.NoError(t, store.CreateReminder(ctx, orphan))
	lost := &models.Reminder{ProjectID: "gone", ClientID: c.ID, Channel: models.ChannelEmail, ScheduledAt: tickNow}
	require.NoError(t, store.CreateReminder(ctx, lost))

	email := &fakeEmail{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})
	result := s.Tick(ctx)

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, email.count())

	got := getReminder(t, store, orphan.ID)
	assert.Equal(t, models.ReminderStatusFailed, got.Status)
	assert.Equal(t, "Client not found", got.Metadata.String(models.MetaError))
	assert.Equal(t, 0, got.AttemptNumber)

	got = getReminder(t, store, lost.ID)
	assert.Equal(t, models.ReminderStatusFailed, got.Status)
	assert.Equal(t, string(models.FailureProjectNotFound), got.Metadata.String(models.MetaErrorKind))
}

func TestTickQuietHoursDeferral(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, c := seedBasics(t, store, models.ReminderSettings{
		QuietHours: &models.QuietHours{Start: "08:00", End: "12:00"},
	})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{}
	enforced := newScheduler(t, store, channel.Set{Email: email}, Options{EnforcePolicy: true})
	result := enforced.Tick(context.Background())

	assert.Equal(t, 1, result.Deferred)
	assert.Equal(t, 0, email.count())
	assert.Equal(t, models.ReminderStatusPending, getReminder(t, store, r.ID).Status)

	relaxed := newScheduler(t, store, channel.Set{Email: email}, Options{})
	result = relaxed.Tick(context.Background())
	assert.Equal(t, 1, result.Sent)
}

func TestTickLostRaceKeepsCancellation(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{}
	email.hook = func(channel.EmailMessage) {
		_, err := store.UpdateReminder(context.Background(), r.ID,
			models.OutcomePatch(models.Canceled{At: tickNow, Reason: models.CancelTestimonialReceived}, models.ReminderStatusPending, false))
		require.NoError(t, err)
	}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	result := s.Tick(context.Background())

	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 1, result.Errors)
	got := getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusCanceled, got.Status)
	assert.Equal(t, 0, got.AttemptNumber)
}

type panickingSMS struct{}

func (panickingSMS) SendSMS(ctx context.Context, to, body string) error {
	panic("provider exploded")
}

func TestTickIsolatesPanics(t *testing.T) {
	store := testutil.NewTestStore(t)
	p, c := seedBasics(t, store, models.ReminderSettings{})
	phoned := testutil.SeedClient(t, store, p, "Bob", "bob@example.com", "+15551234567")
	bad := testutil.SeedReminder(t, store, phoned, models.ChannelSMS, tickNow.Add(-time.Hour), nil)
	good := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{}
	s := newScheduler(t, store, channel.Set{Email: email, SMS: panickingSMS{}}, Options{})
	result := s.Tick(context.Background())

	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, models.ReminderStatusPending, getReminder(t, store, bad.ID).Status)
	assert.Equal(t, models.ReminderStatusSent, getReminder(t, store, good.ID).Status)
}

func TestSendNow(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	_, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow.Add(24*time.Hour), nil)

	email := &fakeEmail{err: channel.Unavailable(models.ChannelEmail, "connection refused", nil)}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	err := s.SendNow(ctx, r.ID)
	var se *channel.SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.FailureProviderUnavailable, se.Kind)
	got := getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusFailed, got.Status)
	assert.False(t, got.Metadata.Bool(models.MetaAutomated))

	email.err = nil
	require.NoError(t, s.SendNow(ctx, r.ID))
	got = getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusSent, got.Status)
	assert.Equal(t, 2, got.AttemptNumber)
	assert.NotContains(t, got.Metadata, models.MetaError)
	assert.NotContains(t, got.Metadata, models.MetaErrorKind)
	assert.NotContains(t, got.Metadata, models.MetaFailedAt)

	assert.ErrorIs(t, s.SendNow(ctx, r.ID), ErrReminderClosed)
}

func TestSendNowExcludesConcurrentTick(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	_, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	var during []TickResult
	email.hook = func(channel.EmailMessage) { during = append(during, s.Tick(ctx)) }

	require.NoError(t, s.SendNow(ctx, r.ID))
	require.Len(t, during, 1)
	assert.True(t, during[0].Skipped)

	email.hook = nil
	after := s.Tick(ctx)
	assert.Equal(t, 0, after.Due)

	assert.Equal(t, 1, email.count())
	got := getReminder(t, store, r.ID)
	assert.Equal(t, models.ReminderStatusSent, got.Status)
	assert.Equal(t, 1, got.AttemptNumber)
}

func TestSendNowWaitsForRunningTick(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{entered: make(chan struct{}), release: make(chan struct{})}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	done := make(chan TickResult)
	go func() { done <- s.Tick(context.Background()) }()
	<-email.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.SendNow(ctx, r.ID), context.DeadlineExceeded)

	close(email.release)
	assert.Equal(t, 1, (<-done).Sent)

	assert.ErrorIs(t, s.SendNow(context.Background(), r.ID), ErrReminderClosed)
	assert.Equal(t, 1, email.count())
}

func TestCreateAndSendDispatchesBeforeTickSeesIt(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	p, c := seedBasics(t, store, models.ReminderSettings{})

	email := &fakeEmail{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})
	var during []TickResult
	email.hook = func(channel.EmailMessage) { during = append(during, s.Tick(ctx)) }

	stored, err := s.CreateAndSend(ctx, &models.Reminder{
		ProjectID: p.ID, ClientID: c.ID, Channel: models.ChannelEmail, ScheduledAt: tickNow,
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.ReminderStatusSent, stored.Status)
	require.Len(t, during, 1)
	assert.True(t, during[0].Skipped)
	assert.Equal(t, 1, email.count())

	stored, err = s.CreateAndSend(ctx, &models.Reminder{
		ProjectID: p.ID, ClientID: c.ID, Channel: "fax", ScheduledAt: tickNow,
	})
	assert.Nil(t, stored)
	assert.Error(t, err)
}

func TestAlerterRunsAfterTickReleasesSlot(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	_, c := seedBasics(t, store, models.ReminderSettings{})
	testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)

	email := &fakeEmail{err: channel.Unavailable(models.ChannelEmail, "timeout", nil)}
	alerter := &recordingAlerter{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{Alerter: alerter})

	var during []TickResult
	alerter.hook = func() { during = append(during, s.Tick(ctx)) }

	result := s.Tick(ctx)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, during, 1)
	assert.False(t, during[0].Skipped)
}

func TestSendNowOptedOut(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	_, c := seedBasics(t, store, models.ReminderSettings{})
	r := testutil.SeedReminder(t, store, c, models.ChannelEmail, tickNow, nil)
	require.NoError(t, store.SetClientOptOut(ctx, c.ID, true))

	email := &fakeEmail{}
	s := newScheduler(t, store, channel.Set{Email: email}, Options{})

	assert.ErrorIs(t, s.SendNow(ctx, r.ID), ErrRecipientOptedOut)
	assert.Equal(t, 0, email.count())
	assert.Equal(t, models.ReminderStatusCanceled, getReminder(t, store, r.ID).Status)
}

func TestNotifyIsNonBlocking(t *testing.T) {
	store := testutil.NewTestStore(t)
	s := newScheduler(t, store, channel.Set{}, Options{})

	s.Notify()
	s.Notify()
	assert.Len(t, s.notifyCh, 1)
}
