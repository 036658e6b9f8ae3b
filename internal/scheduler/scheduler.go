package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/channel"
	"github.com/hray3182/Followup/internal/logging"
	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/recurrence"
	"github.com/hray3182/Followup/internal/repository"
)

const (
	DefaultCheckInterval = time.Minute
	DefaultSendTimeout   = 30 * time.Second

	// warmUp delays the first check so startup migrations can finish.
	warmUp = 2 * time.Second
)

var (
	ErrReminderClosed    = errors.New("reminder is not pending or failed")
	ErrClientNotFound    = errors.New("client not found")
	ErrProjectNotFound   = errors.New("project not found")
	ErrRecipientOptedOut = errors.New("client opted out of reminders")
)

// Alerter is told about every tick that failed or errored.
type Alerter interface {
	TickCompleted(ctx context.Context, result TickResult)
}

// FailureSummary describes one reminder that failed during a tick.
type FailureSummary struct {
	ReminderID string
	Channel    models.Channel
	Kind       models.FailureKind
	Error      string
}

// TickResult counts what one tick did.
type TickResult struct {
	Started  time.Time
	Due      int
	Sent     int
	Failed   int
	Canceled int
	Deferred int
	Errors   int // reminders left pending by a store error, panic or lost race
	Skipped  bool
	Failures []FailureSummary
}

// NeedsAttention reports whether anything went wrong.
func (r TickResult) NeedsAttention() bool {
	return r.Failed > 0 || r.Errors > 0
}

type Options struct {
	Channels           channel.Set
	TestimonialBaseURL string
	CheckInterval      time.Duration
	SendTimeout        time.Duration
	EnforcePolicy      bool
	Alerter            Alerter
	Logger             *zap.Logger
	Now                func() time.Time
}

// Scheduler dispatches due reminders. One tick or manual send holds the
// dispatch slot at a time, and reminders within a tick are processed sequentially.
type Scheduler struct {
	reminders     repository.ReminderStore
	projects      repository.ProjectStore
	clients       repository.ClientStore
	channels      channel.Set
	planner       recurrence.Planner
	alerter       Alerter
	logger        *zap.Logger
	baseURL       string
	checkInterval time.Duration
	sendTimeout   time.Duration
	enforcePolicy bool
	now           func() time.Time
	slot          chan struct{} // held while a tick or manual send is dispatching
	notifyCh      chan struct{}
}

func New(store repository.Store, opts Options) *Scheduler {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		reminders:     store,
		projects:      store,
		clients:       store,
		channels:      opts.Channels,
		planner:       recurrence.Planner{EnforcePolicy: opts.EnforcePolicy},
		alerter:       opts.Alerter,
		logger:        opts.Logger.Named("scheduler"),
		baseURL:       opts.TestimonialBaseURL,
		checkInterval: opts.CheckInterval,
		sendTimeout:   opts.SendTimeout,
		enforcePolicy: opts.EnforcePolicy,
		now:           opts.Now,
		slot:          make(chan struct{}, 1),
		notifyCh:      make(chan struct{}, 1),
	}
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Start runs ticks every check interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	cronLogger := logging.NewCronLogger(s.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	spec := fmt.Sprintf("@every %s", s.checkInterval)
	if _, err := c.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("scheduling tick %q: %w", spec, err)
	}

	s.logger.Info("Scheduler started", zap.Duration("interval", s.checkInterval))

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(warmUp):
	}

	s.Tick(ctx)
	c.Start()
	defer func() {
		<-c.Stop().Done()
		s.logger.Info("Scheduler stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.notifyCh:
			s.logger.Debug("Scheduler triggered by notification")
			s.Tick(ctx)
		}
	}
}

// Tick processes every pending reminder that is due. A tick that overlaps a
// running tick or manual send returns immediately with Skipped set. The
// alerter is called after the dispatch slot is released.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	select {
	case s.slot <- struct{}{}:
	default:
		return TickResult{Skipped: true}
	}
	result := s.tick(ctx)
	s.report(ctx, result)
	return result
}

// acquire waits for the dispatch slot.
func (s *Scheduler) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release() {
	<-s.slot
}

// tick runs with the dispatch slot held and releases it on return.
func (s *Scheduler) tick(ctx context.Context) TickResult {
	defer s.release()

	now := s.now()
	result := TickResult{Started: now}

	pending, err := s.reminders.AllPendingReminders(ctx)
	if err != nil {
		s.logger.Error("Failed to get pending reminders", zap.Error(err))
		result.Errors++
		return result
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		if !p.IsDue(now) {
			continue
		}
		result.Due++
		s.processIsolated(ctx, p, now, &result)
	}
	return result
}

func (s *Scheduler) report(ctx context.Context, result TickResult) {
	if result.Due == 0 && result.Errors == 0 {
		return
	}
	s.logger.Info("Tick finished",
		zap.Int("due", result.Due),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("canceled", result.Canceled),
		zap.Int("deferred", result.Deferred),
		zap.Int("errors", result.Errors),
	)
	if s.alerter != nil && result.NeedsAttention() {
		s.alerter.TickCompleted(ctx, result)
	}
}

// processIsolated keeps one reminder's error or panic from affecting the rest of the tick.
func (s *Scheduler) processIsolated(ctx context.Context, p repository.PendingReminder, now time.Time, result *TickResult) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Panic while processing reminder",
				zap.String("reminder_id", p.ID), zap.Any("panic", rec), zap.Stack("stack"))
			result.Errors++
		}
	}()

	d, err := s.run(ctx, attempt{
		reminder:   p.Reminder,
		client:     p.Client,
		expect:     models.ReminderStatusPending,
		automated:  true,
		deferQuiet: s.enforcePolicy,
	}, now)

	switch d.kind {
	case dispositionSent:
		result.Sent++
	case dispositionFailed:
		result.Failed++
		result.Failures = append(result.Failures, FailureSummary{
			ReminderID: p.ID,
			Channel:    p.Channel,
			Kind:       d.failure.Kind,
			Error:      d.failure.Error,
		})
	case dispositionCanceled:
		result.Canceled++
	case dispositionDeferred:
		result.Deferred++
	default:
		if err != nil {
			s.logger.Warn("Reminder left pending", zap.String("reminder_id", p.ID), zap.Error(err))
		}
		result.Errors++
	}
}

// SendNow dispatches one reminder immediately. Pending and failed reminders
// may be sent; the outcome is recorded either way. It waits for a running
// tick to finish so the reminder is never dispatched twice.
func (s *Scheduler) SendNow(ctx context.Context, id string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	reminder, err := s.reminders.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, reminder)
}

// CreateAndSend stores r and dispatches it before any tick can pick it up.
// It returns the reminder as recorded, or nil when it could not be stored.
func (s *Scheduler) CreateAndSend(ctx context.Context, r *models.Reminder) (*models.Reminder, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if err := s.reminders.CreateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("creating reminder: %w", err)
	}
	sendErr := s.dispatch(ctx, r)

	stored, err := s.reminders.GetReminder(ctx, r.ID)
	if err != nil {
		s.logger.Warn("Failed to reload dispatched reminder", zap.String("reminder_id", r.ID), zap.Error(err))
		stored = r
	}
	return stored, sendErr
}

// dispatch sends one reminder outside the tick loop. The caller holds the slot.
func (s *Scheduler) dispatch(ctx context.Context, reminder *models.Reminder) error {
	if reminder.Status != models.ReminderStatusPending && reminder.Status != models.ReminderStatusFailed {
		return fmt.Errorf("reminder %s is %s: %w", reminder.ID, reminder.Status, ErrReminderClosed)
	}

	client, err := s.clients.GetClient(ctx, reminder.ClientID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("loading client of reminder %s: %w", reminder.ID, err)
	}
	if err != nil {
		client = nil
	}

	_, err = s.run(ctx, attempt{
		reminder: reminder,
		client:   client,
		expect:   reminder.Status,
	}, s.now())
	return err
}
