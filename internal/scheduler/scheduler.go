// Package scheduler fires configured feeding slots and closes the daily
// ledger at local midnight.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"snackloader/internal/metrics"
	"snackloader/internal/model"
)

const clockLayout = "15:04"

// SettingsSource returns the latest feeder settings, or false if none are known.
type SettingsSource interface {
	Settings() (model.FeederSettings, bool)
}

// Feeder performs a feeding.
type Feeder interface {
	Execute(ctx context.Context, pet model.Pet, requested int, source model.Source) (model.FeedingOutcome, error)
}

// Reconciler closes a ledger day.
type Reconciler interface {
	Reconcile(ctx context.Context, date string) error
}

// Notifier is told about every scheduled feeding.
type Notifier interface {
	NotifyFeeding(o model.FeedingOutcome, err error)
}

type slotKey struct {
	pet  model.Pet
	time string
	date string
}

// Scheduler matches the wall clock against every pet's schedule once per
// tick. Each slot fires at most once per local day; a slot whose minute
// passes while the process is not running is not caught up.
type Scheduler struct {
	settings SettingsSource
	feeder   Feeder
	ledger   Reconciler
	loc      *time.Location
	log      *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	tick     time.Duration
	now      func() time.Time

	// Owned by the Run goroutine.
	fired map[slotKey]struct{}
	day   string
}

// New creates a Scheduler that reads the clock in loc.
func New(settings SettingsSource, feeder Feeder, ledger Reconciler, loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		settings: settings,
		feeder:   feeder,
		ledger:   ledger,
		loc:      loc,
		log:      log,
		tick:     1 * time.Second,
		now:      time.Now,
		fired:    make(map[slotKey]struct{}),
	}
}

// SetTickInterval overrides the default 1-second tick.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetClock overrides the wall clock.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetMetrics enables schedule metrics.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetNotifier registers n to receive scheduled feeding results.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "tick", s.tick, "timezone", s.loc.String())
	s.checkAll(ctx, s.now())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.checkAll(ctx, s.now())
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panicked", "panic", r)
		}
	}()

	local := now.In(s.loc)
	today := local.Format(model.DateLayout)
	if s.day != "" && s.day != today {
		s.rollover(ctx, s.day)
	}
	s.day = today

	settings, ok := s.settings.Settings()
	if !ok || !settings.AutoFeedEnabled {
		return
	}

	clock := local.Format(clockLayout)
	for _, pet := range model.Pets {
		for _, entry := range settings.Schedule(pet) {
			if ctx.Err() != nil {
				return
			}
			if entry.Time != clock {
				continue
			}
			key := slotKey{pet: pet, time: entry.Time, date: today}
			if _, done := s.fired[key]; done {
				continue
			}
			s.fired[key] = struct{}{}
			s.fire(ctx, pet, entry)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, pet model.Pet, entry model.ScheduleEntry) {
	s.metrics.ScheduleFired(pet)
	log := s.log.With("pet", pet, "time", entry.Time, "amount", entry.AmountGrams)

	outcome, err := s.feeder.Execute(ctx, pet, entry.AmountGrams, model.SourceScheduled)
	if s.notifier != nil {
		if err != nil {
			outcome.Pet = pet
		}
		s.notifier.NotifyFeeding(outcome, err)
	}
	if err != nil {
		log.Error("scheduled feeding failed", "error", err)
		return
	}
	log.Info("scheduled feeding evaluated", "outcome", outcome.Kind, "dispensed", outcome.AmountGrams)
}

func (s *Scheduler) rollover(ctx context.Context, previous string) {
	clear(s.fired)
	if err := s.ledger.Reconcile(ctx, previous); err != nil {
		s.log.Error("reconcile daily intake", "date", previous, "error", err)
		return
	}
	s.log.Info("daily intake closed", "date", previous)
}
