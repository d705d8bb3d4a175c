// Package ledger keeps the daily per-pet record of dispensed food and
// reconciles it against what is left in the bowl at the end of the day.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"snackloader/internal/metrics"
	"snackloader/internal/model"
)

// Store persists ledger rows. AddDispensed must be a single atomic
// increment so concurrent feedings never lose an update.
type Store interface {
	AddDispensed(ctx context.Context, date string, pet model.Pet, grams int, at time.Time) error
	ListIntake(ctx context.Context, date string) ([]model.DailyIntake, error)
	SetReconciliation(ctx context.Context, date string, pet model.Pet, bowlWeight, intake float64, at time.Time) error
}

// BowlReader returns the latest bowl weight of a pet.
type BowlReader interface {
	BowlWeight(pet model.Pet) float64
}

// Ledger records dispensed grams per pet per local calendar day.
type Ledger struct {
	store   Store
	bowls   BowlReader
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Ledger whose days are calendar days in loc.
func New(store Store, bowls BowlReader, loc *time.Location, log *slog.Logger) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		store: store,
		bowls: bowls,
		loc:   loc,
		now:   time.Now,
		log:   log,
	}
}

// SetClock overrides the time source used to pick today's date.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// SetMetrics enables ledger write metrics.
func (l *Ledger) SetMetrics(m *metrics.Metrics) {
	l.metrics = m
}

// Today returns the ledger key of the current local day.
func (l *Ledger) Today() string {
	return l.now().In(l.loc).Format(model.DateLayout)
}

// Record adds grams to today's total for the pet.
func (l *Ledger) Record(ctx context.Context, pet model.Pet, grams int) error {
	return l.RecordOn(ctx, l.Today(), pet, grams)
}

// RecordOn adds grams to the total for the pet on date.
func (l *Ledger) RecordOn(ctx context.Context, date string, pet model.Pet, grams int) error {
	if grams <= 0 {
		return fmt.Errorf("%w: ledger amount must be positive, got %d", model.ErrInvalidAmount, grams)
	}
	err := l.store.AddDispensed(ctx, date, pet, grams, l.now().UTC())
	l.metrics.LedgerWrite("record", err)
	if err != nil {
		return fmt.Errorf("add dispensed: %w", err)
	}
	l.log.Info("daily intake updated", "date", date, "pet", pet, "grams", grams)
	return nil
}

// Reconcile computes the calculated intake of every pet on date from the
// dispensed total and the bowl weight at call time. Days without any
// feeding are left untouched.
func (l *Ledger) Reconcile(ctx context.Context, date string) error {
	rows, err := l.store.ListIntake(ctx, date)
	if err != nil {
		return fmt.Errorf("list intake: %w", err)
	}
	if len(rows) == 0 {
		l.log.Debug("no intake to reconcile", "date", date)
		return nil
	}

	totals := make(map[model.Pet]int, len(rows))
	for _, r := range rows {
		totals[r.Pet] = r.TotalDispensedGrams
	}

	at := l.now().UTC()
	for _, pet := range model.Pets {
		bowl := l.bowls.BowlWeight(pet)
		intake := CalculatedIntake(totals[pet], bowl)
		err := l.store.SetReconciliation(ctx, date, pet, bowl, intake, at)
		l.metrics.LedgerWrite("reconcile", err)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", pet, err)
		}
		l.log.Info("daily intake calculated", "date", date, "pet", pet, "dispensed", totals[pet], "bowl", bowl, "intake", intake)
	}
	return nil
}

// Day returns the ledger rows of date.
func (l *Ledger) Day(ctx context.Context, date string) ([]model.DailyIntake, error) {
	rows, err := l.store.ListIntake(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list intake: %w", err)
	}
	return rows, nil
}

// CalculatedIntake is what the pet ate: dispensed minus what is left, never negative.
func CalculatedIntake(dispensed int, bowlWeight float64) float64 {
	return math.Max(0, float64(dispensed)-bowlWeight)
}
