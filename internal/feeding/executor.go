package feeding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"snackloader/internal/metrics"
	"snackloader/internal/model"
)

// ErrFeedingFailed is returned when the dispenser command or the intake
// ledger could not be written. The feeding must be treated as not having happened.
var ErrFeedingFailed = errors.New("feeding failed")

// State exposes the latest live readings the executor decides on, and
// accepts the command snapshot it sends to a dispenser.
type State interface {
	Environment() model.Environment
	AdaptationEnabled() bool
	BowlWeight(pet model.Pet) float64
	SetDispatch(pet model.Pet, cmd model.DispatchCommand)
}

// Dispatcher sends a command snapshot to the dispenser of a pet.
type Dispatcher interface {
	Dispatch(ctx context.Context, pet model.Pet, cmd model.DispatchCommand) error
}

// IntakeRecorder adds dispensed grams to today's ledger.
type IntakeRecorder interface {
	Record(ctx context.Context, pet model.Pet, grams int) error
}

// HistoryRecorder stores the audit trail of feeding evaluations.
type HistoryRecorder interface {
	CreateFeedEvent(ctx context.Context, ev *model.FeedEvent) error
}

// Executor runs a single feeding: it adapts the portion to the weather,
// consults the bowl guard and, when allowed, commands the dispenser and
// records the intake. Manual and scheduled feedings share it.
type Executor struct {
	state      State
	dispatcher Dispatcher
	intake     IntakeRecorder
	history    HistoryRecorder
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time

	locks map[model.Pet]*sync.Mutex
}

// NewExecutor creates an Executor.
func NewExecutor(state State, dispatcher Dispatcher, intake IntakeRecorder, log *slog.Logger) *Executor {
	locks := make(map[model.Pet]*sync.Mutex, len(model.Pets))
	for _, p := range model.Pets {
		locks[p] = &sync.Mutex{}
	}
	return &Executor{
		state:      state,
		dispatcher: dispatcher,
		intake:     intake,
		log:        log,
		now:        time.Now,
		locks:      locks,
	}
}

// SetHistory enables the feeding audit trail.
func (e *Executor) SetHistory(h HistoryRecorder) {
	e.history = h
}

// SetMetrics enables outcome metrics.
func (e *Executor) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetClock overrides the time source used for command timestamps.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// Execute evaluates and, if approved, performs a feeding of requested grams.
// Skipped and blocked feedings are not errors; they are reported in the outcome.
func (e *Executor) Execute(ctx context.Context, pet model.Pet, requested int, source model.Source) (model.FeedingOutcome, error) {
	if _, err := model.ParsePet(string(pet)); err != nil {
		return model.FeedingOutcome{}, err
	}
	if err := pet.ValidateAmount(requested); err != nil {
		return model.FeedingOutcome{}, err
	}

	enabled := e.state.AdaptationEnabled()
	adapted := AdaptAmount(requested, enabled, e.state.Environment())
	bowl := e.state.BowlWeight(pet)

	outcome := model.FeedingOutcome{Pet: pet, Source: source, RequestedGrams: requested}
	log := e.log.With("pet", pet, "source", source, "requested", requested, "adapted", adapted, "bowl", bowl)

	switch Decide(adapted, bowl, enabled) {
	case BlockHeatDanger:
		outcome.Kind = model.OutcomeBlockedHeatDanger
		log.Warn("feeding blocked, heat index in danger band")
	case SkipBowlSufficient:
		outcome.Kind = model.OutcomeSkippedBowlSufficient
		log.Info("feeding skipped, bowl already has enough food")
	case Proceed:
		// A published command must reach the ledger even if the caller goes away.
		ctx = context.WithoutCancel(ctx)
		if err := e.dispense(ctx, pet, adapted, requested); err != nil {
			log.Error("feeding failed", "error", err)
			e.metrics.FeedingFailed(pet, source)
			return model.FeedingOutcome{}, fmt.Errorf("%w: %w", ErrFeedingFailed, err)
		}
		outcome.Kind = model.OutcomeFed
		outcome.AmountGrams = adapted
		log.Info("feeding dispatched")
	}

	e.metrics.FeedingEvaluated(outcome)
	e.recordHistory(ctx, outcome)
	return outcome, nil
}

// dispense sends the command and books the requested (pre-adaptation) amount,
// so the ledger reflects the configured intent regardless of weather.
func (e *Executor) dispense(ctx context.Context, pet model.Pet, grams, requested int) error {
	mu := e.locks[pet]
	mu.Lock()
	defer mu.Unlock()

	cmd := model.DispatchCommand{
		CommandID:   uuid.NewString(),
		Status:      model.DispatchCompleted,
		LastFedAtMs: e.now().UnixMilli(),
		AmountGrams: grams,
		Run:         true,
	}
	if err := e.dispatcher.Dispatch(ctx, pet, cmd); err != nil {
		return fmt.Errorf("dispatch command: %w", err)
	}
	e.state.SetDispatch(pet, cmd)

	if err := e.intake.Record(ctx, pet, requested); err != nil {
		return fmt.Errorf("record intake: %w", err)
	}
	return nil
}

func (e *Executor) recordHistory(ctx context.Context, o model.FeedingOutcome) {
	if e.history == nil {
		return
	}
	ev := &model.FeedEvent{
		ID:             uuid.NewString(),
		Pet:            o.Pet,
		Source:         o.Source,
		Outcome:        o.Kind,
		RequestedGrams: o.RequestedGrams,
		DispensedGrams: o.AmountGrams,
		CreatedAt:      e.now().UTC(),
	}
	if err := e.history.CreateFeedEvent(ctx, ev); err != nil {
		e.log.Error("record feed event", "pet", o.Pet, "error", err)
	}
}
