package livedata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"snackloader/internal/model"
	"snackloader/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeFeed struct {
	mu       sync.Mutex
	handlers map[string]func([]byte)
	closed   []string
	failOn   string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{handlers: make(map[string]func([]byte))}
}

func (f *fakeFeed) Subscribe(path string, handler func([]byte)) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == f.failOn {
		return nil, errors.New("subscribe refused")
	}
	f.handlers[path] = handler
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, path)
		f.closed = append(f.closed, path)
		return nil
	}, nil
}

func (f *fakeFeed) push(t *testing.T, path, payload string) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[path]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription on %s", path)
	}
	h([]byte(payload))
}

func ptr(v float64) *float64 { return &v }

func TestSessionDecodesPushedValues(t *testing.T) {
	feed := newFakeFeed()
	state := NewState()
	sess, err := Bind(feed, state, discard)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer sess.Close()

	feed.push(t, PathEnvironment, `{"temperature":32,"humidity":85}`)
	feed.push(t, PathAdaptation, `true`)
	feed.push(t, BowlPath(model.PetCat), `12.5`)
	feed.push(t, BowlPath(model.PetDog), `"oops"`)
	feed.push(t, DispenserPath(model.PetDog), `{"status":"completed","lastFed":1700000000000,"amount":120,"run":true}`)

	snap := state.Snapshot()
	want := Snapshot{
		Environment:       model.Environment{TemperatureC: ptr(32), HumidityPct: ptr(85)},
		AdaptationEnabled: true,
		BowlWeights:       map[model.Pet]float64{model.PetCat: 12.5},
		Dispatch: map[model.Pet]model.DispatchCommand{
			model.PetDog: {Status: model.DispatchCompleted, LastFedAtMs: 1700000000000, AmountGrams: 120, Run: true},
		},
		LastUpdate: snap.LastUpdate,
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionNullValues(t *testing.T) {
	feed := newFakeFeed()
	state := NewState()
	sess, err := Bind(feed, state, discard)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer sess.Close()

	feed.push(t, PathAdaptation, `true`)
	feed.push(t, BowlPath(model.PetCat), `40`)
	feed.push(t, PathEnvironment, `{"temperature":null,"humidity":60}`)

	feed.push(t, PathAdaptation, `null`)
	feed.push(t, BowlPath(model.PetCat), `null`)

	if state.AdaptationEnabled() {
		t.Error("expected null adaptation flag to read as disabled")
	}
	if got := state.BowlWeight(model.PetCat); got != 0 {
		t.Errorf("expected null bowl weight to read as 0, got %v", got)
	}
	env := state.Environment()
	if env.TemperatureC != nil {
		t.Errorf("expected missing temperature, got %v", *env.TemperatureC)
	}
	if env.HumidityPct == nil || *env.HumidityPct != 60 {
		t.Errorf("expected humidity 60, got %v", env.HumidityPct)
	}
}

func TestBindCleansUpOnError(t *testing.T) {
	feed := newFakeFeed()
	feed.failOn = DispenserPath(model.PetDog)

	_, err := Bind(feed, NewState(), discard)
	if err == nil {
		t.Fatal("expected bind error")
	}
	if len(feed.handlers) != 0 {
		t.Errorf("expected no live subscriptions, got %d", len(feed.handlers))
	}
}

func TestSessionCloseUnsubscribes(t *testing.T) {
	feed := newFakeFeed()
	sess, err := Bind(feed, NewState(), discard)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// environment, adaptation, and bowl plus dispenser for each pet
	if diff := cmp.Diff(2+2*len(model.Pets), len(feed.closed)); diff != "" {
		t.Errorf("unsubscribe count mismatch (-want +got):\n%s", diff)
	}
}

type fakeSettingsSource struct {
	settings *model.FeederSettings
	err      error
	updates  chan model.FeederSettings
}

func (f *fakeSettingsSource) Get(_ context.Context, _ string) (*model.FeederSettings, error) {
	return f.settings, f.err
}

func (f *fakeSettingsSource) Subscribe(_ string) (<-chan model.FeederSettings, func()) {
	var once sync.Once
	return f.updates, func() { once.Do(func() { close(f.updates) }) }
}

func TestFollowSettings(t *testing.T) {
	initial := model.DefaultSettings("u1")
	initial.Cat.Schedule = []model.ScheduleEntry{{Time: "08:00", AmountGrams: 20}}

	src := &fakeSettingsSource{settings: &initial, updates: make(chan model.FeederSettings, 1)}
	state := NewState()
	sess, err := Bind(newFakeFeed(), state, discard)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := sess.FollowSettings(context.Background(), src, "u1"); err != nil {
		t.Fatalf("follow: %v", err)
	}

	got, ok := state.Settings()
	if !ok {
		t.Fatal("expected settings to be loaded")
	}
	if diff := cmp.Diff(initial, got); diff != "" {
		t.Errorf("initial settings mismatch (-want +got):\n%s", diff)
	}

	next := initial.Clone()
	next.AutoFeedEnabled = false
	src.updates <- next

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ = state.Settings()
		if !got.AutoFeedEnabled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("settings update not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFollowSettingsNotFound(t *testing.T) {
	src := &fakeSettingsSource{err: storage.ErrNotFound, updates: make(chan model.FeederSettings)}
	state := NewState()
	sess, err := Bind(newFakeFeed(), state, discard)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer sess.Close()

	if err := sess.FollowSettings(context.Background(), src, "u1"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if _, ok := state.Settings(); ok {
		t.Error("expected no settings")
	}
}

func TestStateSnapshotIsCopy(t *testing.T) {
	state := NewState()
	state.SetBowlWeight(model.PetCat, 10)
	settings := model.DefaultSettings("u1")
	settings.Cat.Schedule = []model.ScheduleEntry{{Time: "08:00", AmountGrams: 20}}
	state.SetSettings(&settings)

	snap := state.Snapshot()
	snap.BowlWeights[model.PetCat] = 99
	snap.Settings.Cat.Schedule[0].AmountGrams = 99
	settings.Cat.Schedule[0].AmountGrams = 77

	if got := state.BowlWeight(model.PetCat); got != 10 {
		t.Errorf("bowl weight leaked through snapshot: %v", got)
	}
	got, _ := state.Settings()
	if got.Cat.Schedule[0].AmountGrams != 20 {
		t.Errorf("schedule leaked: %v", got.Cat.Schedule[0].AmountGrams)
	}
}
