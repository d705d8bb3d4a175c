package livedata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"snackloader/internal/model"
	"snackloader/internal/storage"
)

// Paths of the live values, relative to the feed root.
const (
	PathEnvironment = "temperature"
	PathAdaptation  = "settings/tempAdapt"
)

// BowlPath is where the scale of pet's bowl reports its weight.
func BowlPath(pet model.Pet) string {
	return "petfeeder/" + string(pet) + "/bowlWeight/weight"
}

// DispenserPath is where pet's dispenser command snapshot lives.
func DispenserPath(pet model.Pet) string {
	return "dispenser/" + string(pet)
}

// Feed delivers value-changed events for a path until unsubscribed.
type Feed interface {
	Subscribe(path string, handler func(payload []byte)) (unsubscribe func() error, err error)
}

// SettingsSource provides the feeder settings document and its updates.
type SettingsSource interface {
	Get(ctx context.Context, userID string) (*model.FeederSettings, error)
	Subscribe(userID string) (<-chan model.FeederSettings, func())
}

// Session keeps a State up to date for as long as it is open.
type Session struct {
	state *State
	log   *slog.Logger

	mu     sync.Mutex
	unsubs []func() error
	wg     sync.WaitGroup
}

// Bind subscribes state to every live path of feed. On error, any
// subscription already made is released.
func Bind(feed Feed, state *State, log *slog.Logger) (*Session, error) {
	s := &Session{state: state, log: log}

	handlers := map[string]func([]byte){
		PathEnvironment: s.onEnvironment,
		PathAdaptation:  s.onAdaptation,
	}
	for _, pet := range model.Pets {
		handlers[BowlPath(pet)] = s.onBowlWeight(pet)
		handlers[DispenserPath(pet)] = s.onDispatch(pet)
	}

	for path, h := range handlers {
		unsub, err := feed.Subscribe(path, h)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("subscribe %s: %w", path, err)
		}
		s.addUnsub(unsub)
	}
	return s, nil
}

// FollowSettings loads the settings of userID into the state and keeps them
// current. Absent settings leave the state without settings.
func (s *Session) FollowSettings(ctx context.Context, src SettingsSource, userID string) error {
	updates, cancel := src.Subscribe(userID)

	settings, err := src.Get(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Info("no feeder settings yet, automatic feeding inactive", "user_id", userID)
	case err != nil:
		cancel()
		return fmt.Errorf("load settings: %w", err)
	default:
		s.state.SetSettings(settings)
	}

	s.addUnsub(func() error {
		cancel()
		return nil
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for v := range updates {
			s.state.SetSettings(&v)
			s.log.Debug("feeder settings updated", "user_id", userID, "auto_feed", v.AutoFeedEnabled)
		}
	}()
	return nil
}

// Close releases every subscription and waits for watchers to stop.
func (s *Session) Close() error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	var errs []error
	for _, u := range unsubs {
		if err := u(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

func (s *Session) addUnsub(u func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs = append(s.unsubs, u)
}

type environmentPayload struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

func (s *Session) onEnvironment(payload []byte) {
	if isNull(payload) {
		return
	}
	var p environmentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Warn("decode environment", "payload", string(payload), "error", err)
		return
	}
	s.state.SetEnvironment(model.Environment{TemperatureC: p.Temperature, HumidityPct: p.Humidity})
}

func (s *Session) onAdaptation(payload []byte) {
	if isNull(payload) {
		s.state.SetAdaptationEnabled(false)
		return
	}
	v, err := strconv.ParseBool(string(bytes.TrimSpace(payload)))
	if err != nil {
		s.log.Warn("decode adaptation flag", "payload", string(payload), "error", err)
		return
	}
	s.state.SetAdaptationEnabled(v)
}

func (s *Session) onBowlWeight(pet model.Pet) func([]byte) {
	return func(payload []byte) {
		if isNull(payload) {
			s.state.SetBowlWeight(pet, 0)
			return
		}
		v, err := strconv.ParseFloat(string(bytes.TrimSpace(payload)), 64)
		if err != nil {
			s.log.Warn("decode bowl weight", "pet", pet, "payload", string(payload), "error", err)
			return
		}
		s.state.SetBowlWeight(pet, v)
	}
}

func (s *Session) onDispatch(pet model.Pet) func([]byte) {
	return func(payload []byte) {
		if isNull(payload) {
			return
		}
		var cmd model.DispatchCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			s.log.Warn("decode dispatch state", "pet", pet, "error", err)
			return
		}
		s.state.SetDispatch(pet, cmd)
	}
}

func isNull(payload []byte) bool {
	p := bytes.TrimSpace(payload)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}
