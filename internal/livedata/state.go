// Package livedata holds the session-scoped cache of pushed device readings
// and binds it to a live feed for the lifetime of a session.
package livedata

import (
	"sync"
	"time"

	"snackloader/internal/model"
)

// State is the latest known value of every live reading. It is safe for
// concurrent use; readers always get the most recent value, with no
// staleness bound.
type State struct {
	mu       sync.RWMutex
	env      model.Environment
	adapt    bool
	bowls    map[model.Pet]float64
	dispatch map[model.Pet]model.DispatchCommand
	settings *model.FeederSettings
	updated  time.Time
	now      func() time.Time
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		bowls:    make(map[model.Pet]float64),
		dispatch: make(map[model.Pet]model.DispatchCommand),
		now:      time.Now,
	}
}

// Snapshot is a consistent copy of the whole State.
type Snapshot struct {
	Environment       model.Environment
	AdaptationEnabled bool
	BowlWeights       map[model.Pet]float64
	Dispatch          map[model.Pet]model.DispatchCommand
	Settings          *model.FeederSettings
	LastUpdate        time.Time
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Environment:       copyEnv(s.env),
		AdaptationEnabled: s.adapt,
		BowlWeights:       make(map[model.Pet]float64, len(s.bowls)),
		Dispatch:          make(map[model.Pet]model.DispatchCommand, len(s.dispatch)),
		LastUpdate:        s.updated,
	}
	for k, v := range s.bowls {
		snap.BowlWeights[k] = v
	}
	for k, v := range s.dispatch {
		snap.Dispatch[k] = v
	}
	if s.settings != nil {
		c := s.settings.Clone()
		snap.Settings = &c
	}
	return snap
}

// Environment returns the latest ambient reading.
func (s *State) Environment() model.Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEnv(s.env)
}

// SetEnvironment replaces the ambient reading.
func (s *State) SetEnvironment(env model.Environment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = copyEnv(env)
	s.updated = s.now()
}

// AdaptationEnabled reports whether portions follow the weather.
func (s *State) AdaptationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapt
}

// SetAdaptationEnabled updates the weather adaptation toggle.
func (s *State) SetAdaptationEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapt = v
}

// BowlWeight returns the latest bowl weight of pet, 0 if never reported.
func (s *State) BowlWeight(pet model.Pet) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bowls[pet]
}

// SetBowlWeight updates the bowl weight of pet.
func (s *State) SetBowlWeight(pet model.Pet, grams float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bowls[pet] = grams
	s.updated = s.now()
}

// Dispatch returns the last command snapshot known for pet's dispenser.
func (s *State) Dispatch(pet model.Pet) model.DispatchCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatch[pet]
}

// SetDispatch records the command snapshot of pet's dispenser.
func (s *State) SetDispatch(pet model.Pet, cmd model.DispatchCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch[pet] = cmd
}

// Settings returns the feeder settings, or false if none were loaded yet.
func (s *State) Settings() (model.FeederSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return model.FeederSettings{}, false
	}
	return s.settings.Clone(), true
}

// SetSettings replaces the feeder settings. Nil clears them.
func (s *State) SetSettings(settings *model.FeederSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings == nil {
		s.settings = nil
		return
	}
	c := settings.Clone()
	s.settings = &c
}

// LastUpdate is when the device last pushed a sensor reading.
func (s *State) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

func copyEnv(env model.Environment) model.Environment {
	var out model.Environment
	if env.TemperatureC != nil {
		t := *env.TemperatureC
		out.TemperatureC = &t
	}
	if env.HumidityPct != nil {
		h := *env.HumidityPct
		out.HumidityPct = &h
	}
	return out
}
