// Package settings owns the feeder settings document: validation,
// persistence and change notification.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"snackloader/internal/model"
	"snackloader/internal/storage"
)

// Validation errors.
var (
	ErrInvalidTime     = errors.New("invalid time")
	ErrIndexOutOfRange = errors.New("schedule index out of range")
)

// Store persists settings documents.
type Store interface {
	GetSettings(ctx context.Context, userID string) (*model.FeederSettings, error)
	SaveSettings(ctx context.Context, s *model.FeederSettings) error
}

// Service edits settings and notifies subscribers of every saved version.
type Service struct {
	store Store
	log   *slog.Logger

	edit sync.Mutex

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan model.FeederSettings
}

// New creates a Service.
func New(store Store, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		subs:  make(map[string]map[int]chan model.FeederSettings),
	}
}

// Get returns the stored settings of userID, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, userID string) (*model.FeederSettings, error) {
	return s.store.GetSettings(ctx, userID)
}

// GetOrDefault returns the stored settings of userID, falling back to the defaults.
func (s *Service) GetOrDefault(ctx context.Context, userID string) (model.FeederSettings, error) {
	cur, err := s.store.GetSettings(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.DefaultSettings(userID), nil
	}
	if err != nil {
		return model.FeederSettings{}, err
	}
	return *cur, nil
}

// Save validates and stores the whole document, then notifies subscribers.
func (s *Service) Save(ctx context.Context, settings model.FeederSettings) (model.FeederSettings, error) {
	s.edit.Lock()
	defer s.edit.Unlock()
	return s.save(ctx, settings)
}

// AddEntry appends a feeding slot to pet's schedule.
func (s *Service) AddEntry(ctx context.Context, userID string, pet model.Pet, entry model.ScheduleEntry) (model.FeederSettings, error) {
	return s.update(ctx, userID, func(cur *model.FeederSettings) error {
		if _, err := model.ParsePet(string(pet)); err != nil {
			return err
		}
		cur.SetSchedule(pet, append(cur.Schedule(pet), entry))
		return nil
	})
}

// RemoveEntry deletes the slot at index (0-based) from pet's schedule.
func (s *Service) RemoveEntry(ctx context.Context, userID string, pet model.Pet, index int) (model.FeederSettings, error) {
	return s.update(ctx, userID, func(cur *model.FeederSettings) error {
		if _, err := model.ParsePet(string(pet)); err != nil {
			return err
		}
		entries := cur.Schedule(pet)
		if index < 0 || index >= len(entries) {
			return fmt.Errorf("%w: %s has %d entries", ErrIndexOutOfRange, pet, len(entries))
		}
		out := make([]model.ScheduleEntry, 0, len(entries)-1)
		out = append(out, entries[:index]...)
		out = append(out, entries[index+1:]...)
		cur.SetSchedule(pet, out)
		return nil
	})
}

// SetAutoFeed turns scheduled feeding on or off.
func (s *Service) SetAutoFeed(ctx context.Context, userID string, enabled bool) (model.FeederSettings, error) {
	return s.update(ctx, userID, func(cur *model.FeederSettings) error {
		cur.AutoFeedEnabled = enabled
		return nil
	})
}

// Subscribe returns a channel receiving every saved version of userID's
// settings. Slow readers only see the latest version. The returned func
// stops the subscription and closes the channel.
func (s *Service) Subscribe(userID string) (<-chan model.FeederSettings, func()) {
	ch := make(chan model.FeederSettings, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]chan model.FeederSettings)
	}
	s.subs[userID][id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Service) update(ctx context.Context, userID string, fn func(*model.FeederSettings) error) (model.FeederSettings, error) {
	s.edit.Lock()
	defer s.edit.Unlock()

	cur, err := s.GetOrDefault(ctx, userID)
	if err != nil {
		return model.FeederSettings{}, fmt.Errorf("load settings: %w", err)
	}
	if err := fn(&cur); err != nil {
		return model.FeederSettings{}, err
	}
	return s.save(ctx, cur)
}

func (s *Service) save(ctx context.Context, settings model.FeederSettings) (model.FeederSettings, error) {
	if err := Validate(settings); err != nil {
		return model.FeederSettings{}, err
	}
	settings = settings.Clone()
	if err := s.store.SaveSettings(ctx, &settings); err != nil {
		return model.FeederSettings{}, fmt.Errorf("save settings: %w", err)
	}
	s.log.Info("feeder settings saved",
		"user_id", settings.UserID,
		"auto_feed", settings.AutoFeedEnabled,
		"cat_slots", len(settings.Cat.Schedule),
		"dog_slots", len(settings.Dog.Schedule),
	)
	s.publish(settings)
	return settings, nil
}

func (s *Service) publish(settings model.FeederSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs[settings.UserID] {
		v := settings.Clone()
		select {
		case ch <- v:
		default:
			// Replace the unread version with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// Validate checks every schedule entry of settings.
func Validate(settings model.FeederSettings) error {
	if settings.UserID == "" {
		return errors.New("settings: empty user id")
	}
	for _, pet := range model.Pets {
		for i, e := range settings.Schedule(pet) {
			if err := ValidateTime(e.Time); err != nil {
				return fmt.Errorf("%s entry %d: %w", pet, i+1, err)
			}
			if err := pet.ValidateAmount(e.AmountGrams); err != nil {
				return fmt.Errorf("%s entry %d: %w", pet, i+1, err)
			}
		}
	}
	return nil
}

// ValidateTime checks that v is a zero-padded 24h "HH:MM" clock time.
func ValidateTime(v string) error {
	if len(v) != 5 {
		return fmt.Errorf("%w %q, use HH:MM", ErrInvalidTime, v)
	}
	if _, err := time.Parse("15:04", v); err != nil {
		return fmt.Errorf("%w %q, use HH:MM", ErrInvalidTime, v)
	}
	return nil
}
