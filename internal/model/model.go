// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Pet identifies one of the feeder's bowls.
type Pet string

// Supported pets.
const (
	PetCat Pet = "cat"
	PetDog Pet = "dog"
)

// Pets lists every bowl the feeder drives, in display order.
var Pets = []Pet{PetCat, PetDog}

// Validation errors.
var (
	ErrInvalidPet    = errors.New("invalid pet")
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParsePet converts a user-supplied name into a Pet.
func ParsePet(s string) (Pet, error) {
	switch Pet(s) {
	case PetCat, PetDog:
		return Pet(s), nil
	}
	return "", fmt.Errorf("%w %q, use: cat, dog", ErrInvalidPet, s)
}

// MaxAmountGrams is the largest single portion the dispenser accepts for the pet.
func (p Pet) MaxAmountGrams() int {
	if p == PetDog {
		return 500
	}
	return 200
}

// ValidateAmount checks that grams is a dispensable portion for the pet.
func (p Pet) ValidateAmount(grams int) error {
	if grams < 1 || grams > p.MaxAmountGrams() {
		return fmt.Errorf("%w: %s portion must be between 1 and %d grams", ErrInvalidAmount, p, p.MaxAmountGrams())
	}
	return nil
}

// ScheduleEntry is a single daily feeding slot.
type ScheduleEntry struct {
	Time        string `json:"time"` // "HH:MM", local 24h clock
	AmountGrams int    `json:"amount"`
}

// PetSchedule holds the ordered feeding slots of one pet.
type PetSchedule struct {
	Schedule []ScheduleEntry `json:"schedule"`
}

// FeederSettings is the per-user feeder configuration document.
type FeederSettings struct {
	UserID          string      `json:"userId"`
	AutoFeedEnabled bool        `json:"autoFeedEnabled"`
	Cat             PetSchedule `json:"cat"`
	Dog             PetSchedule `json:"dog"`
	UpdatedAt       time.Time   `json:"lastUpdated"`
}

// DefaultSettings returns the document used before a user saves anything.
func DefaultSettings(userID string) FeederSettings {
	return FeederSettings{UserID: userID, AutoFeedEnabled: true}
}

// Schedule returns the feeding slots configured for the pet.
func (s *FeederSettings) Schedule(p Pet) []ScheduleEntry {
	switch p {
	case PetCat:
		return s.Cat.Schedule
	case PetDog:
		return s.Dog.Schedule
	}
	return nil
}

// SetSchedule replaces the feeding slots of the pet.
func (s *FeederSettings) SetSchedule(p Pet, entries []ScheduleEntry) {
	switch p {
	case PetCat:
		s.Cat.Schedule = entries
	case PetDog:
		s.Dog.Schedule = entries
	}
}

// Clone returns a deep copy so callers can mutate schedules freely.
func (s FeederSettings) Clone() FeederSettings {
	out := s
	out.Cat.Schedule = append([]ScheduleEntry(nil), s.Cat.Schedule...)
	out.Dog.Schedule = append([]ScheduleEntry(nil), s.Dog.Schedule...)
	return out
}

// Environment is the latest ambient reading. Nil fields mean no data.
type Environment struct {
	TemperatureC *float64
	HumidityPct  *float64
}

// Source tells whether a feeding was requested by a person or by the schedule.
type Source string

// Feeding sources.
const (
	SourceManual    Source = "manual"
	SourceScheduled Source = "scheduled"
)

// OutcomeKind is the result class of a feeding evaluation.
type OutcomeKind string

// Feeding outcomes.
const (
	OutcomeFed                   OutcomeKind = "fed"
	OutcomeSkippedBowlSufficient OutcomeKind = "skipped_bowl_sufficient"
	OutcomeBlockedHeatDanger     OutcomeKind = "blocked_heat_danger"
)

// FeedingOutcome is returned by a feeding evaluation.
// AmountGrams is the dispensed quantity and is zero unless Kind is OutcomeFed.
type FeedingOutcome struct {
	Kind           OutcomeKind
	Pet            Pet
	Source         Source
	RequestedGrams int
	AmountGrams    int
}

// DailyIntake is the ledger row of one pet for one local calendar day.
type DailyIntake struct {
	Date                   string // "2006-01-02"
	Pet                    Pet
	TotalDispensedGrams    int
	CurrentBowlWeightGrams float64
	CalculatedIntakeGrams  float64
	LastUpdated            time.Time
}

// DateLayout is the key format of ledger days.
const DateLayout = "2006-01-02"

// Dispatch statuses written to the device.
const (
	DispatchIdle      = "idle"
	DispatchCompleted = "completed"
)

// DispatchCommand is the complete command snapshot sent to a dispenser.
type DispatchCommand struct {
	CommandID   string `json:"commandId,omitempty"`
	Status      string `json:"status"`
	LastFedAtMs int64  `json:"lastFed"`
	AmountGrams int    `json:"amount"`
	Run         bool   `json:"run"`
}

// LastFedAt converts the epoch-millisecond timestamp to a time.
// Returns nil if the dispenser has never been fed.
func (c DispatchCommand) LastFedAt() *time.Time {
	if c.LastFedAtMs <= 0 {
		return nil
	}
	t := time.UnixMilli(c.LastFedAtMs)
	return &t
}

// FeedEvent is an audit record of one feeding evaluation.
type FeedEvent struct {
	ID             string
	Pet            Pet
	Source         Source
	Outcome        OutcomeKind
	RequestedGrams int
	DispensedGrams int
	CreatedAt      time.Time
}
