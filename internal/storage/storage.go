// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"snackloader/internal/model"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// LedgerStore persists daily intake rows. AddDispensed is an atomic increment.
type LedgerStore interface {
	AddDispensed(ctx context.Context, date string, pet model.Pet, grams int, at time.Time) error
	ListIntake(ctx context.Context, date string) ([]model.DailyIntake, error)
	SetReconciliation(ctx context.Context, date string, pet model.Pet, bowlWeight, intake float64, at time.Time) error

	Close() error
}

// Storage is the interface for all persistence operations.
type Storage interface {
	LedgerStore

	GetSettings(ctx context.Context, userID string) (*model.FeederSettings, error)
	SaveSettings(ctx context.Context, s *model.FeederSettings) error

	CreateFeedEvent(ctx context.Context, ev *model.FeedEvent) error
	ListFeedEvents(ctx context.Context, limit int) ([]model.FeedEvent, error)
}
