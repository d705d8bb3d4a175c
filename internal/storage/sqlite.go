package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"snackloader/internal/model"
	"snackloader/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetSettings returns the feeder settings of a user, or ErrNotFound.
func (s *SQLite) GetSettings(ctx context.Context, userID string) (*model.FeederSettings, error) {
	var autoFeed int
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT auto_feed_enabled, updated_at FROM feeder_settings WHERE user_id = ?`, userID,
	).Scan(&autoFeed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}

	settings := &model.FeederSettings{UserID: userID, AutoFeedEnabled: autoFeed == 1}
	settings.UpdatedAt, _ = time.Parse(timeLayout, updated)

	rows, err := s.db.QueryContext(ctx,
		`SELECT pet, time, amount_grams FROM schedule_entries WHERE user_id = ? ORDER BY pet, position`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schedules := make(map[model.Pet][]model.ScheduleEntry)
	for rows.Next() {
		var pet string
		var e model.ScheduleEntry
		if err := rows.Scan(&pet, &e.Time, &e.AmountGrams); err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		schedules[model.Pet(pet)] = append(schedules[model.Pet(pet)], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule: %w", err)
	}
	for pet, entries := range schedules {
		settings.SetSchedule(pet, entries)
	}
	return settings, nil
}

// SaveSettings replaces the settings document of s.UserID and sets UpdatedAt.
func (s *SQLite) SaveSettings(ctx context.Context, settings *model.FeederSettings) error {
	now := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO feeder_settings (user_id, auto_feed_enabled, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET auto_feed_enabled = excluded.auto_feed_enabled, updated_at = excluded.updated_at`,
		settings.UserID, boolToInt(settings.AutoFeedEnabled), now,
	); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE user_id = ?`, settings.UserID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	for _, pet := range model.Pets {
		for i, e := range settings.Schedule(pet) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schedule_entries (user_id, pet, position, time, amount_grams) VALUES (?, ?, ?, ?, ?)`,
				settings.UserID, string(pet), i, e.Time, e.AmountGrams,
			); err != nil {
				return fmt.Errorf("insert schedule entry: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}

	settings.UpdatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// AddDispensed atomically adds grams to the dispensed total of pet on date,
// creating the row on the first feeding of the day.
func (s *SQLite) AddDispensed(ctx context.Context, date string, pet model.Pet, grams int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_intake (date, pet, total_dispensed_grams, last_updated) VALUES (?, ?, ?, ?)
		 ON CONFLICT(date, pet) DO UPDATE SET
		   total_dispensed_grams = total_dispensed_grams + excluded.total_dispensed_grams,
		   last_updated = excluded.last_updated`,
		date, string(pet), grams, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("increment dispensed: %w", err)
	}
	return nil
}

// ListIntake returns the ledger rows of date ordered by pet.
func (s *SQLite) ListIntake(ctx context.Context, date string) ([]model.DailyIntake, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, pet, total_dispensed_grams, current_bowl_weight_grams, calculated_intake_grams, last_updated
		 FROM daily_intake WHERE date = ? ORDER BY pet`, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query intake: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.DailyIntake
	for rows.Next() {
		var d model.DailyIntake
		var pet, updated string
		if err := rows.Scan(&d.Date, &pet, &d.TotalDispensedGrams, &d.CurrentBowlWeightGrams, &d.CalculatedIntakeGrams, &updated); err != nil {
			return nil, fmt.Errorf("scan intake: %w", err)
		}
		d.Pet = model.Pet(pet)
		d.LastUpdated, _ = time.Parse(timeLayout, updated)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetReconciliation stores the end-of-day bowl snapshot and calculated intake.
func (s *SQLite) SetReconciliation(ctx context.Context, date string, pet model.Pet, bowlWeight, intake float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_intake (date, pet, current_bowl_weight_grams, calculated_intake_grams, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(date, pet) DO UPDATE SET
		   current_bowl_weight_grams = excluded.current_bowl_weight_grams,
		   calculated_intake_grams = excluded.calculated_intake_grams,
		   last_updated = excluded.last_updated`,
		date, string(pet), bowlWeight, intake, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("set reconciliation: %w", err)
	}
	return nil
}

// CreateFeedEvent appends an entry to the feeding history.
func (s *SQLite) CreateFeedEvent(ctx context.Context, ev *model.FeedEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feed_events (id, pet, source, outcome, requested_grams, dispensed_grams, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Pet), string(ev.Source), string(ev.Outcome), ev.RequestedGrams, ev.DispensedGrams,
		ev.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert feed event: %w", err)
	}
	return nil
}

// ListFeedEvents returns the most recent feeding history entries, newest first.
func (s *SQLite) ListFeedEvents(ctx context.Context, limit int) ([]model.FeedEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pet, source, outcome, requested_grams, dispensed_grams, created_at
		 FROM feed_events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query feed events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.FeedEvent
	for rows.Next() {
		var ev model.FeedEvent
		var pet, source, outcome, created string
		if err := rows.Scan(&ev.ID, &pet, &source, &outcome, &ev.RequestedGrams, &ev.DispensedGrams, &created); err != nil {
			return nil, fmt.Errorf("scan feed event: %w", err)
		}
		ev.Pet = model.Pet(pet)
		ev.Source = model.Source(source)
		ev.Outcome = model.OutcomeKind(outcome)
		ev.CreatedAt, _ = time.Parse(timeLayout, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
