package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"snackloader/internal/model"
)

// Hash fields of a daily intake document; pet fields are prefixed "<pet>.".
const (
	fieldTotalDispensed   = "totalDispensed"
	fieldCurrentBowl      = "currentBowlWeight"
	fieldCalculatedIntake = "calculatedIntake"
	fieldLastUpdated      = "lastUpdated"
)

// Redis implements LedgerStore with one hash per day, incremented with HINCRBY.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps a connected client. Keys are "<prefix>dailyIntake:<date>".
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(date string) string {
	return r.prefix + "dailyIntake:" + date
}

func petField(pet model.Pet, field string) string {
	return string(pet) + "." + field
}

// AddDispensed atomically adds grams to the dispensed total of pet on date.
func (r *Redis) AddDispensed(ctx context.Context, date string, pet model.Pet, grams int, at time.Time) error {
	key := r.key(date)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, petField(pet, fieldTotalDispensed), int64(grams))
		pipe.HSetNX(ctx, key, petField(pet, fieldCurrentBowl), 0)
		pipe.HSetNX(ctx, key, petField(pet, fieldCalculatedIntake), 0)
		pipe.HSet(ctx, key, fieldLastUpdated, at.UTC().Format(time.RFC3339))
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment dispensed: %w", err)
	}
	return nil
}

// ListIntake returns the ledger rows of date ordered by pet.
func (r *Redis) ListIntake(ctx context.Context, date string) ([]model.DailyIntake, error) {
	fields, err := r.client.HGetAll(ctx, r.key(date)).Result()
	if err != nil {
		return nil, fmt.Errorf("read intake: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	updated, _ := time.Parse(time.RFC3339, fields[fieldLastUpdated])
	rows := make(map[model.Pet]*model.DailyIntake)
	for name, raw := range fields {
		petName, field, ok := strings.Cut(name, ".")
		if !ok {
			continue
		}
		pet := model.Pet(petName)
		row, exists := rows[pet]
		if !exists {
			row = &model.DailyIntake{Date: date, Pet: pet, LastUpdated: updated}
			rows[pet] = row
		}
		switch field {
		case fieldTotalDispensed:
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
			row.TotalDispensedGrams = v
		case fieldCurrentBowl:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
			row.CurrentBowlWeightGrams = v
		case fieldCalculatedIntake:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
			row.CalculatedIntakeGrams = v
		}
	}

	out := make([]model.DailyIntake, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pet < out[j].Pet })
	return out, nil
}

// SetReconciliation stores the end-of-day bowl snapshot and calculated intake.
func (r *Redis) SetReconciliation(ctx context.Context, date string, pet model.Pet, bowlWeight, intake float64, at time.Time) error {
	key := r.key(date)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, petField(pet, fieldTotalDispensed), 0)
		pipe.HSet(ctx, key,
			petField(pet, fieldCurrentBowl), strconv.FormatFloat(bowlWeight, 'f', -1, 64),
			petField(pet, fieldCalculatedIntake), strconv.FormatFloat(intake, 'f', -1, 64),
			fieldLastUpdated, at.UTC().Format(time.RFC3339),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set reconciliation: %w", err)
	}
	return nil
}
