package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"snackloader/internal/livedata"
	"snackloader/internal/model"
	"snackloader/internal/settings"
)

func TestParseFeedArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantPet   model.Pet
		wantGrams int
		wantErr   error
	}{
		{name: "cat", args: "cat 20", wantPet: model.PetCat, wantGrams: 20},
		{name: "uppercase with unit", args: "Dog 150g", wantPet: model.PetDog, wantGrams: 150},
		{name: "unknown pet", args: "fish 5", wantErr: model.ErrInvalidPet},
		{name: "bad grams", args: "cat lots", wantErr: model.ErrInvalidAmount},
		{name: "missing grams", args: "cat"},
		{name: "empty", args: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pet, grams, err := ParseFeedArgs(tt.args)
			if tt.wantPet == "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantPet, pet); diff != "" {
				t.Errorf("pet mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantGrams, grams); diff != "" {
				t.Errorf("grams mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseAddTimeArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantPet   model.Pet
		wantEntry model.ScheduleEntry
		wantErr   error
	}{
		{name: "valid", args: "cat 08:00 20", wantPet: model.PetCat, wantEntry: model.ScheduleEntry{Time: "08:00", AmountGrams: 20}},
		{name: "unpadded hour", args: "dog 7:30 100", wantErr: settings.ErrInvalidTime},
		{name: "bad hour", args: "dog 25:00 100", wantErr: settings.ErrInvalidTime},
		{name: "bad pet", args: "bird 07:30 5", wantErr: model.ErrInvalidPet},
		{name: "missing amount", args: "dog 07:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pet, entry, err := ParseAddTimeArgs(tt.args)
			if tt.wantPet == "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantPet, pet); diff != "" {
				t.Errorf("pet mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantEntry, entry); diff != "" {
				t.Errorf("entry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRemoveTimeArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantPet   model.Pet
		wantIndex int
		wantErr   bool
	}{
		{name: "first entry", args: "cat 1", wantPet: model.PetCat, wantIndex: 0},
		{name: "third entry", args: "dog 3", wantPet: model.PetDog, wantIndex: 2},
		{name: "zero", args: "dog 0", wantErr: true},
		{name: "not a number", args: "dog x", wantErr: true},
		{name: "missing", args: "dog", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pet, index, err := ParseRemoveTimeArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantPet, pet); diff != "" {
				t.Errorf("pet mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantIndex, index); diff != "" {
				t.Errorf("index mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseOnOff(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "ON": true, "enable": true, "off": false, " false ": false} {
		got, err := ParseOnOff(in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("%q: got %v, want %v", in, got, want)
		}
	}
	if _, err := ParseOnOff("maybe"); err == nil {
		t.Error("expected error for maybe")
	}
}

func TestParseDateArg(t *testing.T) {
	got, err := ParseDateArg("", "2026-03-01")
	if err != nil || got != "2026-03-01" {
		t.Errorf("default: got %q, %v", got, err)
	}
	got, err = ParseDateArg(" 2026-02-28 ", "2026-03-01")
	if err != nil || got != "2026-02-28" {
		t.Errorf("explicit: got %q, %v", got, err)
	}
	if _, err := ParseDateArg("yesterday", "2026-03-01"); err == nil {
		t.Error("expected error for yesterday")
	}
}

func TestFormatOutcome(t *testing.T) {
	tests := []struct {
		name string
		o    model.FeedingOutcome
		want string
	}{
		{
			name: "fed as requested",
			o:    model.FeedingOutcome{Kind: model.OutcomeFed, Pet: model.PetCat, RequestedGrams: 20, AmountGrams: 20},
			want: "Fed cat 20 g.",
		},
		{
			name: "fed adjusted",
			o:    model.FeedingOutcome{Kind: model.OutcomeFed, Pet: model.PetCat, RequestedGrams: 50, AmountGrams: 40},
			want: "Fed cat 40 g (requested 50 g, adjusted for the weather).",
		},
		{
			name: "skipped",
			o:    model.FeedingOutcome{Kind: model.OutcomeSkippedBowlSufficient, Pet: model.PetDog, RequestedGrams: 100},
			want: "Skipped: the dog bowl already has enough food.",
		},
		{
			name: "blocked",
			o:    model.FeedingOutcome{Kind: model.OutcomeBlockedHeatDanger, Pet: model.PetDog, RequestedGrams: 100},
			want: "Blocked: it is too hot to feed the dog right now.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatOutcome(tt.o)); diff != "" {
				t.Errorf("FormatOutcome mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 3, 0, 0, time.UTC)
	temp, hum := 32.0, 85.0
	cfg := model.DefaultSettings("u1")

	snap := livedata.Snapshot{
		Environment:       model.Environment{TemperatureC: &temp, HumidityPct: &hum},
		AdaptationEnabled: true,
		BowlWeights:       map[model.Pet]float64{model.PetCat: 12.5},
		Dispatch: map[model.Pet]model.DispatchCommand{
			model.PetCat: {Status: model.DispatchCompleted, LastFedAtMs: now.Add(-3 * time.Minute).UnixMilli(), AmountGrams: 40, Run: true},
		},
		Settings: &cfg,
	}

	want := `Feeder status

Temperature: 32.0°C
Humidity: 85%
THI: 83.6 (hot)
Weather adaptation: on
Auto feed: on

Cat: bowl 12.5 g, last fed 40 g 3 minutes ago
Dog: bowl 0 g, never fed
`
	if diff := cmp.Diff(want, FormatStatus(snap, now)); diff != "" {
		t.Errorf("FormatStatus mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatStatusWithoutData(t *testing.T) {
	got := FormatStatus(livedata.Snapshot{}, time.Now())
	for _, want := range []string{"Temperature: n/a", "Humidity: n/a", "THI: n/a", "Auto feed: not configured"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q, got:\n%s", want, got)
		}
	}
}

func TestFormatSchedule(t *testing.T) {
	s := model.FeederSettings{
		UserID:          "u1",
		AutoFeedEnabled: true,
		Cat:             model.PetSchedule{Schedule: []model.ScheduleEntry{{Time: "08:00", AmountGrams: 20}, {Time: "18:00", AmountGrams: 25}}},
	}
	want := `Auto feed: on

Cat:
  1. 08:00  20 g
  2. 18:00  25 g

Dog:
  no feeding times
`
	if diff := cmp.Diff(want, FormatSchedule(s)); diff != "" {
		t.Errorf("FormatSchedule mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatIntake(t *testing.T) {
	if diff := cmp.Diff("No feedings recorded on 2026-03-01.", FormatIntake("2026-03-01", nil)); diff != "" {
		t.Errorf("empty mismatch (-want +got):\n%s", diff)
	}

	rows := []model.DailyIntake{
		{Date: "2026-03-01", Pet: model.PetCat, TotalDispensedGrams: 60, CurrentBowlWeightGrams: 12.5, CalculatedIntakeGrams: 47.5},
		{Date: "2026-03-01", Pet: model.PetDog, TotalDispensedGrams: 100},
	}
	want := "Intake on 2026-03-01:\n\nCat: dispensed 60 g, left 12.5 g, eaten 47.5 g\nDog: dispensed 100 g"
	if diff := cmp.Diff(want, FormatIntake("2026-03-01", rows)); diff != "" {
		t.Errorf("FormatIntake mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := []model.FeedEvent{
		{Pet: model.PetCat, Source: model.SourceScheduled, Outcome: model.OutcomeFed, RequestedGrams: 50, DispensedGrams: 40, CreatedAt: now.Add(-2 * time.Hour)},
		{Pet: model.PetDog, Source: model.SourceManual, Outcome: model.OutcomeBlockedHeatDanger, RequestedGrams: 100, CreatedAt: now.Add(-3 * time.Hour)},
	}
	want := "Recent feedings:\n\n2 hours ago  cat  scheduled  fed 40/50 g\n3 hours ago  dog  manual  blocked (heat)"
	if diff := cmp.Diff(want, FormatHistory(events, now)); diff != "" {
		t.Errorf("FormatHistory mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("No feedings yet.", FormatHistory(nil, now)); diff != "" {
		t.Errorf("empty mismatch (-want +got):\n%s", diff)
	}
}
