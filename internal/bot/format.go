package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"snackloader/internal/heatindex"
	"snackloader/internal/livedata"
	"snackloader/internal/model"
)

const (
	stateOn  = "on"
	stateOff = "off"
)

func onOff(v bool) string {
	if v {
		return stateOn
	}
	return stateOff
}

func gramsLabel(v float64) string {
	return humanize.FtoaWithDigits(v, 1) + " g"
}

func petTitle(p model.Pet) string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// FormatOutcome describes the result of a feeding.
func FormatOutcome(o model.FeedingOutcome) string {
	switch o.Kind {
	case model.OutcomeFed:
		if o.AmountGrams != o.RequestedGrams {
			return fmt.Sprintf("Fed %s %d g (requested %d g, adjusted for the weather).", o.Pet, o.AmountGrams, o.RequestedGrams)
		}
		return fmt.Sprintf("Fed %s %d g.", o.Pet, o.AmountGrams)
	case model.OutcomeSkippedBowlSufficient:
		return fmt.Sprintf("Skipped: the %s bowl already has enough food.", o.Pet)
	case model.OutcomeBlockedHeatDanger:
		return fmt.Sprintf("Blocked: it is too hot to feed the %s right now.", o.Pet)
	}
	return fmt.Sprintf("Unknown outcome %q.", o.Kind)
}

// FormatStatus renders the live feeder state.
func FormatStatus(snap livedata.Snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString("Feeder status\n\n")

	env := snap.Environment
	if env.TemperatureC != nil {
		fmt.Fprintf(&b, "Temperature: %.1f°C\n", *env.TemperatureC)
	} else {
		b.WriteString("Temperature: n/a\n")
	}
	if env.HumidityPct != nil {
		fmt.Fprintf(&b, "Humidity: %.0f%%\n", *env.HumidityPct)
	} else {
		b.WriteString("Humidity: n/a\n")
	}
	if thi, ok := heatindex.Index(env); ok {
		fmt.Fprintf(&b, "THI: %.1f (%s)\n", thi, heatindex.Classify(thi))
	} else {
		b.WriteString("THI: n/a\n")
	}
	fmt.Fprintf(&b, "Weather adaptation: %s\n", onOff(snap.AdaptationEnabled))
	if snap.Settings != nil {
		fmt.Fprintf(&b, "Auto feed: %s\n", onOff(snap.Settings.AutoFeedEnabled))
	} else {
		b.WriteString("Auto feed: not configured\n")
	}

	b.WriteString("\n")
	for _, pet := range model.Pets {
		fmt.Fprintf(&b, "%s: bowl %s", petTitle(pet), gramsLabel(snap.BowlWeights[pet]))
		d := snap.Dispatch[pet]
		if at := d.LastFedAt(); at != nil {
			fmt.Fprintf(&b, ", last fed %d g %s", d.AmountGrams, humanize.RelTime(*at, now, "ago", "from now"))
		} else {
			b.WriteString(", never fed")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatSchedule lists the feeding slots of every pet with 1-based numbers.
func FormatSchedule(s model.FeederSettings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Auto feed: %s\n", onOff(s.AutoFeedEnabled))
	for _, pet := range model.Pets {
		fmt.Fprintf(&b, "\n%s:\n", petTitle(pet))
		entries := s.Schedule(pet)
		if len(entries) == 0 {
			b.WriteString("  no feeding times\n")
			continue
		}
		for i, e := range entries {
			fmt.Fprintf(&b, "  %d. %s  %d g\n", i+1, e.Time, e.AmountGrams)
		}
	}
	return b.String()
}

// FormatIntake renders the ledger rows of a day.
func FormatIntake(date string, rows []model.DailyIntake) string {
	if len(rows) == 0 {
		return fmt.Sprintf("No feedings recorded on %s.", date)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Intake on %s:\n", date)
	for _, r := range rows {
		fmt.Fprintf(&b, "\n%s: dispensed %d g", petTitle(r.Pet), r.TotalDispensedGrams)
		if r.CurrentBowlWeightGrams > 0 || r.CalculatedIntakeGrams > 0 {
			fmt.Fprintf(&b, ", left %s, eaten %s", gramsLabel(r.CurrentBowlWeightGrams), gramsLabel(r.CalculatedIntakeGrams))
		}
	}
	return b.String()
}

// FormatHistory renders recent feeding evaluations, newest first.
func FormatHistory(events []model.FeedEvent, now time.Time) string {
	if len(events) == 0 {
		return "No feedings yet."
	}
	var b strings.Builder
	b.WriteString("Recent feedings:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "\n%s  %s  %s  %s", humanize.RelTime(e.CreatedAt, now, "ago", "from now"), e.Pet, e.Source, outcomeLabel(e.Outcome))
		if e.Outcome == model.OutcomeFed {
			fmt.Fprintf(&b, " %d/%d g", e.DispensedGrams, e.RequestedGrams)
		}
	}
	return b.String()
}

func outcomeLabel(k model.OutcomeKind) string {
	switch k {
	case model.OutcomeFed:
		return "fed"
	case model.OutcomeSkippedBowlSufficient:
		return "skipped (bowl full)"
	case model.OutcomeBlockedHeatDanger:
		return "blocked (heat)"
	}
	return string(k)
}
