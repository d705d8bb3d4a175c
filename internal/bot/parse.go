package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"snackloader/internal/model"
	"snackloader/internal/settings"
)

// ParseFeedArgs parses "<pet> <grams>".
func ParseFeedArgs(args string) (model.Pet, int, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("usage: /feed <cat|dog> <grams>")
	}
	pet, err := model.ParsePet(strings.ToLower(parts[0]))
	if err != nil {
		return "", 0, err
	}
	grams, err := parseGrams(parts[1])
	if err != nil {
		return "", 0, err
	}
	return pet, grams, nil
}

// ParseAddTimeArgs parses "<pet> <HH:MM> <grams>".
func ParseAddTimeArgs(args string) (model.Pet, model.ScheduleEntry, error) {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		return "", model.ScheduleEntry{}, fmt.Errorf("usage: /addtime <cat|dog> <HH:MM> <grams>")
	}
	pet, err := model.ParsePet(strings.ToLower(parts[0]))
	if err != nil {
		return "", model.ScheduleEntry{}, err
	}
	if err := settings.ValidateTime(parts[1]); err != nil {
		return "", model.ScheduleEntry{}, err
	}
	grams, err := parseGrams(parts[2])
	if err != nil {
		return "", model.ScheduleEntry{}, err
	}
	return pet, model.ScheduleEntry{Time: parts[1], AmountGrams: grams}, nil
}

// ParseRemoveTimeArgs parses "<pet> <n>" where n is the 1-based entry
// number shown by /schedule. The returned index is 0-based.
func ParseRemoveTimeArgs(args string) (model.Pet, int, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("usage: /rmtime <cat|dog> <n>")
	}
	pet, err := model.ParsePet(strings.ToLower(parts[0]))
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("invalid entry number %q", parts[1])
	}
	return pet, n - 1, nil
}

// ParseOnOff parses the argument of /autofeed.
func ParseOnOff(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "enable", "true":
		return true, nil
	case "off", "disable", "false":
		return false, nil
	}
	return false, fmt.Errorf("usage: /autofeed on|off")
}

// ParseDateArg returns the date in args, or def when args is empty.
func ParseDateArg(args, def string) (string, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	if _, err := time.Parse(model.DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return s, nil
}

func parseGrams(s string) (int, error) {
	grams, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(s), "g"))
	if err != nil {
		return 0, fmt.Errorf("%w %q", model.ErrInvalidAmount, s)
	}
	return grams, nil
}
