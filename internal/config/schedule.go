package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"agendaprint/internal/model"
)

// Error is a ConfigurationError: a setting that cannot be accepted.
type Error struct {
	Key   string
	Value string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Value == "" {
		return fmt.Sprintf("config %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("config %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsConfigurationError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

var (
	errTimeFormat = errors.New("expected HH:MM")
	errHourRange  = errors.New("hour out of range 0-23")
	errMinRange   = errors.New("minute out of range 0-59")
)

// ParseScheduleEntry parses "H:MM" or "HH:MM" on a 24h clock.
func ParseScheduleEntry(value string) (model.ScheduleEntry, error) {
	raw := strings.TrimSpace(value)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok || hh == "" || len(mm) != 2 || len(hh) > 2 {
		return model.ScheduleEntry{}, &Error{Key: "Schedule", Value: raw, Err: errTimeFormat}
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return model.ScheduleEntry{}, &Error{Key: "Schedule", Value: raw, Err: errTimeFormat}
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return model.ScheduleEntry{}, &Error{Key: "Schedule", Value: raw, Err: errTimeFormat}
	}
	if hour < 0 || hour > 23 {
		return model.ScheduleEntry{}, &Error{Key: "Schedule", Value: raw, Err: errHourRange}
	}
	if minute < 0 || minute > 59 {
		return model.ScheduleEntry{}, &Error{Key: "Schedule", Value: raw, Err: errMinRange}
	}
	return model.ScheduleEntry{Hour: hour, Minute: minute}, nil
}

// ParseSchedule parses a comma, semicolon or space separated list of times.
// The result is deduplicated and sorted ascending.
func ParseSchedule(value string) ([]model.ScheduleEntry, error) {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	out := make([]model.ScheduleEntry, 0, len(parts))
	for _, p := range parts {
		entry, err := ParseScheduleEntry(p)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return NormalizeSchedule(out), nil
}

// NormalizeSchedule drops duplicates and sorts by time of day. Entries
// that are out of range are dropped too; use ValidateSchedule to reject them.
func NormalizeSchedule(entries []model.ScheduleEntry) []model.ScheduleEntry {
	seen := map[model.ScheduleEntry]bool{}
	out := make([]model.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Valid() || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Minutes() < out[j].Minutes()
	})
	return out
}

func ValidateSchedule(entries []model.ScheduleEntry) error {
	for _, e := range entries {
		if e.Hour < 0 || e.Hour > 23 {
			return &Error{Key: "Schedule", Value: e.String(), Err: errHourRange}
		}
		if e.Minute < 0 || e.Minute > 59 {
			return &Error{Key: "Schedule", Value: e.String(), Err: errMinRange}
		}
	}
	return nil
}

func FormatSchedule(entries []model.ScheduleEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ",")
}
