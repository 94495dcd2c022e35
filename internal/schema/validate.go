package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validator checks one raw cell value and returns zero or more messages.
// An empty string is always accepted: "not yet filled in" is non-blocking
// for optional fields and required-ness is enforced at compile time.
type Validator func(value string, row int, label string) []string

func parseNumber(value string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return f, err == nil
}

// Positive accepts numbers strictly greater than zero.
func Positive() Validator {
	return func(value string, row int, label string) []string {
		if value == "" {
			return nil
		}
		f, ok := parseNumber(value)
		if !ok {
			return []string{fmt.Sprintf("row %d: %s value %q is not a valid number", row+1, label, value)}
		}
		if f <= 0 {
			return []string{fmt.Sprintf("row %d: %s must be a positive number, got %v", row+1, label, f)}
		}
		return nil
	}
}

// NonNegative accepts zero and positive numbers.
func NonNegative() Validator {
	return func(value string, row int, label string) []string {
		if value == "" {
			return nil
		}
		f, ok := parseNumber(value)
		if !ok {
			return []string{fmt.Sprintf("row %d: %s value %q is not a valid number", row+1, label, value)}
		}
		if f < 0 {
			return []string{fmt.Sprintf("row %d: %s must not be negative, got %v", row+1, label, f)}
		}
		return nil
	}
}

// Range accepts numbers between min and max. Inclusive selects whether the
// bounds themselves are allowed; the message names the bound type.
func Range(min, max float64, inclusive bool) Validator {
	return func(value string, row int, label string) []string {
		if value == "" {
			return nil
		}
		f, ok := parseNumber(value)
		if !ok {
			return []string{fmt.Sprintf("row %d: %s value %q is not a valid number", row+1, label, value)}
		}
		out := f < min || f > max
		if !inclusive {
			out = f <= min || f >= max
		}
		if out {
			bound := "inclusive"
			if !inclusive {
				bound = "exclusive"
			}
			return []string{fmt.Sprintf("row %d: %s must be between %v and %v (%s), got %v", row+1, label, min, max, bound, f)}
		}
		return nil
	}
}

// Latitude accepts a single latitude in [-90, 90]. A value containing a
// comma is rejected outright: it is almost certainly a combined pair pasted
// into a split column.
func Latitude() Validator {
	return coordinate("latitude", -90, 90)
}

// Longitude accepts a single longitude in [-180, 180].
func Longitude() Validator {
	return coordinate("longitude", -180, 180)
}

func coordinate(kind string, min, max float64) Validator {
	inRange := Range(min, max, true)
	return func(value string, row int, label string) []string {
		if value == "" {
			return nil
		}
		if strings.Contains(value, ",") {
			return []string{fmt.Sprintf("row %d: %s value %q must be a single %s, not a comma-separated pair", row+1, label, value, kind)}
		}
		return inRange(value, row, label)
	}
}

// LatLngPair accepts "lat,lng": exactly two comma-separated numbers, each
// validated against its own range. Messages name the failing half.
func LatLngPair() Validator {
	return pair("latitude", -90, 90, "longitude", -180, 180)
}

// LngLatPair accepts "lng,lat".
func LngLatPair() Validator {
	return pair("longitude", -180, 180, "latitude", -90, 90)
}

func pair(firstKind string, firstMin, firstMax float64, secondKind string, secondMin, secondMax float64) Validator {
	return func(value string, row int, label string) []string {
		if value == "" {
			return nil
		}
		parts := strings.Split(value, ",")
		if len(parts) != 2 {
			return []string{fmt.Sprintf("row %d: %s value %q must be two comma-separated numbers", row+1, label, value)}
		}
		var msgs []string
		check := func(part, kind string, min, max float64) {
			f, ok := parseNumber(part)
			if !ok {
				msgs = append(msgs, fmt.Sprintf("row %d: %s %s part %q is not a valid number", row+1, label, kind, strings.TrimSpace(part)))
				return
			}
			if f < min || f > max {
				msgs = append(msgs, fmt.Sprintf("row %d: %s %s must be between %v and %v (inclusive), got %v", row+1, label, kind, min, max, f))
			}
		}
		check(parts[0], firstKind, firstMin, firstMax)
		check(parts[1], secondKind, secondMin, secondMax)
		return msgs
	}
}

// ArrayOf accepts either a JSON array literal or a comma-separated list.
// kind names the expected content in the message ("array", "skills",
// "depot IDs", "zones").
func ArrayOf(kind string) Validator {
	return func(value string, row int, label string) []string {
		if value == "" {
			return nil
		}
		bad := []string{fmt.Sprintf("row %d: %s value %q is not a valid %s format", row+1, label, value, kind)}
		trimmed := strings.TrimSpace(value)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
				return bad
			}
			if _, ok := parsed.([]any); !ok {
				return bad
			}
			return nil
		}
		any := false
		for _, tok := range strings.Split(trimmed, ",") {
			if strings.TrimSpace(tok) != "" {
				any = true
			}
		}
		if !any {
			return bad
		}
		return nil
	}
}

// timeLayouts are tried in order; a value is a valid timestamp when any
// layout strict-matches. ISO-8601 variants first, then US/EU dates, then
// named-month forms and bare times.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"02.01.2006 15:04",
	"02.01.2006",
	"01-02-2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
	"January 2, 2006",
	"15:04:05",
	"15:04",
}

// ParseTimestamp returns the first layout that strict-matches the value.
func ParseTimestamp(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Timestamp accepts any of the known date/time layouts. No partial credit:
// one message regardless of how close the value came.
func Timestamp() Validator {
	return func(value string, row int, label string) []string {
		if value == "" {
			return nil
		}
		if _, ok := ParseTimestamp(value); !ok {
			return []string{fmt.Sprintf("row %d: %s value %q is not a valid time format", row+1, label, value)}
		}
		return nil
	}
}

// Validate runs every validator of a field against one cell.
func Validate(f FieldOption, value string, row int) []string {
	var msgs []string
	for _, v := range f.Validators {
		msgs = append(msgs, v(value, row, f.Label)...)
	}
	return msgs
}
