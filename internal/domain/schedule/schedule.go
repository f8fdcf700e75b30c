package schedule

import (
	"fmt"
	"time"
)

// Key identifies one of the five fixed daily occasions.
type Key string

const (
	KeyFajr    Key = "fajr"
	KeyDhuhr   Key = "dhuhr"
	KeyAsr     Key = "asr"
	KeyMaghrib Key = "maghrib"
	KeyIsha    Key = "isha"
)

// Order is the fixed domain ordering of the occasions within a day.
var Order = []Key{KeyFajr, KeyDhuhr, KeyAsr, KeyMaghrib, KeyIsha}

var titles = map[Key]string{
	KeyFajr:    "Фаджр",
	KeyDhuhr:   "Зухр",
	KeyAsr:     "Аср",
	KeyMaghrib: "Магриб",
	KeyIsha:    "Иша",
}

// Title returns the user-facing name of an occasion.
func Title(k Key) string {
	if t, ok := titles[k]; ok {
		return t
	}
	return string(k)
}

// DateLayout is the calendar-date format used for DaySchedule keys and dedup keys.
const DateLayout = "2006-01-02"

// Day holds the occasion times for a single calendar date.
// Days are immutable once published: updates arrive as full-array replacements
// through the ingestion endpoint, never as partial edits.
type Day struct {
	Date      string         `json:"date"`
	Occasions map[Key]string `json:"occasions"`
}

// Validate checks the date and every occasion time for well-formedness.
func (d Day) Validate() error {
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", d.Date, err)
	}
	for key, at := range d.Occasions {
		if _, ok := titles[key]; !ok {
			return fmt.Errorf("unknown occasion key %q for date %s", key, d.Date)
		}
		if !ValidHHMM(at) {
			return fmt.Errorf("invalid time %q for occasion %s on %s", at, key, d.Date)
		}
	}
	return nil
}

// ValidHHMM reports whether s is a zero-padded 24h "HH:MM" value.
func ValidHHMM(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// MinusMinutes subtracts m minutes from an "HH:MM" value, borrowing across the
// hour boundary. ok is false when the subtraction would cross midnight; the
// caller decides what a previous-day time means (the engine skips such items).
func MinusMinutes(hhmm string, m int) (string, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", false
	}
	total := t.Hour()*60 + t.Minute() - m
	if total < 0 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), true
}
