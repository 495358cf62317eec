package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidAlarm       = errors.New("model: invalid alarm")
	ErrInvalidMissionKind = errors.New("model: invalid mission kind")
	ErrInvalidClock       = errors.New("model: invalid time of day")
)

const (
	DefaultSoundName             = "classic"
	DefaultVolume                = 80
	DefaultSnoozeDurationMinutes = 5
	DefaultMaxSnoozes            = 3
	UnlimitedSnoozes             = -1
	MaxSnoozeDurationMinutes     = 120
	MaxMissionCount              = 10
)

// ValidationError reports a malformed alarm. It matches ErrInvalidAlarm.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: invalid alarm %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidAlarm
}

type MissionKind string

const (
	MissionMath    MissionKind = "math"
	MissionMemory  MissionKind = "memory"
	MissionShake   MissionKind = "shake"
	MissionPhoto   MissionKind = "photo"
	MissionBarcode MissionKind = "barcode"
)

func (k MissionKind) IsValid() bool {
	switch k {
	case MissionMath, MissionMemory, MissionShake, MissionPhoto, MissionBarcode:
		return true
	default:
		return false
	}
}

// TimeOfDay is a wall-clock time without a date or zone.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) IsValid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay accepts "7:05", "07:05" and "0705".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	var hs, ms string
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hs, ms = s[:i], s[i+1:]
	} else if len(s) == 4 {
		hs, ms = s[:2], s[2:]
	} else {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || len(ms) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.IsValid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return t, nil
}

// Alarm is the durable record of a user alarm.
type Alarm struct {
	ID                    string        `json:"id"`
	Time                  TimeOfDay     `json:"time"`
	Label                 string        `json:"label,omitempty"`
	IsActive              bool          `json:"is_active"`
	RepeatDays            Weekdays      `json:"repeat_days"`
	SoundName             string        `json:"sound_name"`
	Volume                int           `json:"volume"`
	SnoozeEnabled         bool          `json:"snooze_enabled"`
	SnoozeDurationMinutes int           `json:"snooze_duration_minutes"`
	MaxSnoozes            int           `json:"max_snoozes"`
	MissionEnabled        bool          `json:"mission_enabled"`
	MissionCount          int           `json:"mission_count"`
	SelectedMissions      []MissionKind `json:"selected_missions,omitempty"`

	// CurrentSnoozeCount belongs to an in-progress ringing episode and is
	// never persisted.
	CurrentSnoozeCount int `json:"-"`
}

func (a Alarm) IsRepeating() bool { return !a.RepeatDays.Empty() }

func (a Alarm) SnoozeUnlimited() bool { return a.MaxSnoozes == UnlimitedSnoozes }

// CanSnooze reports whether the snooze policy allows one more snooze.
func (a Alarm) CanSnooze() bool {
	if !a.SnoozeEnabled {
		return false
	}
	return a.SnoozeUnlimited() || a.CurrentSnoozeCount < a.MaxSnoozes
}

// RequiredMissions expands the mission policy into the ordered list of rounds
// that must be completed before dismissal, cycling through SelectedMissions.
func (a Alarm) RequiredMissions() []MissionKind {
	if !a.MissionEnabled || len(a.SelectedMissions) == 0 || a.MissionCount <= 0 {
		return nil
	}
	out := make([]MissionKind, 0, a.MissionCount)
	for i := 0; i < a.MissionCount; i++ {
		out = append(out, a.SelectedMissions[i%len(a.SelectedMissions)])
	}
	return out
}

func (a Alarm) Clone() Alarm {
	out := a
	if a.SelectedMissions != nil {
		out.SelectedMissions = append([]MissionKind(nil), a.SelectedMissions...)
	}
	return out
}

// Normalize fills every optional policy field with its explicit default so
// the rest of the engine never has to re-derive one.
func Normalize(a Alarm) Alarm {
	out := a.Clone()
	out.ID = strings.TrimSpace(out.ID)
	out.Label = strings.TrimSpace(out.Label)
	if strings.TrimSpace(out.SoundName) == "" {
		out.SoundName = DefaultSoundName
	}
	if out.SnoozeDurationMinutes == 0 {
		out.SnoozeDurationMinutes = DefaultSnoozeDurationMinutes
	}
	if out.SnoozeEnabled && out.MaxSnoozes == 0 {
		out.MaxSnoozes = DefaultMaxSnoozes
	}
	if out.MissionEnabled {
		if len(out.SelectedMissions) == 0 {
			out.SelectedMissions = []MissionKind{MissionMath}
		}
		if out.MissionCount == 0 {
			out.MissionCount = len(out.SelectedMissions)
		}
	}
	if len(out.SelectedMissions) > 0 {
		seen := make(map[MissionKind]bool, len(out.SelectedMissions))
		dedup := out.SelectedMissions[:0]
		for _, k := range out.SelectedMissions {
			k = MissionKind(strings.ToLower(strings.TrimSpace(string(k))))
			if seen[k] {
				continue
			}
			seen[k] = true
			dedup = append(dedup, k)
		}
		out.SelectedMissions = dedup
	}
	out.CurrentSnoozeCount = 0
	return out
}

func (a Alarm) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if a.Time.Hour < 0 || a.Time.Hour > 23 {
		return &ValidationError{Field: "time.hour", Reason: fmt.Sprintf("%d out of range 0-23", a.Time.Hour)}
	}
	if a.Time.Minute < 0 || a.Time.Minute > 59 {
		return &ValidationError{Field: "time.minute", Reason: fmt.Sprintf("%d out of range 0-59", a.Time.Minute)}
	}
	if !a.RepeatDays.IsValid() {
		return &ValidationError{Field: "repeat_days", Reason: "contains unknown weekday bits"}
	}
	if a.Volume < 0 || a.Volume > 100 {
		return &ValidationError{Field: "volume", Reason: fmt.Sprintf("%d out of range 0-100", a.Volume)}
	}
	if a.SnoozeEnabled {
		if a.SnoozeDurationMinutes < 1 || a.SnoozeDurationMinutes > MaxSnoozeDurationMinutes {
			return &ValidationError{Field: "snooze_duration_minutes", Reason: fmt.Sprintf("%d out of range 1-%d", a.SnoozeDurationMinutes, MaxSnoozeDurationMinutes)}
		}
		if a.MaxSnoozes < UnlimitedSnoozes || a.MaxSnoozes == 0 {
			return &ValidationError{Field: "max_snoozes", Reason: "must be -1 (unlimited) or positive"}
		}
		if !a.SnoozeUnlimited() && a.CurrentSnoozeCount > a.MaxSnoozes {
			return &ValidationError{Field: "current_snooze_count", Reason: "exceeds max_snoozes"}
		}
	}
	if a.MissionEnabled {
		if a.MissionCount < 1 || a.MissionCount > MaxMissionCount {
			return &ValidationError{Field: "mission_count", Reason: fmt.Sprintf("%d out of range 1-%d", a.MissionCount, MaxMissionCount)}
		}
		if len(a.SelectedMissions) == 0 {
			return &ValidationError{Field: "selected_missions", Reason: "at least one mission is required"}
		}
	}
	for _, k := range a.SelectedMissions {
		if !k.IsValid() {
			return &ValidationError{Field: "selected_missions", Reason: fmt.Errorf("%w: %q", ErrInvalidMissionKind, k).Error()}
		}
	}
	return nil
}
