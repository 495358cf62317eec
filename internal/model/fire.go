package model

import "time"

type OccurrenceKind string

const (
	OccurrenceNormal OccurrenceKind = "normal"
	OccurrenceSnooze OccurrenceKind = "snooze"
)

func (k OccurrenceKind) IsValid() bool {
	return k == OccurrenceNormal || k == OccurrenceSnooze
}

// FireEvent is one delivered occurrence. It only lives as long as the
// notification layer keeps it.
type FireEvent struct {
	AlarmID     string
	ScheduledAt time.Time
	Kind        OccurrenceKind
}

// MinuteKey identifies the occurrence for duplicate suppression.
func (e FireEvent) MinuteKey() string {
	return e.AlarmID + "@" + MinuteStamp(e.ScheduledAt)
}

// MinuteStamp formats t truncated to the minute in UTC.
func MinuteStamp(t time.Time) string {
	return t.UTC().Truncate(time.Minute).Format("200601021504")
}
