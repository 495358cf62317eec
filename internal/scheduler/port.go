package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/alarmd/internal/model"
)

var ErrNotRegistered = errors.New("scheduler: registration not found")

// Handle identifies one registration with a NotificationPort.
type Handle string

// Tag is what a registration carries back when it fires.
type Tag struct {
	AlarmID     string
	Kind        model.OccurrenceKind
	ScheduledAt time.Time
}

func (t Tag) FireEvent() model.FireEvent {
	return model.FireEvent{AlarmID: t.AlarmID, ScheduledAt: t.ScheduledAt, Kind: t.Kind}
}

type Delivery struct {
	Handle  Handle
	Tag     Tag
	FiredAt time.Time
}

// NotificationPort is the wake-up mechanism: something that can be asked to
// fire at an instant and reports fires on C. Cancel of an unknown or already
// fired handle returns ErrNotRegistered.
type NotificationPort interface {
	ScheduleAt(at time.Time, tag Tag) (Handle, error)
	Cancel(h Handle) error
	C() <-chan Delivery
}

// Source names the producer of a fire.
type Source string

const (
	SourceEngine Source = "engine"
	SourcePoll   Source = "poll"
)

// SchedulingError reports that an alarm could not be (fully) registered. The
// alarm stays flagged unscheduled until a later reconcile succeeds.
type SchedulingError struct {
	AlarmID string
	Err     error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduler: alarm %s: %v", e.AlarmID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
