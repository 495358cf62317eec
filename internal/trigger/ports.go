package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/alarmd/internal/model"
)

var (
	ErrNotRinging         = errors.New("trigger: no alarm is ringing")
	ErrMissionsPending    = errors.New("trigger: missions not yet satisfied")
	ErrSnoozeUnavailable  = errors.New("trigger: snooze is not enabled for this alarm")
	ErrNoMissions         = errors.New("trigger: ringing alarm has no missions")
	ErrMissionUnavailable = errors.New("trigger: mission unavailable on this device")
	ErrMissionSkipped     = errors.New("trigger: mission skipped by user")
	ErrUnknownMissionSet  = errors.New("trigger: unknown mission set")
)

// AudioWakePort owns the alarm sound. Start replaces whatever is playing.
type AudioWakePort interface {
	Start(track string, volume int, loop bool) error
	Stop()
}

// MissionGatePort evaluates the missions that guard dismissal. A set is
// opened when an episode starts and closed when it ends.
type MissionGatePort interface {
	Open(setID, alarmID string, missions []model.MissionKind) error
	IsSatisfied(setID string) (bool, error)
	Prompt(setID string) (MissionPrompt, bool)
	Submit(setID, answer string) (bool, error)
	Fail(setID string, err error)
	Progress(setID string) MissionProgress
	Close(setID string)
}

// Scheduler is the part of the alarm scheduler the controller drives.
type Scheduler interface {
	ScheduleSnooze(alarm model.Alarm, from time.Time) (time.Time, error)
	EnsureNext(alarm model.Alarm) error
}

// MissionGateError means a mission cannot currently be evaluated (device
// missing, permission denied). Dismissal falls back after a grace period.
type MissionGateError struct {
	AlarmID string
	Mission model.MissionKind
	Err     error
}

func (e *MissionGateError) Error() string {
	return fmt.Sprintf("trigger: alarm %s mission %s: %v", e.AlarmID, e.Mission, e.Err)
}

func (e *MissionGateError) Unwrap() error { return e.Err }

type MissionPrompt struct {
	Round int
	Total int
	Kind  model.MissionKind
	Text  string
}

type MissionProgress struct {
	Total   int
	Done    int
	Current *MissionPrompt
	Failed  error
}

func (p MissionProgress) Complete() bool { return p.Total > 0 && p.Done >= p.Total }
