package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/alarmd/internal/model"
)

const DefaultMissionFailureGrace = 60 * time.Second

type State string

const (
	StateIdle    State = "idle"
	StateRinging State = "ringing"
)

// Outcome is how an episode ended.
type Outcome string

const (
	OutcomeDismissed       Outcome = "dismissed"
	OutcomeSnoozed         Outcome = "snoozed"
	OutcomeForcedDismiss   Outcome = "forced_dismiss"
	OutcomeMissionFallback Outcome = "mission_fallback"
	OutcomeCancelled       Outcome = "cancelled"
)

// Ended reports whether the outcome finishes the occurrence for good.
func (o Outcome) Ended() bool { return o != OutcomeSnoozed }

type SnoozeResult struct {
	Snoozed       bool
	ForcedDismiss bool
	Count         int
	Until         time.Time
}

// Snapshot is a copy of the controller state for display.
type Snapshot struct {
	State        State
	Alarm        model.Alarm
	Event        model.FireEvent
	RingingSince time.Time
	AudioFailed  bool
	Missions     MissionProgress
	GateErr      error
	FallbackAt   time.Time
	Queued       []string
	Snoozed      map[string]time.Time
}

type Hooks struct {
	// Started runs after an episode enters Ringing.
	Started func(alarm model.Alarm, ev model.FireEvent)
	// Ended runs after an episode leaves Ringing, outside the controller lock.
	Ended func(ctx context.Context, alarm model.Alarm, outcome Outcome) error
}

type ControllerConfig struct {
	Audio               AudioWakePort
	Gate                MissionGatePort
	Scheduler           Scheduler
	Hooks               Hooks
	Clock               func() time.Time
	MissionFailureGrace time.Duration
	Logger              *slog.Logger
}

type pendingFire struct {
	alarm model.Alarm
	ev    model.FireEvent
}

type episode struct {
	alarm     model.Alarm
	ev        model.FireEvent
	since     time.Time
	setID     string
	audioErr  error
	gateErr   error
	gateSince time.Time
}

// Controller is the ringing state machine. At most one alarm rings; fires
// for other alarms wait in a FIFO queue.
type Controller struct {
	audio     AudioWakePort
	gate      MissionGatePort
	scheduler Scheduler
	hooks     Hooks
	now       func() time.Time
	grace     time.Duration
	logger    *slog.Logger

	mu           sync.Mutex
	current      *episode
	queue        []pendingFire
	snoozeCounts map[string]int
	snoozedUntil map[string]time.Time
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Audio == nil {
		return nil, errors.New("trigger: audio port is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("trigger: mission gate is required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("trigger: scheduler is required")
	}
	c := &Controller{
		audio:        cfg.Audio,
		gate:         cfg.Gate,
		scheduler:    cfg.Scheduler,
		hooks:        cfg.Hooks,
		now:          cfg.Clock,
		grace:        cfg.MissionFailureGrace,
		logger:       cfg.Logger,
		snoozeCounts: make(map[string]int),
		snoozedUntil: make(map[string]time.Time),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.grace <= 0 {
		c.grace = DefaultMissionFailureGrace
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "trigger")
	return c, nil
}

// IsActive reports whether the alarm is ringing or waiting to ring.
func (c *Controller) IsActive(alarmID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked(alarmID)
}

func (c *Controller) activeLocked(alarmID string) bool {
	if c.current != nil && c.current.alarm.ID == alarmID {
		return true
	}
	for _, p := range c.queue {
		if p.alarm.ID == alarmID {
			return true
		}
	}
	return false
}

// Ring starts an episode, or queues it behind the one already ringing.
func (c *Controller) Ring(ctx context.Context, alarm model.Alarm, ev model.FireEvent) error {
	c.mu.Lock()
	if c.activeLocked(alarm.ID) {
		c.mu.Unlock()
		c.logger.Debug("ignoring fire for active alarm", "alarm_id", alarm.ID)
		return nil
	}
	c.queue = append(c.queue, pendingFire{alarm: alarm, ev: ev})
	if c.current != nil {
		c.logger.Info("alarm queued behind ringing alarm", "alarm_id", alarm.ID, "ringing", c.current.alarm.ID)
	}
	c.mu.Unlock()
	c.advance()
	return nil
}

// advance starts the next queued episode when nothing is ringing.
func (c *Controller) advance() {
	c.mu.Lock()
	if c.current != nil || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	ep := c.startLocked(next.alarm, next.ev)
	c.mu.Unlock()

	if c.hooks.Started != nil {
		c.hooks.Started(ep.alarm, ep.ev)
	}
}

func (c *Controller) startLocked(alarm model.Alarm, ev model.FireEvent) *episode {
	now := c.now()
	if ev.Kind == model.OccurrenceNormal {
		delete(c.snoozeCounts, alarm.ID)
	}
	delete(c.snoozedUntil, alarm.ID)
	alarm.CurrentSnoozeCount = c.snoozeCounts[alarm.ID]

	ep := &episode{alarm: alarm, ev: ev, since: now}
	if err := c.audio.Start(alarm.SoundName, alarm.Volume, true); err != nil {
		ep.audioErr = err
		audioFailuresTotal.Inc()
		c.logger.Warn("alarm audio failed, ringing silently", "alarm_id", alarm.ID, "error", err)
	}

	if missions := alarm.RequiredMissions(); len(missions) > 0 {
		ep.setID = alarm.ID + "@" + model.MinuteStamp(ev.ScheduledAt)
		if err := c.gate.Open(ep.setID, alarm.ID, missions); err != nil {
			c.recordGateErrLocked(ep, &MissionGateError{AlarmID: alarm.ID, Err: err})
		} else if _, err := c.gate.IsSatisfied(ep.setID); err != nil {
			c.recordGateErrLocked(ep, err)
		}
	}
	c.current = ep
	c.logger.Info("alarm ringing", "alarm_id", alarm.ID, "kind", ev.Kind, "scheduled_at", ev.ScheduledAt, "snooze_count", alarm.CurrentSnoozeCount)
	return ep
}

func (c *Controller) recordGateErrLocked(ep *episode, err error) {
	if ep.gateErr == nil {
		ep.gateSince = c.now()
		c.logger.Warn("mission gate failed, dismissal falls back after grace", "alarm_id", ep.alarm.ID, "grace", c.grace, "error", err)
	}
	ep.gateErr = err
}

// Dismiss ends the ringing episode once every required mission is done. If
// the gate has been failing for longer than the grace period the missions
// are waived.
func (c *Controller) Dismiss(ctx context.Context) error {
	c.mu.Lock()
	ep := c.current
	if ep == nil {
		c.mu.Unlock()
		return ErrNotRinging
	}
	outcome := OutcomeDismissed
	if ep.setID != "" {
		ok, err := c.gate.IsSatisfied(ep.setID)
		switch {
		case err != nil:
			c.recordGateErrLocked(ep, err)
			if c.now().Sub(ep.gateSince) < c.grace {
				c.mu.Unlock()
				return err
			}
			outcome = OutcomeMissionFallback
		case !ok:
			progress := c.gate.Progress(ep.setID)
			c.mu.Unlock()
			return fmt.Errorf("%w: %d of %d complete", ErrMissionsPending, progress.Done, progress.Total)
		}
	}
	alarm := c.finishLocked(ep, outcome)
	c.mu.Unlock()

	return c.afterEpisode(ctx, alarm, outcome)
}

// Snooze silences the episode and registers a snooze fire. With the budget
// used up it dismisses instead, bypassing the mission gate.
func (c *Controller) Snooze(ctx context.Context) (SnoozeResult, error) {
	c.mu.Lock()
	ep := c.current
	if ep == nil {
		c.mu.Unlock()
		return SnoozeResult{}, ErrNotRinging
	}
	alarm := ep.alarm
	if !alarm.SnoozeEnabled {
		c.mu.Unlock()
		return SnoozeResult{}, ErrSnoozeUnavailable
	}
	if !alarm.CanSnooze() {
		c.logger.Info("snooze budget exhausted, dismissing", "alarm_id", alarm.ID, "max_snoozes", alarm.MaxSnoozes)
		ended := c.finishLocked(ep, OutcomeForcedDismiss)
		c.mu.Unlock()
		return SnoozeResult{ForcedDismiss: true, Count: alarm.CurrentSnoozeCount}, c.afterEpisode(ctx, ended, OutcomeForcedDismiss)
	}

	until, err := c.scheduler.ScheduleSnooze(alarm, c.now())
	if err != nil {
		c.mu.Unlock()
		return SnoozeResult{}, fmt.Errorf("schedule snooze: %w", err)
	}
	count := alarm.CurrentSnoozeCount + 1
	c.snoozeCounts[alarm.ID] = count
	c.finishLocked(ep, OutcomeSnoozed)
	c.snoozedUntil[alarm.ID] = until
	c.mu.Unlock()

	c.logger.Info("alarm snoozed", "alarm_id", alarm.ID, "snooze_count", count, "until", until)
	if err := c.afterEpisode(ctx, alarm, OutcomeSnoozed); err != nil {
		return SnoozeResult{Snoozed: true, Count: count, Until: until}, err
	}
	return SnoozeResult{Snoozed: true, Count: count, Until: until}, nil
}

// SubmitMission passes an answer to the current mission round.
func (c *Controller) SubmitMission(answer string) (MissionProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep := c.current
	if ep == nil {
		return MissionProgress{}, ErrNotRinging
	}
	if ep.setID == "" {
		return MissionProgress{}, ErrNoMissions
	}
	if _, err := c.gate.Submit(ep.setID, answer); err != nil {
		c.recordGateErrLocked(ep, err)
		return c.gate.Progress(ep.setID), err
	}
	return c.gate.Progress(ep.setID), nil
}

// ReportMissionFailure marks the current round as impossible to complete,
// which starts the fallback grace period.
func (c *Controller) ReportMissionFailure(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep := c.current
	if ep == nil {
		return ErrNotRinging
	}
	if ep.setID == "" {
		return ErrNoMissions
	}
	c.gate.Fail(ep.setID, err)
	if _, gateErr := c.gate.IsSatisfied(ep.setID); gateErr != nil {
		c.recordGateErrLocked(ep, gateErr)
	}
	return nil
}

// Abort ends any episode, queued fire and snooze state for an alarm that was
// deleted or deactivated.
func (c *Controller) Abort(ctx context.Context, alarmID string) {
	c.mu.Lock()
	delete(c.snoozeCounts, alarmID)
	delete(c.snoozedUntil, alarmID)
	kept := c.queue[:0]
	for _, p := range c.queue {
		if p.alarm.ID != alarmID {
			kept = append(kept, p)
		}
	}
	c.queue = kept
	ep := c.current
	if ep == nil || ep.alarm.ID != alarmID {
		c.mu.Unlock()
		return
	}
	c.finishLocked(ep, OutcomeCancelled)
	c.mu.Unlock()
	c.advance()
}

func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{State: StateIdle, Snoozed: make(map[string]time.Time, len(c.snoozedUntil))}
	for id, until := range c.snoozedUntil {
		snap.Snoozed[id] = until
	}
	for _, p := range c.queue {
		snap.Queued = append(snap.Queued, p.alarm.ID)
	}
	ep := c.current
	if ep == nil {
		return snap
	}
	snap.State = StateRinging
	snap.Alarm = ep.alarm.Clone()
	snap.Event = ep.ev
	snap.RingingSince = ep.since
	snap.AudioFailed = ep.audioErr != nil
	if ep.setID != "" {
		snap.Missions = c.gate.Progress(ep.setID)
	}
	if ep.gateErr != nil {
		snap.GateErr = ep.gateErr
		snap.FallbackAt = ep.gateSince.Add(c.grace)
	}
	return snap
}

// finishLocked leaves Ringing. The returned alarm carries the snooze count
// the episode ended with.
func (c *Controller) finishLocked(ep *episode, outcome Outcome) model.Alarm {
	c.audio.Stop()
	if ep.setID != "" {
		c.gate.Close(ep.setID)
	}
	alarm := ep.alarm
	if outcome.Ended() {
		delete(c.snoozeCounts, alarm.ID)
		delete(c.snoozedUntil, alarm.ID)
		alarm.CurrentSnoozeCount = 0
	}
	c.current = nil
	episodesTotal.WithLabelValues(string(outcome)).Inc()
	c.logger.Info("episode ended", "alarm_id", alarm.ID, "outcome", outcome, "rang_for", c.now().Sub(ep.since).Round(time.Second))
	return alarm
}

func (c *Controller) afterEpisode(ctx context.Context, alarm model.Alarm, outcome Outcome) error {
	var errs []error
	if outcome.Ended() {
		if err := c.scheduler.EnsureNext(alarm); err != nil {
			c.logger.Warn("could not ensure next occurrence", "alarm_id", alarm.ID, "error", err)
			errs = append(errs, err)
		}
	}
	if c.hooks.Ended != nil {
		if err := c.hooks.Ended(ctx, alarm, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	c.advance()
	return errors.Join(errs...)
}
