package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sandeepkv93/alarmd/internal/model"
)

const (
	DefaultLateFireWindow = 30 * time.Minute
	consumedRetention     = 48 * time.Hour
)

// Ringer is the trigger side of the scheduler.
type Ringer interface {
	// IsActive reports whether an episode for the alarm is ringing or queued.
	IsActive(alarmID string) bool
	Ring(ctx context.Context, alarm model.Alarm, ev model.FireEvent) error
}

// Lookup returns the current record for an alarm id.
type Lookup func(alarmID string) (model.Alarm, bool)

type Config struct {
	Port   NotificationPort
	Lookup Lookup
	Ringer Ringer
	// Clock defaults to time.Now.
	Clock          func() time.Time
	LateFireWindow time.Duration
	// Missed is called for occurrences discovered after LateFireWindow, with
	// the current record of the alarm. The consumed registration is gone by
	// then; repeating alarms are already re-armed for normal fires.
	Missed func(ctx context.Context, alarm model.Alarm, ev model.FireEvent) error
	Logger *slog.Logger
}

// Registration is one live ledger entry.
type Registration struct {
	Handle      Handle
	AlarmID     string
	Kind        model.OccurrenceKind
	ScheduledAt time.Time
}

// AlarmScheduler keeps the NotificationPort in step with the alarm set. The
// ledger is the source of truth for what is live: a delivery whose handle is
// not in the ledger is stale and dropped.
//
// Lookup and Ringer are never called with the internal lock held, so a
// Ringer may call back into the scheduler.
type AlarmScheduler struct {
	port       NotificationPort
	lookup     Lookup
	ringer     Ringer
	now        func() time.Time
	lateWindow time.Duration
	missed     func(context.Context, model.Alarm, model.FireEvent) error
	logger     *slog.Logger

	mu          sync.Mutex
	byAlarm     map[string][]Registration
	byHandle    map[Handle]Registration
	consumed    map[string]time.Time
	unscheduled map[string]error
}

func NewAlarmScheduler(cfg Config) (*AlarmScheduler, error) {
	if cfg.Port == nil {
		return nil, errors.New("scheduler: notification port is required")
	}
	if cfg.Lookup == nil {
		return nil, errors.New("scheduler: alarm lookup is required")
	}
	if cfg.Ringer == nil {
		return nil, errors.New("scheduler: ringer is required")
	}
	s := &AlarmScheduler{
		port:        cfg.Port,
		lookup:      cfg.Lookup,
		ringer:      cfg.Ringer,
		now:         cfg.Clock,
		lateWindow:  cfg.LateFireWindow,
		missed:      cfg.Missed,
		logger:      cfg.Logger,
		byAlarm:     make(map[string][]Registration),
		byHandle:    make(map[Handle]Registration),
		consumed:    make(map[string]time.Time),
		unscheduled: make(map[string]error),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.lateWindow <= 0 {
		s.lateWindow = DefaultLateFireWindow
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// Schedule registers every next occurrence of an active alarm, replacing
// whatever was registered for it before. Inactive alarms are left alone.
func (s *AlarmScheduler) Schedule(alarm model.Alarm) error {
	if !alarm.IsActive {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(alarm.ID, "")
	return s.armLocked(alarm)
}

// Cancel removes every registration for the alarm, snooze included.
func (s *AlarmScheduler) Cancel(alarmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unscheduled, alarmID)
	return s.cancelLocked(alarmID, "")
}

func (s *AlarmScheduler) Reschedule(alarm model.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unscheduled, alarm.ID)
	cancelErr := s.cancelLocked(alarm.ID, "")
	if !alarm.IsActive {
		return cancelErr
	}
	return s.armLocked(alarm)
}

// ScheduleSnooze registers one snooze fire at from plus the snooze duration,
// replacing any pending snooze for the alarm. Normal registrations are not
// touched.
//
// A failure leaves the ledger as it was and does not flag the alarm
// unscheduled: the controller keeps the episode ringing, so the caller sees
// the error while the alarm is still in front of the user.
func (s *AlarmScheduler) ScheduleSnooze(alarm model.Alarm, from time.Time) (time.Time, error) {
	at := from.Add(time.Duration(alarm.SnoozeDurationMinutes) * time.Minute)
	s.mu.Lock()
	defer s.mu.Unlock()
	var previous []Registration
	for _, r := range s.byAlarm[alarm.ID] {
		if r.Kind == model.OccurrenceSnooze {
			previous = append(previous, r)
		}
	}
	if err := s.registerLocked(alarm.ID, model.OccurrenceSnooze, at); err != nil {
		return at, err
	}
	if err := s.dropLocked(alarm.ID, previous); err != nil {
		s.logger.Warn("replaced snooze could not be cancelled", "alarm_id", alarm.ID, "error", err)
	}
	return at, nil
}

// EnsureNext makes sure an active repeating alarm has its normal
// registrations in place. Snooze registrations are left alone.
func (s *AlarmScheduler) EnsureNext(alarm model.Alarm) error {
	if !alarm.IsActive || !alarm.IsRepeating() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byAlarm[alarm.ID] {
		if r.Kind == model.OccurrenceNormal {
			return nil
		}
	}
	return s.armLocked(alarm)
}

// OnFired accepts one delivery from a producer. It is forwarded to the
// Ringer at most once per (alarm, minute) and never while an episode for the
// same alarm is active.
func (s *AlarmScheduler) OnFired(ctx context.Context, d Delivery, source Source) error {
	now := s.now()

	s.mu.Lock()
	reg, ok := s.byHandle[d.Handle]
	if !ok {
		s.mu.Unlock()
		staleDeliveriesTotal.Inc()
		s.logger.Debug("dropping stale delivery", "handle", d.Handle, "alarm_id", d.Tag.AlarmID, "source", source)
		return nil
	}
	s.removeLocked(reg)
	if source != SourceEngine {
		if err := s.port.Cancel(reg.Handle); err != nil && !errors.Is(err, ErrNotRegistered) {
			s.logger.Warn("cancel of consumed registration failed", "handle", reg.Handle, "error", err)
		}
	}
	ev := model.FireEvent{AlarmID: reg.AlarmID, ScheduledAt: reg.ScheduledAt, Kind: reg.Kind}
	key := ev.MinuteKey()
	if _, dup := s.consumed[key]; dup {
		s.mu.Unlock()
		fireDuplicatesTotal.Inc()
		s.logger.Debug("occurrence already consumed", "alarm_id", ev.AlarmID, "scheduled_at", ev.ScheduledAt, "source", source)
		return nil
	}
	s.consumed[key] = ev.ScheduledAt
	s.mu.Unlock()

	alarm, found := s.lookup(ev.AlarmID)
	if !found || !alarm.IsActive {
		s.logger.Info("ignoring fire for missing or inactive alarm", "alarm_id", ev.AlarmID, "kind", ev.Kind)
		return nil
	}

	var rearmErr error
	if ev.Kind == model.OccurrenceNormal && alarm.IsRepeating() {
		s.mu.Lock()
		s.cancelLocked(alarm.ID, model.OccurrenceNormal)
		rearmErr = s.armLocked(alarm)
		s.mu.Unlock()
	}

	if late := now.Sub(ev.ScheduledAt); late > s.lateWindow {
		missedTotal.Inc()
		s.logger.Warn("occurrence missed", "alarm_id", ev.AlarmID, "kind", ev.Kind, "scheduled_at", ev.ScheduledAt, "late", late.Round(time.Second), "source", source)
		if s.missed != nil {
			if err := s.missed(ctx, alarm, ev); err != nil {
				return errors.Join(rearmErr, fmt.Errorf("missed %s: %w", ev.AlarmID, err))
			}
		}
		return rearmErr
	}

	if s.ringer.IsActive(ev.AlarmID) {
		fireDuplicatesTotal.Inc()
		s.logger.Info("episode already active, fire suppressed", "alarm_id", ev.AlarmID, "kind", ev.Kind, "source", source)
		return rearmErr
	}

	firesTotal.WithLabelValues(string(ev.Kind), string(source)).Inc()
	s.logger.Info("alarm fired", "alarm_id", ev.AlarmID, "kind", ev.Kind, "scheduled_at", ev.ScheduledAt, "source", source)
	if err := s.ringer.Ring(ctx, alarm, ev); err != nil {
		return errors.Join(rearmErr, fmt.Errorf("ring %s: %w", ev.AlarmID, err))
	}
	return rearmErr
}

// Poll delivers every ledger entry due at or before now through OnFired.
func (s *AlarmScheduler) Poll(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	due := make([]Registration, 0)
	for _, r := range s.byHandle {
		if !r.ScheduledAt.After(now) {
			due = append(due, r)
		}
	}
	for key, at := range s.consumed {
		if now.Sub(at) > consumedRetention {
			delete(s.consumed, key)
		}
	}
	s.mu.Unlock()

	sortRegistrations(due)
	var errs []error
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := Delivery{
			Handle:  r.Handle,
			Tag:     Tag{AlarmID: r.AlarmID, Kind: r.Kind, ScheduledAt: r.ScheduledAt},
			FiredAt: now,
		}
		if err := s.OnFired(ctx, d, SourcePoll); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reconcile brings registrations in line with the given alarm set: orphans
// and inactive alarms lose their registrations, and active alarms that are
// flagged unscheduled or have nothing pending (and are not ringing) are
// armed again.
func (s *AlarmScheduler) Reconcile(alarms []model.Alarm) error {
	known := make(map[string]model.Alarm, len(alarms))
	for _, a := range alarms {
		known[a.ID] = a
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.byAlarm)+len(s.unscheduled))
	for id := range s.byAlarm {
		ids = append(ids, id)
	}
	for id := range s.unscheduled {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if a, ok := known[id]; !ok || !a.IsActive {
			delete(s.unscheduled, id)
			s.cancelLocked(id, "")
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, a := range alarms {
		if !a.IsActive {
			continue
		}
		s.mu.Lock()
		_, flagged := s.unscheduled[a.ID]
		pending := len(s.byAlarm[a.ID])
		s.mu.Unlock()
		if !flagged && pending > 0 {
			continue
		}
		if !flagged && s.ringer.IsActive(a.ID) {
			continue
		}
		if err := s.Reschedule(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registrations returns the live ledger entries for an alarm ordered by time.
func (s *AlarmScheduler) Registrations(alarmID string) []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Registration(nil), s.byAlarm[alarmID]...)
	sortRegistrations(out)
	return out
}

// NextFire returns the earliest live registration for the alarm.
func (s *AlarmScheduler) NextFire(alarmID string) (Registration, bool) {
	regs := s.Registrations(alarmID)
	if len(regs) == 0 {
		return Registration{}, false
	}
	return regs[0], true
}

// Unscheduled returns the alarms whose last registration attempt failed.
func (s *AlarmScheduler) Unscheduled() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]error, len(s.unscheduled))
	for id, err := range s.unscheduled {
		out[id] = err
	}
	return out
}

func (s *AlarmScheduler) armLocked(alarm model.Alarm) error {
	var errs []error
	for _, at := range model.NextOccurrences(alarm, s.now()) {
		if err := s.registerLocked(alarm.ID, model.OccurrenceNormal, at); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := &SchedulingError{AlarmID: alarm.ID, Err: errors.Join(errs...)}
		s.unscheduled[alarm.ID] = err
		return err
	}
	delete(s.unscheduled, alarm.ID)
	return nil
}

func (s *AlarmScheduler) registerLocked(alarmID string, kind model.OccurrenceKind, at time.Time) error {
	h, err := s.port.ScheduleAt(at, Tag{AlarmID: alarmID, Kind: kind, ScheduledAt: at})
	if err != nil {
		scheduleFailuresTotal.Inc()
		s.logger.Warn("registration failed", "alarm_id", alarmID, "kind", kind, "scheduled_at", at, "error", err)
		return &SchedulingError{AlarmID: alarmID, Err: err}
	}
	r := Registration{Handle: h, AlarmID: alarmID, Kind: kind, ScheduledAt: at}
	s.byAlarm[alarmID] = append(s.byAlarm[alarmID], r)
	s.byHandle[h] = r
	s.logger.Debug("registered occurrence", "alarm_id", alarmID, "kind", kind, "scheduled_at", at, "handle", h)
	return nil
}

// cancelLocked drops registrations for the alarm, limited to kind when it is
// non-empty. Ledger entries are removed even when the port cancel fails so a
// late delivery is treated as stale.
func (s *AlarmScheduler) cancelLocked(alarmID string, kind model.OccurrenceKind) error {
	var regs []Registration
	for _, r := range s.byAlarm[alarmID] {
		if kind == "" || r.Kind == kind {
			regs = append(regs, r)
		}
	}
	return s.dropLocked(alarmID, regs)
}

func (s *AlarmScheduler) dropLocked(alarmID string, regs []Registration) error {
	var errs []error
	for _, r := range regs {
		s.removeLocked(r)
		if err := s.port.Cancel(r.Handle); err != nil && !errors.Is(err, ErrNotRegistered) {
			s.logger.Warn("cancel failed", "alarm_id", alarmID, "handle", r.Handle, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &SchedulingError{AlarmID: alarmID, Err: errors.Join(errs...)}
	}
	return nil
}

func (s *AlarmScheduler) removeLocked(r Registration) {
	delete(s.byHandle, r.Handle)
	regs := s.byAlarm[r.AlarmID]
	for i := range regs {
		if regs[i].Handle == r.Handle {
			regs = append(regs[:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(s.byAlarm, r.AlarmID)
		return
	}
	s.byAlarm[r.AlarmID] = regs
}

func sortRegistrations(regs []Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].ScheduledAt.Equal(regs[j].ScheduledAt) {
			return regs[i].Kind < regs[j].Kind
		}
		return regs[i].ScheduledAt.Before(regs[j].ScheduledAt)
	})
}
