package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/alarmd/internal/model"
	"github.com/sandeepkv93/alarmd/internal/platform"
	"github.com/sandeepkv93/alarmd/internal/scheduler"
	"github.com/sandeepkv93/alarmd/internal/storage"
	"github.com/sandeepkv93/alarmd/internal/trigger"
)

var (
	ErrNotFound = errors.New("app: alarm not found")
	ErrExists   = errors.New("app: alarm id already exists")
)

const eventBuffer = 64

type EventKind string

const (
	EventRinging  EventKind = "ringing"
	EventEnded    EventKind = "ended"
	EventMissed   EventKind = "missed"
	EventWarning  EventKind = "warning"
	EventReloaded EventKind = "reloaded"
)

// Event is a notable runtime change pushed to front-ends.
type Event struct {
	Kind    EventKind
	AlarmID string
	At      time.Time
	Outcome trigger.Outcome
	Message string
}

type Options struct {
	Config RuntimeConfig
	Store  storage.AlarmStore
	// Port defaults to an Engine sized by Config.SchedulerBuffer.
	Port  scheduler.NotificationPort
	Audio trigger.AudioWakePort
	// Gate defaults to a trigger.Board.
	Gate     trigger.MissionGatePort
	Notifier platform.Notifier
	Clock    func() time.Time
	NewID    func() string
	// WatchPath enables reloading when the store file changes on disk.
	WatchPath string
	Logger    *slog.Logger
}

// Status is a point-in-time view of the runtime.
type Status struct {
	Trigger     trigger.Snapshot
	Next        map[string]scheduler.Registration
	Unscheduled map[string]error
}

// Service is the single writer of the alarm set. Every mutation, every fire
// and every trigger transition runs under mu, so the persisted set, the
// scheduler ledger and the controller always agree.
type Service struct {
	cfg       RuntimeConfig
	store     storage.AlarmStore
	port      scheduler.NotificationPort
	sched     *scheduler.AlarmScheduler
	ctrl      *trigger.Controller
	notifier  platform.Notifier
	now       func() time.Time
	newID     func() string
	watchPath string
	logger    *slog.Logger
	events    chan Event

	mu     sync.Mutex
	alarms []model.Alarm
	loaded bool
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if opts.Audio == nil {
		return nil, errors.New("app: audio port is required")
	}
	s := &Service{
		cfg:       opts.Config,
		store:     opts.Store,
		port:      opts.Port,
		notifier:  opts.Notifier,
		now:       opts.Clock,
		newID:     opts.NewID,
		watchPath: opts.WatchPath,
		logger:    opts.Logger,
		events:    make(chan Event, eventBuffer),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "service")
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.notifier == nil {
		s.notifier = platform.NoopNotifier{}
	}
	if s.port == nil {
		s.port = scheduler.NewEngine(s.cfg.SchedulerBuffer)
	}
	gate := opts.Gate
	if gate == nil {
		gate = trigger.NewBoard(trigger.BoardConfig{})
	}

	sched, err := scheduler.NewAlarmScheduler(scheduler.Config{
		Port:           s.port,
		Lookup:         s.lookupLocked,
		Ringer:         ringer{s},
		Clock:          s.now,
		LateFireWindow: s.cfg.LateFireWindow,
		Missed:         s.missedLocked,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	ctrl, err := trigger.NewController(trigger.ControllerConfig{
		Audio:     opts.Audio,
		Gate:      gate,
		Scheduler: sched,
		Hooks: trigger.Hooks{
			Started: s.started,
			Ended:   s.endedLocked,
		},
		Clock:               s.now,
		MissionFailureGrace: s.cfg.MissionFailureGrace,
		Logger:              opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.sched = sched
	s.ctrl = ctrl
	return s, nil
}

// ringer defers to the controller, which is built after the scheduler.
type ringer struct{ s *Service }

func (r ringer) IsActive(alarmID string) bool { return r.s.ctrl.IsActive(alarmID) }

func (r ringer) Ring(ctx context.Context, alarm model.Alarm, ev model.FireEvent) error {
	return r.s.ctrl.Ring(ctx, alarm, ev)
}

func (s *Service) Events() <-chan Event { return s.events }

// Load reads the persisted set and brings registrations in line with it.
func (s *Service) Load(ctx context.Context) error {
	alarms, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load alarms: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms = alarms
	s.loaded = true
	s.reconcileLocked()
	return nil
}

// Resume re-registers anything missing and rings whatever fell due while the
// process was not listening.
func (s *Service) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcileLocked()
	if err := s.sched.Poll(ctx, s.now()); err != nil {
		s.logger.Warn("resume poll failed", "error", err)
	}
	return nil
}

// Reload re-reads the store after an external edit. Alarms that disappeared
// or were deactivated stop ringing; alarms whose schedule changed are
// re-armed.
func (s *Service) Reload(ctx context.Context) error {
	alarms, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("reload alarms: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]model.Alarm, len(alarms))
	for _, a := range alarms {
		fresh[a.ID] = a
	}
	for _, old := range s.alarms {
		a, ok := fresh[old.ID]
		switch {
		case !ok || !a.IsActive:
			s.ctrl.Abort(ctx, old.ID)
		case !sameSchedule(old, a):
			s.ctrl.Abort(ctx, old.ID)
			s.rescheduleLocked(a)
		}
	}
	s.alarms = alarms
	s.loaded = true
	s.reconcileLocked()
	s.emit(Event{Kind: EventReloaded, At: s.now(), Message: fmt.Sprintf("%d alarms", len(alarms))})
	return nil
}

func (s *Service) List() []model.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.alarms)
}

func (s *Service) Get(id string) (model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Alarm{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.alarms[i].Clone(), nil
}

// Create persists a new alarm and arms it. An empty id is assigned. A
// scheduling failure does not fail the call; it shows up in Status.
func (s *Service) Create(ctx context.Context, a model.Alarm) (model.Alarm, error) {
	a = model.Normalize(a)
	if a.ID == "" {
		a.ID = s.newID()
	}
	if err := a.Validate(); err != nil {
		return model.Alarm{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(a.ID) >= 0 {
		return model.Alarm{}, fmt.Errorf("%w: %s", ErrExists, a.ID)
	}
	next := append(cloneAll(s.alarms), a)
	if err := s.saveLocked(ctx, next); err != nil {
		return model.Alarm{}, err
	}
	s.logger.Info("alarm created", "alarm_id", a.ID, "time", a.Time, "repeat", a.RepeatDays)
	s.rescheduleLocked(a)
	return a.Clone(), nil
}

// Update replaces an alarm. Any episode, queued fire or snooze of the old
// version ends.
func (s *Service) Update(ctx context.Context, a model.Alarm) (model.Alarm, error) {
	a = model.Normalize(a)
	if err := a.Validate(); err != nil {
		return model.Alarm{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(a.ID)
	if i < 0 {
		return model.Alarm{}, fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	next := cloneAll(s.alarms)
	next[i] = a
	if err := s.saveLocked(ctx, next); err != nil {
		return model.Alarm{}, err
	}
	s.logger.Info("alarm updated", "alarm_id", a.ID, "active", a.IsActive)
	s.ctrl.Abort(ctx, a.ID)
	s.rescheduleLocked(a)
	return a.Clone(), nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (model.Alarm, error) {
	a, err := s.Get(id)
	if err != nil {
		return model.Alarm{}, err
	}
	a.IsActive = active
	return s.Update(ctx, a)
}

// Delete removes an alarm together with every registration and episode it
// owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := make([]model.Alarm, 0, len(s.alarms)-1)
	next = append(next, cloneAll(s.alarms[:i])...)
	next = append(next, cloneAll(s.alarms[i+1:])...)
	if err := s.saveLocked(ctx, next); err != nil {
		return err
	}
	s.logger.Info("alarm deleted", "alarm_id", id)
	s.ctrl.Abort(ctx, id)
	if err := s.sched.Cancel(id); err != nil {
		s.logger.Warn("cancel registrations failed", "alarm_id", id, "error", err)
	}
	return nil
}

func (s *Service) Dismiss(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Dismiss(ctx)
}

func (s *Service) Snooze(ctx context.Context) (trigger.SnoozeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Snooze(ctx)
}

func (s *Service) SubmitMission(answer string) (trigger.MissionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.SubmitMission(answer)
}

// SkipMission gives up on the current round. Dismissal becomes possible once
// the mission failure grace has passed.
func (s *Service) SkipMission() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.ReportMissionFailure(trigger.ErrMissionSkipped)
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Trigger:     s.ctrl.State(),
		Next:        make(map[string]scheduler.Registration, len(s.alarms)),
		Unscheduled: s.sched.Unscheduled(),
	}
	for _, a := range s.alarms {
		if r, ok := s.sched.NextFire(a.ID); ok {
			st.Next[a.ID] = r
		}
	}
	return st
}

// Run serves fires until ctx is done: engine deliveries, the poll backstop,
// the optional store watcher and the optional metrics endpoint.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		if err := s.Load(ctx); err != nil {
			return err
		}
	}
	if lc, ok := s.port.(interface {
		Start()
		Stop()
	}); ok {
		lc.Start()
		defer lc.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.deliver(gctx) })
	g.Go(func() error {
		return scheduler.NewPoller(s.cfg.PollInterval, s.poll, s.logger).OnResume(s.resume).Run(gctx)
	})
	if s.watchPath != "" {
		w, err := storage.NewWatcher(s.watchPath, func() {
			if err := s.Reload(gctx); err != nil {
				s.logger.Warn("reload after external edit failed", "error", err)
				s.emit(Event{Kind: EventWarning, At: s.now(), Message: err.Error()})
			}
		}, s.logger)
		if err != nil {
			return fmt.Errorf("watch store: %w", err)
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	if s.cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, s.cfg.MetricsAddr, s.logger) })
	}
	s.logger.Info("alarm service running", "alarms", len(s.List()), "poll_interval", s.cfg.PollInterval)
	return g.Wait()
}

func (s *Service) deliver(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-s.port.C():
			if !ok {
				return nil
			}
			s.handleDelivery(ctx, d, scheduler.SourceEngine)
		}
	}
}

func (s *Service) handleDelivery(ctx context.Context, d scheduler.Delivery, source scheduler.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sched.OnFired(ctx, d, source); err != nil {
		s.logger.Warn("fire handling failed", "alarm_id", d.Tag.AlarmID, "source", source, "error", err)
	}
}

// poll is the poller's regular pass. Alarms left unscheduled by an earlier
// port failure are retried first.
func (s *Service) poll(ctx context.Context, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sched.Unscheduled()) > 0 {
		// still failing alarms stay listed in Status; no repeated warning
		if err := s.sched.Reconcile(cloneAll(s.alarms)); err != nil {
			s.logger.Debug("unscheduled alarms still failing", "error", err)
		}
	}
	return s.sched.Poll(ctx, s.now())
}

// resume is the poller's pass after the wall clock jumped, typically a
// system wake.
func (s *Service) resume(ctx context.Context, _ time.Time) error {
	return s.Resume(ctx)
}

// lookupLocked is called by the scheduler from OnFired, which the service
// only invokes with mu held.
func (s *Service) lookupLocked(id string) (model.Alarm, bool) {
	i := s.indexLocked(id)
	if i < 0 {
		return model.Alarm{}, false
	}
	return s.alarms[i].Clone(), true
}

func (s *Service) started(alarm model.Alarm, ev model.FireEvent) {
	s.emit(Event{Kind: EventRinging, AlarmID: alarm.ID, At: s.now()})
	if !s.cfg.DesktopNotifications {
		return
	}
	if err := s.notifier.Send(platform.AlarmNotification(alarm, ev)); err != nil {
		s.logger.Warn("desktop notification failed", "alarm_id", alarm.ID, "error", err)
	}
}

// endedLocked runs inside Dismiss or Snooze, both entered with mu held. A
// one-shot alarm is done once its episode ends for good.
func (s *Service) endedLocked(ctx context.Context, alarm model.Alarm, outcome trigger.Outcome) error {
	s.emit(Event{Kind: EventEnded, AlarmID: alarm.ID, At: s.now(), Outcome: outcome})
	if !outcome.Ended() || alarm.IsRepeating() {
		return nil
	}
	return s.completeOneShotLocked(ctx, alarm.ID, string(outcome))
}

// missedLocked runs from OnFired with mu held. The occurrence is over: any
// snooze state it carried is dropped, a one-shot alarm is completed and a
// repeating alarm keeps its next slots.
func (s *Service) missedLocked(ctx context.Context, alarm model.Alarm, ev model.FireEvent) error {
	s.emit(Event{
		Kind:    EventMissed,
		AlarmID: ev.AlarmID,
		At:      s.now(),
		Message: "missed " + ev.ScheduledAt.Format("Mon 15:04"),
	})
	if !s.ctrl.IsActive(alarm.ID) {
		s.ctrl.Abort(ctx, alarm.ID)
	}
	if alarm.IsRepeating() {
		return s.sched.EnsureNext(alarm)
	}
	return s.completeOneShotLocked(ctx, alarm.ID, "missed")
}

func (s *Service) completeOneShotLocked(ctx context.Context, id, reason string) error {
	i := s.indexLocked(id)
	if i < 0 || !s.alarms[i].IsActive {
		return nil
	}
	next := cloneAll(s.alarms)
	next[i].IsActive = false
	if err := s.saveLocked(ctx, next); err != nil {
		return fmt.Errorf("deactivate one-shot alarm %s: %w", id, err)
	}
	s.logger.Info("one-shot alarm completed", "alarm_id", id, "reason", reason)
	return s.sched.Cancel(id)
}

func (s *Service) rescheduleLocked(a model.Alarm) {
	if err := s.sched.Reschedule(a); err != nil {
		s.logger.Warn("alarm left unscheduled", "alarm_id", a.ID, "error", err)
		s.emit(Event{Kind: EventWarning, AlarmID: a.ID, At: s.now(), Message: err.Error()})
	}
}

func (s *Service) reconcileLocked() {
	if err := s.sched.Reconcile(cloneAll(s.alarms)); err != nil {
		s.logger.Warn("reconcile left alarms unscheduled", "error", err)
		s.emit(Event{Kind: EventWarning, At: s.now(), Message: err.Error()})
	}
}

func (s *Service) saveLocked(ctx context.Context, next []model.Alarm) error {
	if err := s.store.SaveAll(ctx, next); err != nil {
		return fmt.Errorf("save alarms: %w", err)
	}
	s.alarms = next
	return nil
}

func (s *Service) indexLocked(id string) int {
	for i := range s.alarms {
		if s.alarms[i].ID == id {
			return i
		}
	}
	return -1
}

// emit never blocks; a front-end that falls behind loses events, not fires.
func (s *Service) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("event dropped", "kind", ev.Kind, "alarm_id", ev.AlarmID)
	}
}

func sameSchedule(a, b model.Alarm) bool {
	return a.Time == b.Time && a.RepeatDays == b.RepeatDays && a.IsActive == b.IsActive
}

func cloneAll(in []model.Alarm) []model.Alarm {
	out := make([]model.Alarm, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("metrics endpoint listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
