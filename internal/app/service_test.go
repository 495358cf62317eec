package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/alarmd/internal/model"
	"github.com/sandeepkv93/alarmd/internal/platform"
	"github.com/sandeepkv93/alarmd/internal/scheduler"
	"github.com/sandeepkv93/alarmd/internal/storage"
	"github.com/sandeepkv93/alarmd/internal/trigger"
)

// Monday 2026-02-09.
var mondayMorning = time.Date(2026, 2, 9, 7, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakePort struct {
	mu   sync.Mutex
	seq  int
	live map[scheduler.Handle]scheduler.Tag
	fail error
	ch   chan scheduler.Delivery
}

func newFakePort() *fakePort {
	return &fakePort{live: make(map[scheduler.Handle]scheduler.Tag), ch: make(chan scheduler.Delivery, 8)}
}

func (p *fakePort) ScheduleAt(at time.Time, tag scheduler.Tag) (scheduler.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", p.fail
	}
	p.seq++
	h := scheduler.Handle(fmt.Sprintf("h%d", p.seq))
	p.live[h] = tag
	return h, nil
}

func (p *fakePort) Cancel(h scheduler.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[h]; !ok {
		return scheduler.ErrNotRegistered
	}
	delete(p.live, h)
	return nil
}

func (p *fakePort) C() <-chan scheduler.Delivery { return p.ch }

func (p *fakePort) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *fakePort) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

type fakeAudio struct {
	mu      sync.Mutex
	playing string
	starts  int
}

func (a *fakeAudio) Start(track string, volume int, loop bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = track
	a.starts++
	return nil
}

func (a *fakeAudio) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = ""
}

func (a *fakeAudio) isPlaying() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing != ""
}

type memStore struct {
	mu       sync.Mutex
	alarms   []model.Alarm
	failSave error
}

func (m *memStore) LoadAll(context.Context) ([]model.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.alarms), nil
}

func (m *memStore) SaveAll(_ context.Context, alarms []model.Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.alarms = cloneAll(alarms)
	return nil
}

func (m *memStore) Close() error { return nil }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []platform.Notification
}

func (n *recordingNotifier) Send(note platform.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

type harness struct {
	svc      *Service
	store    storage.AlarmStore
	port     *fakePort
	audio    *fakeAudio
	clock    *testClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, store storage.AlarmStore) *harness {
	t.Helper()
	h := &harness{
		store:    store,
		port:     newFakePort(),
		audio:    &fakeAudio{},
		clock:    &testClock{t: mondayMorning},
		notifier: &recordingNotifier{},
	}
	cfg := DefaultRuntimeConfig()
	cfg.DesktopNotifications = true
	ids := 0
	svc, err := NewService(Options{
		Config:   cfg,
		Store:    store,
		Port:     h.port,
		Audio:    h.audio,
		Gate:     trigger.NewBoard(trigger.BoardConfig{Rand: rand.New(rand.NewPCG(1, 2))}),
		Notifier: h.notifier,
		Clock:    h.clock.Now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("alarm-%d", ids)
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Load(t.Context()))
	h.svc = svc
	return h
}

// fireAt moves the clock and runs one poll pass.
func (h *harness) fireAt(t *testing.T, at time.Time) {
	t.Helper()
	h.clock.Set(at)
	require.NoError(t, h.svc.poll(t.Context(), at))
}

func wakeAt(hour, minute int, days ...time.Weekday) model.Alarm {
	return model.Alarm{
		Time:       model.TimeOfDay{Hour: hour, Minute: minute},
		Label:      "wake",
		IsActive:   true,
		RepeatDays: model.NewWeekdays(days...),
		Volume:     model.DefaultVolume,
	}
}

func drainEvents(s *Service) []Event {
	var out []Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCreatePersistsAndSchedules(t *testing.T) {
	store := &memStore{}
	h := newHarness(t, store)

	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday, time.Wednesday))
	require.NoError(t, err)
	require.Equal(t, "alarm-1", a.ID)
	require.Equal(t, model.DefaultSoundName, a.SoundName)

	persisted, err := store.LoadAll(t.Context())
	require.NoError(t, err)
	require.Len(t, persisted, 1)

	next, ok := h.svc.Status().Next[a.ID]
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC), next.ScheduledAt)
	require.Equal(t, 2, h.port.count())
}

func TestCreateRejectsInvalidAlarm(t *testing.T) {
	store := &memStore{}
	h := newHarness(t, store)

	_, err := h.svc.Create(t.Context(), wakeAt(25, 0))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Empty(t, h.svc.List())
	require.Zero(t, h.port.count())
}

func TestCreateDuplicateID(t *testing.T) {
	h := newHarness(t, &memStore{})
	a := wakeAt(6, 30)
	a.ID = "fixed"
	_, err := h.svc.Create(t.Context(), a)
	require.NoError(t, err)
	_, err = h.svc.Create(t.Context(), a)
	require.ErrorIs(t, err, ErrExists)
}

func TestSaveFailureLeavesStateUntouched(t *testing.T) {
	store := &memStore{failSave: storage.ErrUnavailable}
	h := newHarness(t, store)

	_, err := h.svc.Create(t.Context(), wakeAt(8, 0))
	require.ErrorIs(t, err, storage.ErrUnavailable)
	require.Empty(t, h.svc.List())
	require.Zero(t, h.port.count())
}

func TestSchedulingFailureIsAWarning(t *testing.T) {
	h := newHarness(t, &memStore{})
	h.port.setFail(errors.New("port down"))

	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday))
	require.NoError(t, err)
	require.Contains(t, h.svc.Status().Unscheduled, a.ID)

	events := drainEvents(h.svc)
	require.NotEmpty(t, events)
	require.Equal(t, EventWarning, events[len(events)-1].Kind)

	h.port.setFail(nil)
	require.NoError(t, h.svc.Resume(t.Context()))
	st := h.svc.Status()
	require.NotContains(t, st.Unscheduled, a.ID)
	require.Contains(t, st.Next, a.ID)
}

func TestGetUnknownAlarm(t *testing.T) {
	h := newHarness(t, &memStore{})
	_, err := h.svc.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, h.svc.Delete(t.Context(), "nope"), ErrNotFound)
	_, err = h.svc.SetActive(t.Context(), "nope", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOneShotDismissDeactivates(t *testing.T) {
	store := &memStore{}
	h := newHarness(t, store)
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0))
	require.NoError(t, err)

	h.fireAt(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))
	st := h.svc.Status()
	require.Equal(t, trigger.StateRinging, st.Trigger.State)
	require.Equal(t, a.ID, st.Trigger.Alarm.ID)
	require.True(t, h.audio.isPlaying())
	require.Len(t, h.notifier.sent, 1)

	require.NoError(t, h.svc.Dismiss(t.Context()))
	require.False(t, h.audio.isPlaying())

	got, err := h.svc.Get(a.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	persisted, err := store.LoadAll(t.Context())
	require.NoError(t, err)
	require.False(t, persisted[0].IsActive)
	require.Zero(t, h.port.count())

	kinds := []EventKind{}
	for _, ev := range drainEvents(h.svc) {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []EventKind{EventRinging, EventEnded}, kinds)
}

func TestRepeatingDismissStaysArmed(t *testing.T) {
	h := newHarness(t, &memStore{})
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday))
	require.NoError(t, err)

	h.fireAt(t, time.Date(2026, 2, 9, 8, 0, 30, 0, time.UTC))
	require.NoError(t, h.svc.Dismiss(t.Context()))

	got, err := h.svc.Get(a.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)
	next := h.svc.Status().Next[a.ID]
	require.Equal(t, time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC), next.ScheduledAt)
	require.Equal(t, model.OccurrenceNormal, next.Kind)
}

func TestSnoozeRingsAgain(t *testing.T) {
	h := newHarness(t, &memStore{})
	wake := wakeAt(8, 0, time.Monday)
	wake.SnoozeEnabled = true
	a, err := h.svc.Create(t.Context(), wake)
	require.NoError(t, err)

	h.fireAt(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))
	res, err := h.svc.Snooze(t.Context())
	require.NoError(t, err)
	require.True(t, res.Snoozed)
	require.Equal(t, 1, res.Count)
	require.Equal(t, time.Date(2026, 2, 9, 8, 5, 0, 0, time.UTC), res.Until)

	st := h.svc.Status()
	require.Equal(t, trigger.StateIdle, st.Trigger.State)
	require.Equal(t, model.OccurrenceSnooze, st.Next[a.ID].Kind)

	h.fireAt(t, res.Until)
	st = h.svc.Status()
	require.Equal(t, trigger.StateRinging, st.Trigger.State)
	require.Equal(t, model.OccurrenceSnooze, st.Trigger.Event.Kind)
	require.Equal(t, 1, st.Trigger.Alarm.CurrentSnoozeCount)
}

func TestDeleteWhileRinging(t *testing.T) {
	h := newHarness(t, &memStore{})
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday))
	require.NoError(t, err)
	h.fireAt(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))
	require.True(t, h.audio.isPlaying())

	require.NoError(t, h.svc.Delete(t.Context(), a.ID))
	require.False(t, h.audio.isPlaying())
	require.Equal(t, trigger.StateIdle, h.svc.Status().Trigger.State)
	require.Zero(t, h.port.count())
	require.ErrorIs(t, h.svc.Dismiss(t.Context()), trigger.ErrNotRinging)
}

func TestDeactivateCancelsRegistrations(t *testing.T) {
	h := newHarness(t, &memStore{})
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday, time.Tuesday))
	require.NoError(t, err)
	require.Equal(t, 2, h.port.count())

	got, err := h.svc.SetActive(t.Context(), a.ID, false)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.Zero(t, h.port.count())

	_, err = h.svc.SetActive(t.Context(), a.ID, true)
	require.NoError(t, err)
	require.Equal(t, 2, h.port.count())
}

func TestMissedOccurrenceIsReported(t *testing.T) {
	h := newHarness(t, &memStore{})
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday))
	require.NoError(t, err)

	h.fireAt(t, time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC))
	require.Equal(t, trigger.StateIdle, h.svc.Status().Trigger.State)

	var missed []Event
	for _, ev := range drainEvents(h.svc) {
		if ev.Kind == EventMissed {
			missed = append(missed, ev)
		}
	}
	require.Len(t, missed, 1)
	require.Equal(t, a.ID, missed[0].AlarmID)
	require.Equal(t, time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC), h.svc.Status().Next[a.ID].ScheduledAt)
}

func TestMissedOneShotIsCompleted(t *testing.T) {
	store := &memStore{}
	h := newHarness(t, store)
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0))
	require.NoError(t, err)

	h.fireAt(t, time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC))

	got, err := h.svc.Get(a.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.False(t, store.alarms[0].IsActive)
	require.Zero(t, h.port.count())
	st := h.svc.Status()
	require.NotContains(t, st.Next, a.ID)
	require.NotContains(t, st.Unscheduled, a.ID)

	// A day later nothing comes back to life.
	h.fireAt(t, time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC))
	require.Equal(t, trigger.StateIdle, h.svc.Status().Trigger.State)
	require.Zero(t, h.port.count())
}

func TestMissedSnoozeClearsSnoozeState(t *testing.T) {
	cases := []struct {
		name       string
		days       []time.Weekday
		wantActive bool
		wantPorts  int
	}{
		{name: "one-shot", wantActive: false, wantPorts: 0},
		{name: "repeating", days: []time.Weekday{time.Monday}, wantActive: true, wantPorts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &memStore{})
			wake := wakeAt(8, 0, tc.days...)
			wake.SnoozeEnabled = true
			a, err := h.svc.Create(t.Context(), wake)
			require.NoError(t, err)

			h.fireAt(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))
			res, err := h.svc.Snooze(t.Context())
			require.NoError(t, err)
			require.True(t, res.Snoozed)
			require.Contains(t, h.svc.Status().Trigger.Snoozed, a.ID)

			h.fireAt(t, time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC))

			st := h.svc.Status()
			require.Equal(t, trigger.StateIdle, st.Trigger.State)
			require.Empty(t, st.Trigger.Snoozed)
			got, err := h.svc.Get(a.ID)
			require.NoError(t, err)
			require.Equal(t, tc.wantActive, got.IsActive)
			require.Equal(t, tc.wantPorts, h.port.count())
			if tc.wantActive {
				require.Equal(t, model.OccurrenceNormal, st.Next[a.ID].Kind)
				require.Equal(t, time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC), st.Next[a.ID].ScheduledAt)
			}
		})
	}
}

func TestPollRetriesUnscheduledAlarms(t *testing.T) {
	h := newHarness(t, &memStore{})
	h.port.setFail(errors.New("port down"))
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday))
	require.NoError(t, err)

	h.fireAt(t, mondayMorning.Add(30*time.Second))
	require.Contains(t, h.svc.Status().Unscheduled, a.ID)

	h.port.setFail(nil)
	h.fireAt(t, mondayMorning.Add(time.Minute))
	st := h.svc.Status()
	require.NotContains(t, st.Unscheduled, a.ID)
	require.Equal(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC), st.Next[a.ID].ScheduledAt)
	require.Equal(t, 1, h.port.count())
}

func TestSkippedMissionFallsBackAfterGrace(t *testing.T) {
	h := newHarness(t, &memStore{})
	wake := wakeAt(8, 0, time.Monday)
	wake.MissionEnabled = true
	_, err := h.svc.Create(t.Context(), wake)
	require.NoError(t, err)
	h.fireAt(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))

	require.ErrorIs(t, h.svc.Dismiss(t.Context()), trigger.ErrMissionsPending)
	require.NoError(t, h.svc.SkipMission())

	var gateErr *trigger.MissionGateError
	require.ErrorAs(t, h.svc.Dismiss(t.Context()), &gateErr)
	require.Equal(t, trigger.StateRinging, h.svc.Status().Trigger.State)

	h.clock.Advance(DefaultRuntimeConfig().MissionFailureGrace + time.Second)
	require.NoError(t, h.svc.Dismiss(t.Context()))

	var outcome trigger.Outcome
	for _, ev := range drainEvents(h.svc) {
		if ev.Kind == EventEnded {
			outcome = ev.Outcome
		}
	}
	require.Equal(t, trigger.OutcomeMissionFallback, outcome)
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.json")
	store, err := storage.NewFileStore(path, nil)
	require.NoError(t, err)
	h := newHarness(t, store)

	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday))
	require.NoError(t, err)
	b, err := h.svc.Create(t.Context(), wakeAt(9, 0, time.Monday))
	require.NoError(t, err)

	other, err := storage.NewFileStore(path, nil)
	require.NoError(t, err)
	edited := []model.Alarm{b}
	edited[0].Time = model.TimeOfDay{Hour: 10, Minute: 15}
	require.NoError(t, other.SaveAll(t.Context(), edited))

	require.NoError(t, h.svc.Reload(t.Context()))
	list := h.svc.List()
	require.Len(t, list, 1)
	require.Equal(t, b.ID, list[0].ID)

	st := h.svc.Status()
	require.NotContains(t, st.Next, a.ID)
	require.Equal(t, time.Date(2026, 2, 9, 10, 15, 0, 0, time.UTC), st.Next[b.ID].ScheduledAt)
	require.Equal(t, 1, h.port.count())
}

func TestRunDeliversEngineFires(t *testing.T) {
	h := newHarness(t, &memStore{})
	a, err := h.svc.Create(t.Context(), wakeAt(8, 0, time.Monday))
	require.NoError(t, err)
	reg := h.svc.Status().Next[a.ID]

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- h.svc.Run(ctx) }()

	h.clock.Set(reg.ScheduledAt)
	h.port.ch <- scheduler.Delivery{
		Handle:  reg.Handle,
		Tag:     scheduler.Tag{AlarmID: a.ID, Kind: reg.Kind, ScheduledAt: reg.ScheduledAt},
		FiredAt: reg.ScheduledAt,
	}
	require.Eventually(t, func() bool {
		return h.svc.Status().Trigger.State == trigger.StateRinging
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
