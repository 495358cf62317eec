package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/alarmd/internal/app"
	"github.com/sandeepkv93/alarmd/internal/model"
	"github.com/sandeepkv93/alarmd/internal/scheduler"
	"github.com/sandeepkv93/alarmd/internal/trigger"
)

type fakeBackend struct {
	alarms     []model.Alarm
	status     app.Status
	events     chan app.Event
	dismissed  int
	snoozed    int
	answers    []string
	skipped    int
	dismissErr error
}

func newFakeBackend(alarms ...model.Alarm) *fakeBackend {
	return &fakeBackend{
		alarms: alarms,
		status: app.Status{Trigger: trigger.Snapshot{State: trigger.StateIdle}, Next: map[string]scheduler.Registration{}},
		events: make(chan app.Event, 4),
	}
}

func (f *fakeBackend) List() []model.Alarm { return append([]model.Alarm(nil), f.alarms...) }

func (f *fakeBackend) Status() app.Status { return f.status }

func (f *fakeBackend) Create(_ context.Context, a model.Alarm) (model.Alarm, error) {
	a = model.Normalize(a)
	a.ID = "new-1"
	f.alarms = append(f.alarms, a)
	return a, nil
}

func (f *fakeBackend) Delete(_ context.Context, id string) error {
	for i, a := range f.alarms {
		if a.ID == id {
			f.alarms = append(f.alarms[:i], f.alarms[i+1:]...)
			return nil
		}
	}
	return app.ErrNotFound
}

func (f *fakeBackend) SetActive(_ context.Context, id string, active bool) (model.Alarm, error) {
	for i := range f.alarms {
		if f.alarms[i].ID == id {
			f.alarms[i].IsActive = active
			return f.alarms[i], nil
		}
	}
	return model.Alarm{}, app.ErrNotFound
}

func (f *fakeBackend) Dismiss(context.Context) error {
	if f.dismissErr != nil {
		return f.dismissErr
	}
	f.dismissed++
	f.status.Trigger = trigger.Snapshot{State: trigger.StateIdle}
	return nil
}

func (f *fakeBackend) Snooze(context.Context) (trigger.SnoozeResult, error) {
	f.snoozed++
	f.status.Trigger = trigger.Snapshot{State: trigger.StateIdle}
	return trigger.SnoozeResult{Snoozed: true, Count: f.snoozed, Until: time.Date(2026, 2, 9, 7, 5, 0, 0, time.UTC)}, nil
}

func (f *fakeBackend) SubmitMission(answer string) (trigger.MissionProgress, error) {
	f.answers = append(f.answers, answer)
	return trigger.MissionProgress{Total: 1, Done: 1}, nil
}

func (f *fakeBackend) SkipMission() error {
	f.skipped++
	return nil
}

func (f *fakeBackend) Events() <-chan app.Event { return f.events }

func (f *fakeBackend) ring(a model.Alarm, missions int) {
	f.status.Trigger = trigger.Snapshot{
		State:        trigger.StateRinging,
		Alarm:        a,
		Event:        model.FireEvent{AlarmID: a.ID, Kind: model.OccurrenceNormal},
		RingingSince: time.Date(2026, 2, 9, 7, 0, 0, 0, time.UTC),
		Missions: trigger.MissionProgress{
			Total:   missions,
			Current: &trigger.MissionPrompt{Round: 1, Total: missions, Kind: model.MissionMath, Text: "Solve: 10 + 2 x 3"},
		},
	}
}

func sampleAlarm(id string, hour int) model.Alarm {
	return model.Alarm{ID: id, Time: model.TimeOfDay{Hour: hour}, Label: "wake", IsActive: true, Volume: 80}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeCommand(t *testing.T, m Model, input string) Model {
	t.Helper()
	updated, _ := m.Update(runes("/"))
	m = updated.(Model)
	if !m.Palette.Active {
		t.Fatal("expected palette to open")
	}
	updated, _ = m.Update(runes(input))
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model)
}

func TestNewModelLoadsAlarms(t *testing.T) {
	m := NewModel(t.Context(), newFakeBackend(sampleAlarm("a", 7), sampleAlarm("b", 8)))
	if len(m.Alarms) != 2 || m.Cursor != 0 {
		t.Fatalf("unexpected model: %+v", m.Alarms)
	}
	if m.Keys.Quit != "q" {
		t.Fatalf("expected quit key q, got %q", m.Keys.Quit)
	}
	if !strings.Contains(m.View(), "alarms: 2 (2 active)") {
		t.Fatalf("unexpected view:\n%s", m.View())
	}
}

func TestListKeysMoveAndToggle(t *testing.T) {
	backend := newFakeBackend(sampleAlarm("a", 7), sampleAlarm("b", 8))
	m := NewModel(t.Context(), backend)

	updated, _ := m.Update(runes("j"))
	m = updated.(Model)
	if m.Cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", m.Cursor)
	}
	updated, _ = m.Update(runes("t"))
	m = updated.(Model)
	if backend.alarms[1].IsActive {
		t.Fatal("expected second alarm to be toggled off")
	}
	if m.Status.Text != "08:00 off" {
		t.Fatalf("unexpected status: %q", m.Status.Text)
	}

	updated, _ = m.Update(runes("x"))
	m = updated.(Model)
	if len(backend.alarms) != 1 || m.Cursor != 0 {
		t.Fatalf("expected delete and cursor clamp, got %d alarms cursor %d", len(backend.alarms), m.Cursor)
	}
}

func TestPaletteAddCommand(t *testing.T) {
	backend := newFakeBackend()
	m := NewModel(t.Context(), backend)
	m = typeCommand(t, m, "add 06:45 weekdays gym")
	if m.Palette.Active {
		t.Fatal("palette should close after execute")
	}
	if len(backend.alarms) != 1 || backend.alarms[0].Label != "gym" {
		t.Fatalf("unexpected alarms: %+v", backend.alarms)
	}
	if !strings.HasPrefix(m.Status.Text, "added 06:45 weekdays") {
		t.Fatalf("unexpected status: %q", m.Status.Text)
	}
	if len(m.Alarms) != 1 {
		t.Fatal("model should refresh after a command")
	}
}

func TestPaletteReportsErrors(t *testing.T) {
	m := NewModel(t.Context(), newFakeBackend(sampleAlarm("a", 7)))
	m = typeCommand(t, m, "rm 5")
	if !m.Status.IsError || !strings.Contains(m.Status.Text, "no alarm at position 5") {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
	m = typeCommand(t, m, "launch")
	if !m.Status.IsError {
		t.Fatalf("expected parse error, got %+v", m.Status)
	}
}

func TestRingingKeys(t *testing.T) {
	wake := sampleAlarm("a", 7)
	backend := newFakeBackend(wake)
	backend.ring(wake, 0)
	m := NewModel(t.Context(), backend)
	if !strings.Contains(m.View(), "RINGING: 07:00 wake") {
		t.Fatalf("expected ringing panel:\n%s", m.View())
	}

	updated, _ := m.Update(runes("s"))
	m = updated.(Model)
	if backend.snoozed != 1 || !strings.Contains(m.Status.Text, "snoozed until 07:05") {
		t.Fatalf("unexpected snooze: %d %q", backend.snoozed, m.Status.Text)
	}

	backend.ring(wake, 0)
	backend.dismissErr = trigger.ErrMissionsPending
	m.refresh()
	updated, _ = m.Update(runes("d"))
	m = updated.(Model)
	if !m.Status.IsError || !errors.Is(backend.dismissErr, trigger.ErrMissionsPending) {
		t.Fatalf("expected dismiss error, got %+v", m.Status)
	}
	backend.dismissErr = nil
	updated, _ = m.Update(runes("d"))
	m = updated.(Model)
	if backend.dismissed != 1 || m.Status.Text != "dismissed" {
		t.Fatalf("unexpected dismiss: %d %q", backend.dismissed, m.Status.Text)
	}
}

func TestMissionAnswerInput(t *testing.T) {
	wake := sampleAlarm("a", 7)
	backend := newFakeBackend(wake)
	backend.ring(wake, 1)
	m := NewModel(t.Context(), backend)

	updated, _ := m.Update(runes("a"))
	m = updated.(Model)
	if !m.Answering {
		t.Fatal("expected answer mode")
	}
	updated, _ = m.Update(runes("16"))
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if len(backend.answers) != 1 || backend.answers[0] != "16" {
		t.Fatalf("unexpected answers: %v", backend.answers)
	}
	if m.Answering {
		t.Fatal("answer mode should end once missions are complete")
	}
	if !strings.Contains(m.Status.Text, "missions complete") {
		t.Fatalf("unexpected status: %q", m.Status.Text)
	}

	updated, _ = m.Update(runes("x"))
	m = updated.(Model)
	if backend.skipped != 1 {
		t.Fatal("expected skip")
	}
}

func TestEventMsgUpdatesStatus(t *testing.T) {
	backend := newFakeBackend(sampleAlarm("a", 7))
	m := NewModel(t.Context(), backend)
	updated, cmd := m.Update(EventMsg{Event: app.Event{Kind: app.EventEnded, AlarmID: "a", Outcome: trigger.OutcomeDismissed}})
	m = updated.(Model)
	if m.Status.Text != "dismissed: 07:00 wake" {
		t.Fatalf("unexpected status: %q", m.Status.Text)
	}
	if cmd == nil {
		t.Fatal("expected the model to keep listening for events")
	}

	updated, _ = m.Update(EventMsg{Event: app.Event{Kind: app.EventWarning, Message: "port down"}})
	m = updated.(Model)
	if !m.Status.IsError || m.Status.Text != "warning: port down" {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
}

func TestResolveTarget(t *testing.T) {
	alarms := []model.Alarm{sampleAlarm("abc-1", 7), sampleAlarm("abd-2", 8)}
	if a, err := resolveTarget(alarms, "2"); err != nil || a.ID != "abd-2" {
		t.Fatalf("position lookup failed: %v %v", a.ID, err)
	}
	if a, err := resolveTarget(alarms, "abc"); err != nil || a.ID != "abc-1" {
		t.Fatalf("prefix lookup failed: %v %v", a.ID, err)
	}
	if _, err := resolveTarget(alarms, "ab"); err == nil {
		t.Fatal("expected ambiguous prefix error")
	}
}

func TestQuitKey(t *testing.T) {
	m := NewModel(t.Context(), newFakeBackend())
	updated, cmd := m.Update(runes("q"))
	if !updated.(Model).Quitting || cmd == nil {
		t.Fatal("expected quit")
	}
}

func TestRingingSpinnerTicksOnlyWhileRinging(t *testing.T) {
	wake := sampleAlarm("a", 7)
	backend := newFakeBackend(wake)
	m := NewModel(t.Context(), backend)
	if _, cmd := m.Update(m.ringSpinner.Tick()); cmd != nil {
		t.Fatal("spinner should stay idle without a ringing alarm")
	}

	backend.ring(wake, 0)
	m.refresh()
	if _, cmd := m.Update(m.ringSpinner.Tick()); cmd == nil {
		t.Fatal("spinner should keep ticking while ringing")
	}
}

func TestAlarmRowsShowSnoozeState(t *testing.T) {
	wake := sampleAlarm("a", 7)
	st := app.Status{
		Trigger: trigger.Snapshot{State: trigger.StateIdle, Snoozed: map[string]time.Time{
			"a": time.Date(2026, 2, 9, 7, 5, 0, 0, time.UTC),
		}},
	}
	rows := AlarmRows([]model.Alarm{wake}, st)
	if !strings.HasPrefix(rows[0].Flags, "snoozed until 07:05") {
		t.Fatalf("expected snooze flag, got %q", rows[0].Flags)
	}

	rows = AlarmRows([]model.Alarm{wake}, app.Status{})
	if strings.Contains(rows[0].Flags, "snoozed") {
		t.Fatalf("unexpected snooze flag: %q", rows[0].Flags)
	}
}
