package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/sandeepkv93/alarmd/internal/app"
	"github.com/sandeepkv93/alarmd/internal/model"
	"github.com/sandeepkv93/alarmd/internal/trigger"
	"github.com/sandeepkv93/alarmd/internal/views"
)

const refreshInterval = time.Second

// Backend is the part of app.Service the front-end drives.
type Backend interface {
	List() []model.Alarm
	Status() app.Status
	Create(ctx context.Context, a model.Alarm) (model.Alarm, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (model.Alarm, error)
	Dismiss(ctx context.Context) error
	Snooze(ctx context.Context) (trigger.SnoozeResult, error)
	SubmitMission(answer string) (trigger.MissionProgress, error)
	SkipMission() error
	Events() <-chan app.Event
}

var _ Backend = (*app.Service)(nil)

type StatusBar struct {
	Text    string
	IsError bool
}

type KeyMap struct {
	Help string
	Quit string
}

type PaletteState struct {
	Active bool
	Input  string
}

type Model struct {
	Alarms      []model.Alarm
	Runtime     app.Status
	Cursor      int
	Palette     PaletteState
	Answering   bool
	HelpVisible bool
	Status      StatusBar
	LastEvent   *app.Event
	Keys        KeyMap
	Quitting    bool

	backend      Backend
	ctx          context.Context
	now          func() time.Time
	alarmTable   table.Model
	commandInput textinput.Model
	answerInput  textinput.Model
	helpModel    help.Model
	missionBar   progress.Model
	ringSpinner  spinner.Model
}

type EventMsg struct {
	Event app.Event
}

type RefreshMsg struct{}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type AppErrorMsg struct {
	Err error
}

func NewModel(ctx context.Context, backend Backend) Model {
	m := Model{
		backend: backend,
		ctx:     ctx,
		now:     time.Now,
		Keys:    KeyMap{Help: "?", Quit: "q"},
	}
	m.initBubbleComponents()
	m.refresh()
	return m
}

func (m *Model) initBubbleComponents() {
	cols := []table.Column{
		{Title: "#", Width: 3},
		{Title: "Time", Width: 6},
		{Title: "Days", Width: 14},
		{Title: "Label", Width: 16},
		{Title: "On", Width: 3},
		{Title: "Next", Width: 12},
	}
	m.alarmTable = table.New(table.WithColumns(cols), table.WithRows([]table.Row{}), table.WithFocused(true), table.WithHeight(10))

	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 48

	m.answerInput = textinput.New()
	m.answerInput.Prompt = "answer> "
	m.answerInput.CharLimit = 64
	m.answerInput.Width = 32

	m.helpModel = help.New()

	m.missionBar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(32))

	m.ringSpinner = spinner.New()
	m.ringSpinner.Spinner = spinner.Pulse
}

// refresh pulls the alarm set and runtime status from the backend.
func (m *Model) refresh() {
	if m.backend == nil {
		return
	}
	m.Alarms = m.backend.List()
	m.Runtime = m.backend.Status()
	if m.Cursor >= len(m.Alarms) {
		m.Cursor = len(m.Alarms) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if !m.ringing() {
		m.Answering = false
		m.answerInput.Blur()
		m.answerInput.SetValue("")
	}
	m.syncBubbleData()
}

func (m *Model) syncBubbleData() {
	rows := AlarmRows(m.Alarms, m.Runtime)
	tableRows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		on := "no"
		switch {
		case strings.HasPrefix(r.Flags, "snoozed"):
			on = "zz"
		case r.Active:
			on = "yes"
		}
		tableRows = append(tableRows, table.Row{fmt.Sprint(r.Position), r.Time, r.Days, r.Label, on, r.Next})
	}
	m.alarmTable.SetRows(tableRows)
	if len(tableRows) > 0 && m.Cursor < len(tableRows) {
		m.alarmTable.SetCursor(m.Cursor)
	}
	m.commandInput.SetValue(m.Palette.Input)
	if m.Palette.Active {
		m.commandInput.Focus()
	}
}

func (m Model) ringing() bool {
	return m.Runtime.Trigger.State == trigger.StateRinging
}

func (m Model) selected() (model.Alarm, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Alarms) {
		return model.Alarm{}, false
	}
	return m.Alarms[m.Cursor], true
}

// AlarmRows shapes alarms for display, numbered from 1 in list order.
func AlarmRows(alarms []model.Alarm, st app.Status) []views.AlarmRowData {
	out := make([]views.AlarmRowData, 0, len(alarms))
	for i, a := range alarms {
		next := "-"
		if r, ok := st.Next[a.ID]; ok {
			next = r.ScheduledAt.Format("Mon 15:04")
		}
		if _, ok := st.Unscheduled[a.ID]; ok {
			next = "unscheduled"
		}
		label := a.Label
		if label == "" {
			label = "(no label)"
		}
		flags := policyFlags(a)
		if until, ok := st.Trigger.Snoozed[a.ID]; ok {
			flags = strings.TrimSuffix("snoozed until "+until.Format("15:04")+"; "+flags, "; ")
		}
		out = append(out, views.AlarmRowData{
			Position: i + 1,
			ID:       a.ID,
			Time:     a.Time.String(),
			Days:     a.RepeatDays.String(),
			Label:    label,
			Active:   a.IsActive,
			Next:     next,
			Flags:    flags,
		})
	}
	return out
}

func policyFlags(a model.Alarm) string {
	var parts []string
	if a.SnoozeEnabled {
		limit := fmt.Sprint(a.MaxSnoozes)
		if a.SnoozeUnlimited() {
			limit = "unlimited"
		}
		parts = append(parts, fmt.Sprintf("snooze %dm x%s", a.SnoozeDurationMinutes, limit))
	}
	if a.MissionEnabled {
		kinds := make([]string, 0, len(a.SelectedMissions))
		for _, k := range a.SelectedMissions {
			kinds = append(kinds, string(k))
		}
		parts = append(parts, fmt.Sprintf("%d mission(s): %s", a.MissionCount, strings.Join(kinds, ",")))
	}
	return strings.Join(parts, "; ")
}

func upcoming(alarms []model.Alarm, st app.Status) []views.UpcomingData {
	labels := make(map[string]string, len(alarms))
	for _, a := range alarms {
		labels[a.ID] = a.Time.String() + " " + a.Label
	}
	out := make([]views.UpcomingData, 0, len(st.Next))
	type entry struct {
		at   time.Time
		data views.UpcomingData
	}
	entries := make([]entry, 0, len(st.Next))
	for id, r := range st.Next {
		entries = append(entries, entry{at: r.ScheduledAt, data: views.UpcomingData{
			Label: strings.TrimSpace(labels[id]),
			When:  r.ScheduledAt.Format("Mon 15:04"),
			Kind:  string(r.Kind),
		}})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	for _, e := range entries {
		out = append(out, e.data)
	}
	return out
}
