package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/alarmd/internal/app"
	"github.com/sandeepkv93/alarmd/internal/trigger"
	"github.com/sandeepkv93/alarmd/internal/views"
)

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{refreshCmd()}
	if m.backend != nil {
		cmds = append(cmds, waitForEventCmd(m.backend.Events()))
	}
	return tea.Batch(cmds...)
}

func waitForEventCmd(ch <-chan app.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}

func refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return RefreshMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			if typed.String() == m.Keys.Help {
				m.HelpVisible = !m.HelpVisible
				return m, nil
			}
			return m.handlePaletteKey(typed), nil
		}
		if m.Answering {
			return m.handleAnswerKey(typed), nil
		}
		keyStr := typed.String()
		switch keyStr {
		case "/":
			m.Palette.Active = true
			m.Palette.Input = ""
			m.commandInput.Focus()
			m.commandInput.SetValue("")
			m.Status = StatusBar{Text: "command palette active"}
			return m, nil
		case m.Keys.Help:
			m.HelpVisible = !m.HelpVisible
			return m, nil
		case "ctrl+c", m.Keys.Quit:
			m.Quitting = true
			return m, tea.Quit
		}
		if m.ringing() {
			return m.handleRingingKey(typed), nil
		}
		return m.handleListKey(typed), nil
	case EventMsg:
		ev := typed.Event
		m.LastEvent = &ev
		m.refresh()
		m.applyEvent(ev)
		var cmds []tea.Cmd
		if m.backend != nil {
			cmds = append(cmds, waitForEventCmd(m.backend.Events()))
		}
		if ev.Kind == app.EventRinging {
			cmds = append(cmds, m.ringSpinner.Tick)
		}
		return m, tea.Batch(cmds...)
	case spinner.TickMsg:
		// the spinner stops ticking once nothing rings
		if m.ringing() {
			var cmd tea.Cmd
			m.ringSpinner, cmd = m.ringSpinner.Update(typed)
			return m, cmd
		}
		return m, nil
	case RefreshMsg:
		m.refresh()
		return m, refreshCmd()
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case AppErrorMsg:
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) applyEvent(ev app.Event) {
	switch ev.Kind {
	case app.EventRinging:
		m.Status = StatusBar{Text: "alarm ringing: " + m.alarmName(ev.AlarmID)}
	case app.EventEnded:
		m.Status = StatusBar{Text: fmt.Sprintf("%s: %s", ev.Outcome, m.alarmName(ev.AlarmID))}
	case app.EventMissed:
		m.Status = StatusBar{Text: fmt.Sprintf("%s: %s", m.alarmName(ev.AlarmID), ev.Message), IsError: true}
	case app.EventWarning:
		m.Status = StatusBar{Text: "warning: " + ev.Message, IsError: true}
	case app.EventReloaded:
		m.Status = StatusBar{Text: "reloaded " + ev.Message}
	}
}

func (m Model) alarmName(id string) string {
	for _, a := range m.Alarms {
		if a.ID == id {
			if a.Label != "" {
				return a.Time.String() + " " + a.Label
			}
			return a.Time.String()
		}
	}
	return id
}

func (m Model) handleListKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "j", "down":
		if m.Cursor < len(m.Alarms)-1 {
			m.Cursor++
		}
	case "k", "up":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case " ", "t":
		a, ok := m.selected()
		if !ok {
			return m
		}
		updated, err := m.backend.SetActive(m.ctx, a.ID, !a.IsActive)
		m = m.report(err, fmt.Sprintf("%s %s", updated.Time, onOff(updated.IsActive)))
	case "x", "delete":
		a, ok := m.selected()
		if !ok {
			return m
		}
		m = m.report(m.backend.Delete(m.ctx, a.ID), "deleted "+a.Time.String())
	}
	m.refresh()
	return m
}

func (m Model) handleRingingKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "s":
		res, err := m.backend.Snooze(m.ctx)
		m = m.report(err, describeSnooze(res))
	case "d":
		m = m.report(m.backend.Dismiss(m.ctx), "dismissed")
	case "a", "enter":
		if m.Runtime.Trigger.Missions.Total == 0 {
			return m
		}
		m.Answering = true
		m.answerInput.SetValue("")
		m.answerInput.Focus()
	case "x":
		m = m.report(m.backend.SkipMission(), "mission skipped, dismiss unlocks after the grace period")
	}
	m.refresh()
	return m
}

func (m Model) handleAnswerKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "esc":
		m.Answering = false
		m.answerInput.Blur()
		m.answerInput.SetValue("")
		return m
	case "enter":
		answer := m.answerInput.Value()
		m.answerInput.SetValue("")
		progress, err := m.backend.SubmitMission(answer)
		m = m.report(err, describeProgress(progress))
		if progress.Complete() || err != nil {
			m.Answering = false
			m.answerInput.Blur()
		}
		m.refresh()
		return m
	}
	if msg.Type == tea.KeyRunes {
		m.answerInput.SetValue(m.answerInput.Value() + string(msg.Runes))
		return m
	}
	var cmd tea.Cmd
	m.answerInput, cmd = m.answerInput.Update(msg)
	_ = cmd
	return m
}

func (m Model) report(err error, ok string) Model {
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m
	}
	m.Status = StatusBar{Text: ok}
	return m
}

func describeSnooze(res trigger.SnoozeResult) string {
	if res.ForcedDismiss {
		return "snooze limit reached, alarm dismissed"
	}
	return fmt.Sprintf("snoozed until %s (%d so far)", res.Until.Format("15:04"), res.Count)
}

func describeProgress(p trigger.MissionProgress) string {
	if p.Complete() {
		return "missions complete, press d to dismiss"
	}
	return fmt.Sprintf("missions %d/%d done", p.Done, p.Total)
}

func onOff(active bool) string {
	if active {
		return "on"
	}
	return "off"
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = fmt.Sprintf("status: error: %s", m.Status.Text)
		} else {
			status = fmt.Sprintf("status: %s", m.Status.Text)
		}
	}

	active := 0
	for _, a := range m.Alarms {
		if a.IsActive {
			active++
		}
	}
	left := views.RenderAlarmPanel(views.AlarmPanelData{
		TableView: m.alarmTable.View(),
		Count:     len(m.Alarms),
		Active:    active,
	})

	var right string
	if m.ringing() {
		right = m.renderRingingView()
	} else {
		right = views.RenderUpcomingPanel(upcoming(m.Alarms, m.Runtime))
	}
	if m.Palette.Active {
		right += "\n\n" + views.RenderCommandPalette(true, m.commandInput.Value())
	}
	if m.HelpVisible {
		right += "\n\n" + m.renderHelpView()
	}

	notification := ""
	if n := len(m.Runtime.Unscheduled); n > 0 {
		notification = views.RenderNotification("warn", fmt.Sprintf("%d alarm(s) could not be scheduled", n))
	}

	return views.RenderApp(views.AppData{
		Header:       fmt.Sprintf("alarmd | %s | %s", m.now().Format("Mon 15:04:05"), m.Runtime.Trigger.State),
		LeftPane:     left,
		RightPane:    strings.TrimSpace(right),
		StatusLine:   status,
		Notification: notification,
		Footer:       fmt.Sprintf("keys: / cmd | %s help | %s quit", m.Keys.Help, m.Keys.Quit),
		Ringing:      m.ringing(),
	})
}

func (m Model) renderRingingView() string {
	snap := m.Runtime.Trigger
	a := snap.Alarm
	limit := fmt.Sprint(a.MaxSnoozes)
	switch {
	case !a.SnoozeEnabled:
		limit = "off"
	case a.SnoozeUnlimited():
		limit = "unlimited"
	}
	data := views.RingingPanelData{
		Label:       a.Label,
		Time:        a.Time.String(),
		Kind:        string(snap.Event.Kind),
		Since:       snap.RingingSince.Format("15:04:05"),
		SnoozeCount: a.CurrentSnoozeCount,
		SnoozeLimit: limit,
		AudioFailed: snap.AudioFailed,
		Queued:      len(snap.Queued),
		Indicator:   m.ringSpinner.View(),
	}
	if p := snap.Missions; p.Total > 0 {
		data.MissionTotal = p.Total
		data.MissionRound = p.Done
		if p.Current != nil {
			data.MissionRound = p.Current.Round
			data.MissionText = p.Current.Text
		} else {
			data.MissionText = "complete"
		}
		data.ProgressView = m.missionBar.ViewAs(float64(p.Done) / float64(p.Total))
		if m.Answering {
			data.AnswerView = m.answerInput.View()
		}
	}
	if snap.GateErr != nil {
		var gateErr *trigger.MissionGateError
		if errors.As(snap.GateErr, &gateErr) {
			data.MissionError = gateErr.Err.Error()
		} else {
			data.MissionError = snap.GateErr.Error()
		}
		if wait := snap.FallbackAt.Sub(m.now()); wait > 0 {
			data.FallbackIn = wait.Round(time.Second).String()
		}
	}
	return views.RenderRingingPanel(data)
}
