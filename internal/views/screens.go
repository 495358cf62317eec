package views

import (
	"fmt"
	"strings"
)

// AlarmRowData is one alarm as the list shows it.
type AlarmRowData struct {
	Position int
	ID       string
	Time     string
	Days     string
	Label    string
	Active   bool
	Next     string
	Flags    string
}

type AlarmPanelData struct {
	TableView string
	Count     int
	Active    int
}

type UpcomingData struct {
	Label string
	When  string
	Kind  string
}

type RingingPanelData struct {
	Label        string
	Time         string
	Kind         string
	Since        string
	SnoozeCount  int
	SnoozeLimit  string
	AudioFailed  bool
	MissionRound int
	MissionTotal int
	MissionText  string
	MissionError string
	FallbackIn   string
	AnswerView   string
	ProgressView string
	Indicator    string
	Queued       int
}

type HelpPanelData struct {
	Bindings []string
	HelpView string
}

func RenderAlarmPanel(data AlarmPanelData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("alarms: %d (%d active)\n", data.Count, data.Active))
	b.WriteString("actions: [j/k]move [space]toggle [x]delete [/]command\n")
	if data.Count == 0 {
		b.WriteString("(no alarms, try /add 07:00 weekdays wake up)")
		return b.String()
	}
	b.WriteString(data.TableView)
	return strings.TrimSpace(b.String())
}

func RenderUpcomingPanel(items []UpcomingData) string {
	var b strings.Builder
	b.WriteString("upcoming:\n")
	if len(items) == 0 {
		b.WriteString("(nothing scheduled)")
		return b.String()
	}
	for _, item := range items {
		badge := ""
		if item.Kind == "snooze" {
			badge = " [SNOOZE]"
		}
		b.WriteString(fmt.Sprintf("- %s %s%s\n", item.When, item.Label, badge))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderRingingPanel(data RingingPanelData) string {
	var b strings.Builder
	if data.Indicator != "" {
		b.WriteString(data.Indicator + " ")
	}
	b.WriteString(fmt.Sprintf("RINGING: %s %s\n", data.Time, data.Label))
	b.WriteString(fmt.Sprintf("since: %s (%s)\n", data.Since, data.Kind))
	b.WriteString(fmt.Sprintf("snoozes: %d/%s\n", data.SnoozeCount, data.SnoozeLimit))
	if data.AudioFailed {
		b.WriteString("audio: unavailable, ringing silently\n")
	}
	if data.MissionTotal > 0 {
		b.WriteString(fmt.Sprintf("mission %d/%d: %s\n", data.MissionRound, data.MissionTotal, data.MissionText))
		if data.ProgressView != "" {
			b.WriteString(data.ProgressView + "\n")
		}
		if data.AnswerView != "" {
			b.WriteString(data.AnswerView + "\n")
		}
	}
	if data.MissionError != "" {
		b.WriteString("mission error: " + data.MissionError + "\n")
		if data.FallbackIn != "" {
			b.WriteString("dismiss allowed in " + data.FallbackIn + "\n")
		}
	}
	if data.Queued > 0 {
		b.WriteString(fmt.Sprintf("queued alarms: %d\n", data.Queued))
	}
	b.WriteString("actions: [s]snooze [d]dismiss [a]answer [x]skip mission")
	return b.String()
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: /%s", input)
}

func RenderNotification(level string, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return fmt.Sprintf("notification: [%s] %s", strings.ToUpper(level), body)
}

func RenderHelpPanel(data HelpPanelData) string {
	return fmt.Sprintf("help:\n%s\n%s",
		strings.Join(data.Bindings, "\n"),
		data.HelpView,
	)
}

// AlarmTableMarkdown lays the alarm list out as a markdown table for
// RenderMarkdown.
func AlarmTableMarkdown(rows []AlarmRowData) string {
	var b strings.Builder
	b.WriteString("# Alarms\n\n")
	if len(rows) == 0 {
		b.WriteString("_No alarms._\n")
		return b.String()
	}
	b.WriteString("| # | Time | Days | Label | State | Next | Policy |\n")
	b.WriteString("|---|------|------|-------|-------|------|--------|\n")
	for _, r := range rows {
		state := "off"
		if r.Active {
			state = "on"
		}
		b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s |\n",
			r.Position, r.Time, r.Days, escapeCell(r.Label), state, r.Next, r.Flags))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
