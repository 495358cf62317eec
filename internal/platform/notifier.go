package platform

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sandeepkv93/alarmd/internal/model"
)

type Notification struct {
	Title string
	Body  string
}

type Notifier interface {
	Send(Notification) error
}

type NoopNotifier struct{}

func (NoopNotifier) Send(Notification) error { return nil }

// ExecNotifier shells out to notify-send on Linux and osascript on macOS.
// Other platforms are a silent no-op.
type ExecNotifier struct {
	GOOS string
	Run  func(name string, args ...string) error
}

func NewExecNotifier() ExecNotifier {
	return ExecNotifier{
		GOOS: runtime.GOOS,
		Run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

func (n ExecNotifier) Send(note Notification) error {
	switch n.GOOS {
	case "linux":
		return n.Run("notify-send", "--urgency=critical", note.Title, note.Body)
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s" sound name "default"`, escapeAppleScript(note.Body), escapeAppleScript(note.Title))
		return n.Run("osascript", "-e", script)
	default:
		return nil
	}
}

// AlarmNotification describes a ringing alarm.
func AlarmNotification(a model.Alarm, ev model.FireEvent) Notification {
	title := "Alarm " + a.Time.String()
	if a.Label != "" {
		title = a.Label + " (" + a.Time.String() + ")"
	}
	body := "Time to wake up."
	if ev.Kind == model.OccurrenceSnooze {
		body = fmt.Sprintf("Snooze over (%d so far).", a.CurrentSnoozeCount)
	}
	if missions := a.RequiredMissions(); len(missions) > 0 {
		body += fmt.Sprintf(" %d mission(s) to dismiss.", len(missions))
	}
	return Notification{Title: title, Body: body}
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
