package platform

import (
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/alarmd/internal/model"
)

type recordedCall struct {
	name string
	args []string
}

func recorder(calls *[]recordedCall) func(string, ...string) error {
	return func(name string, args ...string) error {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return nil
	}
}

func TestExecNotifierPerPlatform(t *testing.T) {
	note := Notification{Title: `Wake "now"`, Body: "Up"}

	var calls []recordedCall
	if err := (ExecNotifier{GOOS: "linux", Run: recorder(&calls)}).Send(note); err != nil {
		t.Fatalf("linux send: %v", err)
	}
	if len(calls) != 1 || calls[0].name != "notify-send" || calls[0].args[len(calls[0].args)-2] != note.Title {
		t.Fatalf("unexpected linux call: %#v", calls)
	}

	calls = nil
	if err := (ExecNotifier{GOOS: "darwin", Run: recorder(&calls)}).Send(note); err != nil {
		t.Fatalf("darwin send: %v", err)
	}
	if len(calls) != 1 || calls[0].name != "osascript" || !strings.Contains(calls[0].args[1], `Wake \"now\"`) {
		t.Fatalf("unexpected darwin call: %#v", calls)
	}

	calls = nil
	if err := (ExecNotifier{GOOS: "plan9", Run: recorder(&calls)}).Send(note); err != nil || len(calls) != 0 {
		t.Fatalf("expected no-op on unsupported platform, got %v %#v", err, calls)
	}
}

func TestAlarmNotification(t *testing.T) {
	a := model.Normalize(model.Alarm{
		ID:             "a",
		Label:          "Gym",
		Time:           model.TimeOfDay{Hour: 6, Minute: 5},
		MissionEnabled: true,
		MissionCount:   2,
	})
	ev := model.FireEvent{AlarmID: "a", ScheduledAt: time.Now(), Kind: model.OccurrenceNormal}
	n := AlarmNotification(a, ev)
	if n.Title != "Gym (06:05)" {
		t.Fatalf("unexpected title %q", n.Title)
	}
	if !strings.Contains(n.Body, "2 mission(s)") {
		t.Fatalf("unexpected body %q", n.Body)
	}

	a.Label = ""
	a.MissionEnabled = false
	a.CurrentSnoozeCount = 1
	ev.Kind = model.OccurrenceSnooze
	n = AlarmNotification(a, ev)
	if n.Title != "Alarm 06:05" || n.Body != "Snooze over (1 so far)." {
		t.Fatalf("unexpected snooze notification %#v", n)
	}
}

func TestAutostartCommand(t *testing.T) {
	a := newAutostart("/usr/local/bin/alarmd", []string{"run", "--headless"}, nil)
	got := a.Command()
	if strings.Join(got, " ") != "/usr/local/bin/alarmd run --headless" {
		t.Fatalf("unexpected command %v", got)
	}
	got[0] = "mutated"
	if a.Command()[0] != "/usr/local/bin/alarmd" {
		t.Fatal("Command must return a copy")
	}
}
