package tui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/alarmd/internal/commands"
	"github.com/sandeepkv93/alarmd/internal/model"
)

func (m Model) handlePaletteKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "esc":
		m.Palette.Active = false
		m.Palette.Input = ""
		m.commandInput.SetValue("")
		m.commandInput.Blur()
		m.Status = StatusBar{Text: "command palette closed"}
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		m = m.executePaletteCommand()
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		_ = cmd
		m.Palette.Input = m.commandInput.Value()
	}
	return m
}

func (m Model) executePaletteCommand() Model {
	raw := strings.TrimSpace(m.Palette.Input)
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()

	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m
	}
	res, err := commands.Execute(cmd, m.handlers())
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
	} else {
		m.Status = StatusBar{Text: res.Message}
	}
	if cmd.Type == commands.TypeShow && cmd.Show.Subject == "help" && err == nil {
		m.HelpVisible = true
	}
	m.refresh()
	return m
}

func (m Model) handlers() commands.Handlers {
	return commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			created, err := m.backend.Create(m.ctx, a.Alarm())
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("added %s %s (%s)", created.Time, created.RepeatDays, created.ID)}, nil
		},
		Remove: func(t commands.TargetArgs) (commands.Result, error) {
			a, err := resolveTarget(m.Alarms, t.Target)
			if err != nil {
				return commands.Result{}, err
			}
			if err := m.backend.Delete(m.ctx, a.ID); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "deleted " + a.Time.String()}, nil
		},
		Toggle: func(t commands.TargetArgs) (commands.Result, error) {
			a, err := resolveTarget(m.Alarms, t.Target)
			if err != nil {
				return commands.Result{}, err
			}
			updated, err := m.backend.SetActive(m.ctx, a.ID, !a.IsActive)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("%s %s", updated.Time, onOff(updated.IsActive))}, nil
		},
		Snooze: func() (commands.Result, error) {
			res, err := m.backend.Snooze(m.ctx)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: describeSnooze(res)}, nil
		},
		Dismiss: func() (commands.Result, error) {
			if err := m.backend.Dismiss(m.ctx); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "dismissed"}, nil
		},
		Solve: func(s commands.SolveArgs) (commands.Result, error) {
			progress, err := m.backend.SubmitMission(s.Answer)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: describeProgress(progress)}, nil
		},
		Skip: func() (commands.Result, error) {
			if err := m.backend.SkipMission(); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "mission skipped"}, nil
		},
		Show: func(s commands.ShowArgs) (commands.Result, error) {
			switch s.Subject {
			case "next":
				items := upcoming(m.Alarms, m.Runtime)
				if len(items) == 0 {
					return commands.Result{Message: "nothing scheduled"}, nil
				}
				return commands.Result{Message: fmt.Sprintf("next: %s %s", items[0].When, items[0].Label)}, nil
			case "status":
				return commands.Result{Message: fmt.Sprintf("%s, %d alarm(s), %d unscheduled", m.Runtime.Trigger.State, len(m.Alarms), len(m.Runtime.Unscheduled))}, nil
			case "help":
				return commands.Result{Message: "help shown"}, nil
			default:
				return commands.Result{Message: fmt.Sprintf("%d alarm(s)", len(m.Alarms))}, nil
			}
		},
	}
}

// resolveTarget accepts a 1-based list position, a full id or a unique id
// prefix.
func resolveTarget(alarms []model.Alarm, target string) (model.Alarm, error) {
	if n, err := strconv.Atoi(target); err == nil {
		if n < 1 || n > len(alarms) {
			return model.Alarm{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf("no alarm at position %d", n)}
		}
		return alarms[n-1], nil
	}
	var match []model.Alarm
	for _, a := range alarms {
		if a.ID == target {
			return a, nil
		}
		if strings.HasPrefix(a.ID, target) {
			match = append(match, a)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return model.Alarm{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf("no alarm matches %q", target)}
	default:
		return model.Alarm{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf("%q matches %d alarms", target, len(match))}
	}
}
