package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sandeepkv93/alarmd/internal/model"
)

type Type string

const (
	TypeAdd     Type = "add"
	TypeRemove  Type = "rm"
	TypeToggle  Type = "toggle"
	TypeSnooze  Type = "snooze"
	TypeDismiss Type = "dismiss"
	TypeSolve   Type = "solve"
	TypeSkip    Type = "skip"
	TypeShow    Type = "show"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AddArgs describes a new alarm. Zero values mean "use the default".
type AddArgs struct {
	Time         model.TimeOfDay
	Days         model.Weekdays
	Label        string
	Sound        string
	Volume       int
	Snooze       int
	MaxSnoozes   int
	Missions     []model.MissionKind
	MissionCount int
}

// Alarm builds the record the add command describes. The id is left for the
// service to assign.
func (a AddArgs) Alarm() model.Alarm {
	out := model.Alarm{
		Time:       a.Time,
		Label:      a.Label,
		IsActive:   true,
		RepeatDays: a.Days,
		SoundName:  a.Sound,
		Volume:     model.DefaultVolume,
	}
	if a.Volume > 0 {
		out.Volume = a.Volume
	}
	if a.Snooze != 0 {
		out.SnoozeEnabled = true
		out.SnoozeDurationMinutes = a.Snooze
		out.MaxSnoozes = a.MaxSnoozes
	}
	if len(a.Missions) > 0 {
		out.MissionEnabled = true
		out.SelectedMissions = append([]model.MissionKind(nil), a.Missions...)
		out.MissionCount = a.MissionCount
	}
	return out
}

// TargetArgs names an alarm by id or by its 1-based position in the list.
type TargetArgs struct {
	Target string
}

type SolveArgs struct {
	Answer string
}

type ShowArgs struct {
	Subject string
}

type Command struct {
	Type   Type
	Raw    string
	Add    *AddArgs
	Remove *TargetArgs
	Toggle *TargetArgs
	Solve  *SolveArgs
	Show   *ShowArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeRemove, "delete":
		target, err := parseTarget("rm", args)
		if err != nil {
			return Command{}, err
		}
		return Command{Type: TypeRemove, Raw: input, Remove: target}, nil
	case TypeToggle:
		target, err := parseTarget("toggle", args)
		if err != nil {
			return Command{}, err
		}
		return Command{Type: TypeToggle, Raw: input, Toggle: target}, nil
	case TypeSnooze, TypeDismiss, TypeSkip:
		if len(args) > 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s takes no arguments", head)}
		}
		return Command{Type: Type(head), Raw: input}, nil
	case TypeSolve:
		return Command{Type: TypeSolve, Raw: input, Solve: &SolveArgs{Answer: strings.Join(args, " ")}}, nil
	case TypeShow:
		return parseShow(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

// parseAdd reads "add HH:MM [days] [key:value ...] [label ...]". Options are
// snooze:<minutes>, max:<n>, missions:<kind,...>, count:<n>, sound:<name> and
// vol:<0-100>.
func parseAdd(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires a time"}
	}
	at, err := model.ParseTimeOfDay(args[0])
	if err != nil {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: err.Error()}
	}
	out := AddArgs{Time: at}
	rest := args[1:]
	if len(rest) > 0 && !strings.Contains(rest[0], ":") {
		if days, err := model.ParseWeekdays(rest[0]); err == nil {
			out.Days = days
			rest = rest[1:]
		}
	}

	var label []string
	for _, tok := range rest {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			label = append(label, tok)
			continue
		}
		switch strings.ToLower(key) {
		case "snooze":
			out.Snooze, err = parseNumber(key, value)
		case "max":
			if value == "unlimited" {
				out.MaxSnoozes = model.UnlimitedSnoozes
				continue
			}
			out.MaxSnoozes, err = parseNumber(key, value)
		case "count":
			out.MissionCount, err = parseNumber(key, value)
		case "vol", "volume":
			out.Volume, err = parseNumber(key, value)
		case "sound":
			out.Sound = value
		case "missions":
			for _, k := range strings.Split(value, ",") {
				kind := model.MissionKind(strings.ToLower(strings.TrimSpace(k)))
				if !kind.IsValid() {
					return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown mission %q", k)}
				}
				out.Missions = append(out.Missions, kind)
			}
		default:
			label = append(label, tok)
		}
		if err != nil {
			return Command{}, err
		}
	}
	out.Label = strings.Join(label, " ")
	return Command{Type: TypeAdd, Raw: raw, Add: &out}, nil
}

func parseNumber(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s must be a non-negative number", key)}
	}
	return n, nil
}

func parseTarget(name string, args []string) (*TargetArgs, error) {
	if len(args) != 1 {
		return nil, &CommandError{Code: ErrCodeInvalidArgument, Message: name + " requires one alarm id or number"}
	}
	return &TargetArgs{Target: args[0]}, nil
}

func parseShow(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "show requires a subject"}
	}
	subject := strings.ToLower(args[0])
	switch subject {
	case "alarms", "next", "status", "help":
	default:
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown subject %q", subject)}
	}
	return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject}}, nil
}
