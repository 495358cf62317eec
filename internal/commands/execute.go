package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Add     func(AddArgs) (Result, error)
	Remove  func(TargetArgs) (Result, error)
	Toggle  func(TargetArgs) (Result, error)
	Snooze  func() (Result, error)
	Dismiss func() (Result, error)
	Solve   func(SolveArgs) (Result, error)
	Skip    func() (Result, error)
	Show    func(ShowArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeRemove:
		if handlers.Remove == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Remove(*cmd.Remove)
	case TypeToggle:
		if handlers.Toggle == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Toggle(*cmd.Toggle)
	case TypeSnooze:
		if handlers.Snooze == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Snooze()
	case TypeDismiss:
		if handlers.Dismiss == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Dismiss()
	case TypeSolve:
		if handlers.Solve == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Solve(*cmd.Solve)
	case TypeSkip:
		if handlers.Skip == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Skip()
	case TypeShow:
		if handlers.Show == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Show(*cmd.Show)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
