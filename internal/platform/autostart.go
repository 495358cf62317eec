package platform

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
)

// Autostart registers alarmd as a login item so alarms survive a reboot.
type Autostart struct {
	app    *autostart.App
	logger *slog.Logger
}

// NewAutostart builds a login item running the current executable with args.
func NewAutostart(args []string, logger *slog.Logger) (*Autostart, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}
	return newAutostart(execPath, args, logger), nil
}

func newAutostart(execPath string, args []string, logger *slog.Logger) *Autostart {
	if logger == nil {
		logger = slog.Default()
	}
	return &Autostart{
		app: &autostart.App{
			Name:        "alarmd",
			DisplayName: "alarmd alarm clock",
			Exec:        append([]string{execPath}, args...),
		},
		logger: logger,
	}
}

func (a *Autostart) Enabled() bool { return a.app.IsEnabled() }

func (a *Autostart) Command() []string { return append([]string(nil), a.app.Exec...) }

// Set enables or disables the login item; it is a no-op when already in the
// requested state.
func (a *Autostart) Set(enable bool) error {
	if enable == a.app.IsEnabled() {
		return nil
	}
	if enable {
		if err := a.app.Enable(); err != nil {
			return err
		}
		a.logger.Info("autostart enabled", "exec", a.app.Exec)
		return nil
	}
	if err := a.app.Disable(); err != nil {
		return err
	}
	a.logger.Info("autostart disabled")
	return nil
}
