// Package notifier reports pipeline failures to the developer
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/poltergeist/wisp/pkg/logger"
)

// Title is the desktop notification title for failures
const Title = "Compile Error"

// Notifier is invoked by any failing pipeline stage. It never aborts the
// caller and never retries.
type Notifier interface {
	Notify(task string, err error)
}

// SuccessNotifier is implemented by notifiers that also report a finished
// production build
type SuccessNotifier interface {
	NotifyBuildSuccess(tasks int, duration time.Duration)
}

var (
	_ Notifier        = (*ErrorNotifier)(nil)
	_ SuccessNotifier = (*ErrorNotifier)(nil)
)

// Backend delivers audible and desktop alerts
type Backend interface {
	Beep() error
	Notify(title, message string) error
}

// beeepBackend sends alerts through beeep
type beeepBackend struct{}

func (beeepBackend) Beep() error {
	return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

func (beeepBackend) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// ErrorNotifier logs, beeps and raises a desktop notification
type ErrorNotifier struct {
	enabled bool
	backend Backend
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	// Enabled toggles the beep and desktop notification; logging always happens
	Enabled bool
	// Backend overrides the beeep backend
	Backend Backend
}

// New creates a new error notifier
func New(config Config, log logger.Logger) *ErrorNotifier {
	backend := config.Backend
	if backend == nil {
		backend = beeepBackend{}
	}

	return &ErrorNotifier{
		enabled: config.Enabled,
		backend: backend,
		logger:  log,
	}
}

// Notify reports a failed stage. Backend failures are logged at debug level
// and otherwise ignored.
func (n *ErrorNotifier) Notify(task string, err error) {
	if err == nil {
		return
	}

	n.logger.WithTarget(task).Error(err.Error())

	if !n.enabled {
		return
	}

	if berr := n.backend.Beep(); berr != nil {
		n.logger.Debug("Failed to play sound", logger.WithField("error", berr))
	}

	message := fmt.Sprintf("%s: %v", task, err)
	if nerr := n.backend.Notify(Title, message); nerr != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", nerr))
	}
}

// NotifyBuildSuccess logs the production build summary
func (n *ErrorNotifier) NotifyBuildSuccess(tasks int, duration time.Duration) {
	n.logger.Success(fmt.Sprintf("Built %d tasks in %s", tasks, FormatDuration(duration)))
}

// FormatDuration renders a duration for log output
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
