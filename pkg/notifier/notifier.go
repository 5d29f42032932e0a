// Package notifier surfaces watcher failures as desktop notifications
package notifier

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/filesentry/filesentry/pkg/logger"
)

// WatcherNotifier sends a desktop notification when a watcher enters the
// error state. Disabled by default; servers usually rely on the status
// event stream instead.
type WatcherNotifier struct {
	enabled bool
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled bool
}

// New creates a new watcher notifier
func New(config Config, log logger.Logger) *WatcherNotifier {
	return &WatcherNotifier{
		enabled: config.Enabled,
		logger:  log,
	}
}

// NotifyWatcherError reports an unrecoverable watch failure
func (n *WatcherNotifier) NotifyWatcherError(id string, err error) {
	if !n.enabled {
		return
	}

	title := "filesentry: watcher failed"
	message := fmt.Sprintf("%s: %v", id, err)

	if nerr := beeep.Notify(title, message, ""); nerr != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", nerr))
	}
}
