package app

import (
	"strings"

	"github.com/openportal/twofa/pkg/logger"
)

// ConfigureLogging initialises the global logger with the configured level
// and encoding, defaulting to info-level JSON.
func ConfigureLogging(level, format string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, strings.TrimSpace(format))
}
