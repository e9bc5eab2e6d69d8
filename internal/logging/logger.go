// Package logging builds the arbor logger shared by every component.
package logging

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// New returns a console logger at the given level ("debug", "info", ...).
func New(level string) arbor.ILogger {
	logger := arbor.NewLogger().WithConsoleWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	})
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}

// Discard returns a logger that drops everything, for tests and quiet commands.
func Discard() arbor.ILogger {
	return arbor.NewNoOpLogger()
}
