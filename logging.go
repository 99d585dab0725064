package jobqueue

import (
	"os"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"
)

// Logger wraps arbor.ILogger to give the executor a consistent
// structured-logging surface without forcing an embedding service to adopt
// a particular logging stack: NewExecutor defaults to a silent logger when
// none is supplied via WithLogger. The storage backends do not log.
type Logger struct {
	arbor.ILogger
}

// discardWriter implements writers.IWriter and discards all output. Used by
// NewSilentLogger so construction never falls through to a
// globally-registered writer.
type discardWriter struct{}

func (w *discardWriter) Write(p []byte) (int, error)          { return len(p), nil }
func (w *discardWriter) WithLevel(_ log.Level) writers.IWriter { return w }
func (w *discardWriter) GetFilePath() string                   { return "" }
func (w *discardWriter) Close() error                          { return nil }

// NewLogger creates a console logger (stderr) at the given level ("debug",
// "info", "warn", "error", ...).
func NewLogger(level string) *Logger {
	l := arbor.NewLogger().
		WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			Writer:     os.Stderr,
			TimeFormat: "2006-01-02T15:04:05Z07:00",
		}).
		WithLevelFromString(level)
	return &Logger{ILogger: l}
}

// NewDefaultLogger creates an info-level console logger.
func NewDefaultLogger() *Logger {
	return NewLogger("info")
}

// NewSilentLogger discards everything. It is the default for Executor when
// no logger is configured.
func NewSilentLogger() *Logger {
	return &Logger{ILogger: arbor.NewLogger().WithWriters([]writers.IWriter{&discardWriter{}})}
}
