package logger

import (
	"fmt"
	"io"
	"os"

	"dmxmapper/internal/config"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.0000"

type Log struct {
	*logrus.Entry
}

// NewLogger конструктор. Logs go to stdout.
func NewLogger(cfg config.Log) (*Log, error) {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo creates a logger writing to out.
func NewLoggerTo(out io.Writer, cfg config.Log) (*Log, error) {
	log := logrus.New()
	log.SetOutput(out)

	formatter, err := newFormatter(cfg.Format)
	if err != nil {
		return nil, err
	}
	log.Formatter = formatter

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logger. Error in settings (level: %s): %w", cfg.Level, err)
	}
	log.SetLevel(level)
	log.Debug("set level: ", level)

	return &Log{Entry: log.WithFields(nil)}, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch format {
	case "", "text":
		return &logrus.TextFormatter{
			TimestampFormat:  timestampFormat,
			ForceColors:      true,
			FullTimestamp:    true,
			QuoteEmptyFields: true,
		}, nil
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: timestampFormat}, nil
	}
	return nil, fmt.Errorf("logger. Error in settings (format: %s)", format)
}

// With will add the fields to the formatted log entry.
func (l *Log) With(fields Fields) *Log {
	return &Log{Entry: l.WithFields(logrus.Fields(fields))}
}

func (l *Log) GetLevel() string {
	return l.Logger.Level.String()
}

// Fields are a representation of formatted log fields.
type Fields map[string]interface{}

// Logger интерфейс для регистратора.
type Logger interface {
	// GetLevel возвращает текущий установленный уровень логирования.
	GetLevel() string
	With(fields Fields) *Log
}
