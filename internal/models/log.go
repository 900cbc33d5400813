package models

import (
	"strings"
	"time"
)

// Log levels: "debug", "info", "warn", "error". The query surface also
// accepts the long forms "information" and "warning"; files always store
// the short form.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// NormalizeLogLevel maps the accepted spellings onto the stored short
// forms. Unknown values are returned lowercased so filters simply miss.
func NormalizeLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "dbg":
		return LogLevelDebug
	case "info", "information", "inf":
		return LogLevelInfo
	case "warn", "warning", "wrn":
		return LogLevelWarn
	case "error", "err":
		return LogLevelError
	default:
		return strings.ToLower(strings.TrimSpace(level))
	}
}

// LogEvent is one structured record in the append-only event log.
// Events are immutable once written; append order within a day file
// matches generation order, and individual events are never deleted -
// only whole aged-out files are purged by the retention sweep.
type LogEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	JobID     string            `json:"jobId,omitempty"` // Empty means not job-scoped
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Host      string            `json:"host,omitempty"`
}

// NewLogEvent creates an event stamped with the current time.
func NewLogEvent(level, jobID, message string) LogEvent {
	return LogEvent{
		Timestamp: time.Now(),
		Level:     NormalizeLogLevel(level),
		JobID:     jobID,
		Message:   message,
	}
}

// WithField returns the event with one key/value added to its payload.
func (e LogEvent) WithField(key, value string) LogEvent {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

// LevelRank orders levels for minimum-level filtering (debug lowest).
func LevelRank(level string) int {
	switch NormalizeLogLevel(level) {
	case LogLevelDebug:
		return 0
	case LogLevelInfo:
		return 1
	case LogLevelWarn:
		return 2
	case LogLevelError:
		return 3
	default:
		return 1
	}
}
