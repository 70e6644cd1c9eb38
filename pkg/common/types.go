// Package common provides the log record model and the response envelope
// shared by the client and the emulated device.
package common

import (
	"fmt"
	"strings"
)

// Level is a normalized log level
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelVerbose Level = "VERBOSE"
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelAssert  Level = "ASSERT"
	LevelUnknown Level = "UNKNOWN"
)

// Levels lists the recognized levels in display order.
var Levels = []Level{LevelDebug, LevelVerbose, LevelInfo, LevelWarn, LevelError, LevelAssert}

// ParseLevel normalizes a wire level. Unrecognized values map to LevelUnknown.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "VERBOSE":
		return LevelVerbose
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "ASSERT":
		return LevelAssert
	default:
		return LevelUnknown
	}
}

func (l Level) String() string {
	return string(l)
}

// Prefix returns the bracketed display tag, padded so INFO and WARN line up with ERROR.
func (l Level) Prefix() string {
	switch l {
	case LevelDebug:
		return "[DEBUG]"
	case LevelVerbose:
		return "[VERBOSE]"
	case LevelInfo:
		return "[INFO ]"
	case LevelWarn:
		return "[WARN ]"
	case LevelError:
		return "[ERROR]"
	case LevelAssert:
		return "[ASSERT]"
	default:
		return "[UNKWN]"
	}
}

// LogRecord is one unit of remote telemetry. Records are passed by value
// and never modified after construction.
type LogRecord struct {
	ID      int64  `json:"id"`
	Level   Level  `json:"level"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// NewLogRecord builds a record with a normalized level.
func NewLogRecord(id int64, level, tag, message, time string) LogRecord {
	return LogRecord{
		ID:      id,
		Level:   ParseLevel(level),
		Tag:     tag,
		Message: message,
		Time:    time,
	}
}

// Line composes the display line used for rendering and search.
func (r LogRecord) Line() string {
	return fmt.Sprintf("%s %s %s: %s", r.Time, r.Level.Prefix(), r.Tag, r.Message)
}

// Device endpoint paths.
const (
	PathConsole        = "/console"
	PathCommandExecute = "/command/execute"
	PathProjectRoot    = "/config/root"
)

// TimeLayout formats record timestamps produced on this side of the link.
const TimeLayout = "2006-01-02 15:04:05.000"
