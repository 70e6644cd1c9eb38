// Package logview keeps per-destination log history and renders the records
// that pass the current level filter and search query.
package logview

import (
	"fmt"
	"strings"

	"github.com/m8test/m8link/pkg/common"
)

// Destination names a log view
type Destination string

const (
	DestScript Destination = "script"
	DestPlugin Destination = "plugin"
)

// Destinations lists every view in display order.
var Destinations = []Destination{DestScript, DestPlugin}

// LevelAll disables level filtering.
const LevelAll common.Level = "ALL"

// ParseDestination accepts "script" or "plugin", case-insensitively.
func ParseDestination(s string) (Destination, error) {
	switch Destination(strings.ToLower(strings.TrimSpace(s))) {
	case DestScript:
		return DestScript, nil
	case DestPlugin:
		return DestPlugin, nil
	}
	return "", fmt.Errorf("unknown destination %q", s)
}

// ParseLevelFilter accepts ALL or any level name. Unlike common.ParseLevel
// it rejects unrecognized names instead of mapping them to UNKNOWN.
func ParseLevelFilter(s string) (common.Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" || name == string(LevelAll) {
		return LevelAll, nil
	}
	if name == string(common.LevelUnknown) {
		return common.LevelUnknown, nil
	}
	level := common.ParseLevel(name)
	if level == common.LevelUnknown {
		return "", fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}

// Filter is the level filter plus search query applied to a view
type Filter struct {
	Level common.Level
	Query string
}

// DefaultFilter shows everything.
func DefaultFilter() Filter {
	return Filter{Level: LevelAll}
}

// Matches reports whether r is shown. The query is a case-insensitive
// substring of the composed display line.
func (f Filter) Matches(r common.LogRecord) bool {
	if f.Level != LevelAll && f.Level != "" && r.Level != f.Level {
		return false
	}
	if f.Query == "" {
		return true
	}
	return containsFold(r.Line(), f.Query)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
