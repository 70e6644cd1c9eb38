package client

import (
	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/logview"
	"github.com/m8test/m8link/pkg/stream"
)

type opType int

const (
	opIngest opType = iota
	opStreamError
	opState
	opSetLevel
	opSetSearch
	opClear
	opClearAll
	opSnapshot
)

// op is one unit of work for the dispatcher
type op struct {
	Type     opType
	Dest     logview.Destination
	Record   common.LogRecord
	Level    common.Level
	Text     string
	Err      error
	State    stream.State
	OnRecord func(common.LogRecord)
	OnError  func(error)
	RespCh   chan Snapshot
}

// Snapshot is a point-in-time copy of the client's view state
type Snapshot struct {
	Filter       logview.Filter
	State        stream.State
	Script       []common.LogRecord
	Plugin       []common.LogRecord
	ScriptTotal  int
	PluginTotal  int
	PluginDrops  uint64
	StreamErrors uint64
}

// Rendered returns the shown records of dest.
func (s Snapshot) Rendered(dest logview.Destination) []common.LogRecord {
	switch dest {
	case logview.DestScript:
		return s.Script
	case logview.DestPlugin:
		return s.Plugin
	}
	return nil
}
