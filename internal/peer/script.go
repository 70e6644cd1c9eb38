package peer

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/m8test/m8link/pkg/common"
)

// scriptTag is the tag on records the emulated runtime publishes.
const scriptTag = "ScriptRuntime"

// ScriptCommand is a parsed "script <action> build --path <root> [--argument <arg>]" line
type ScriptCommand struct {
	Action   string
	Path     string
	Argument string
}

// ParseScriptCommand parses a command line. The argument, when present,
// runs to the end of the line and may contain spaces.
func ParseScriptCommand(line string) (*ScriptCommand, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "script" || fields[2] != "build" {
		return nil, fmt.Errorf("unknown command: %q", line)
	}

	cmd := &ScriptCommand{Action: fields[1]}
	if cmd.Action != "start" && cmd.Action != "interrupt" {
		return nil, fmt.Errorf("unknown script action: %q", cmd.Action)
	}

	rest := strings.TrimSpace(strings.Join(fields[3:], " "))
	if !strings.HasPrefix(rest, "--path ") {
		return nil, fmt.Errorf("missing --path")
	}
	rest = strings.TrimPrefix(rest, "--path ")

	if i := strings.Index(rest, " --argument "); i >= 0 {
		cmd.Path = rest[:i]
		cmd.Argument = strings.TrimSpace(rest[i+len(" --argument "):])
	} else {
		cmd.Path = rest
	}
	if cmd.Path == "" {
		return nil, fmt.Errorf("missing --path")
	}
	return cmd, nil
}

// ScriptRunner emulates the device's script runtime. It tracks whether a
// script is running and narrates transitions on the console.
type ScriptRunner struct {
	root    string
	console *Console
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	argument string
}

// NewScriptRunner creates a runner serving the project at root
func NewScriptRunner(root string, console *Console, logger *slog.Logger) *ScriptRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptRunner{
		root:    root,
		console: console,
		logger:  logger,
	}
}

// Running reports whether a script is running.
func (s *ScriptRunner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// HandleProjectRoot answers POST /config/root with the plain-text root
func (s *ScriptRunner) HandleProjectRoot(w http.ResponseWriter, r *http.Request) {
	common.WriteText(w, s.root)
}

// HandleExecute answers POST /command/execute with an envelope
func (s *ScriptRunner) HandleExecute(w http.ResponseWriter, r *http.Request) {
	line, err := common.ReadTextBody(w, r)
	if err != nil {
		return
	}

	cmd, err := ParseScriptCommand(line)
	if err != nil {
		s.logger.Warn("Rejected command", slog.String("command", line), slog.String("error", err.Error()))
		common.WriteRejected(w, "%s", err.Error())
		return
	}

	if cmd.Path != s.root {
		common.WriteRejected(w, "project not found: %s", cmd.Path)
		return
	}

	switch cmd.Action {
	case "start":
		err = s.start(cmd.Argument)
	case "interrupt":
		err = s.interrupt()
	}
	if err != nil {
		common.WriteRejected(w, "%s", err.Error())
		return
	}
	common.WriteSuccess(w, "ok")
}

func (s *ScriptRunner) start(argument string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("script is already running")
	}
	s.running = true
	s.argument = argument
	s.mu.Unlock()

	s.logger.Info("Script started", slog.String("argument", argument))
	if s.console != nil {
		msg := "script started"
		if argument != "" {
			msg += " with argument " + argument
		}
		s.console.Publish(common.LevelInfo, scriptTag, msg)
	}
	return nil
}

func (s *ScriptRunner) interrupt() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("no script is running")
	}
	s.running = false
	s.argument = ""
	s.mu.Unlock()

	s.logger.Info("Script interrupted")
	if s.console != nil {
		s.console.Publish(common.LevelWarn, scriptTag, "script interrupted")
	}
	return nil
}
