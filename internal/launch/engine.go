package launch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/meza/minecraft-modpack-launcher/internal/lifecycle"
	"github.com/spf13/afero"
)

type EventKind string

const (
	EventDebug    EventKind = "debug"
	EventData     EventKind = "data"
	EventProgress EventKind = "progress"
	EventClose    EventKind = "close"
	EventError    EventKind = "error"
)

type Progress struct {
	Type  string `json:"type"`
	Task  int    `json:"task"`
	Total int    `json:"total"`
}

type Event struct {
	Kind     EventKind
	Text     string
	Progress Progress
	Code     int
}

// Engine starts the game. The returned channel is closed after the final close or error event.
type Engine interface {
	Launch(ctx context.Context, cfg Configuration) (<-chan Event, error)
}

const ConfigFileName = "mpl-launch.json"

type EngineNotConfiguredError struct{}

func (EngineNotConfiguredError) Error() string {
	return "no launch engine command configured"
}

// CommandEngine hands the configuration to an external engine process. The configuration is
// written to <root>/mpl-launch.json and its path appended to the command line. Lines on stdout
// become data events and lines on stderr debug events.
type CommandEngine struct {
	fs      afero.Fs
	command []string
}

func NewCommandEngine(fs afero.Fs, command []string) *CommandEngine {
	return &CommandEngine{fs: fs, command: append([]string(nil), command...)}
}

func (engine *CommandEngine) Launch(ctx context.Context, cfg Configuration) (<-chan Event, error) {
	if len(engine.command) == 0 || engine.command[0] == "" {
		return nil, EngineNotConfiguredError{}
	}

	payload, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode launch configuration: %w", err)
	}
	configPath := filepath.Join(cfg.Root, ConfigFileName)
	if err := fileutils.WriteFileAtomic(engine.fs, configPath, payload, 0600); err != nil {
		return nil, err
	}

	args := append(append([]string(nil), engine.command[1:]...), configPath)
	cmd := exec.CommandContext(ctx, engine.command[0], args...)
	cmd.Dir = cfg.Root
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	release := lifecycle.Guard(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer release()

		var readers sync.WaitGroup
		readers.Add(2)
		go forwardLines(stdout, EventData, events, &readers)
		go forwardLines(stderr, EventDebug, events, &readers)
		readers.Wait()

		waitErr := cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
			events <- Event{Kind: EventClose, Code: 0}
		case errors.As(waitErr, &exitErr):
			events <- Event{Kind: EventClose, Code: exitErr.ExitCode()}
		default:
			events <- Event{Kind: EventError, Text: waitErr.Error()}
		}
	}()
	return events, nil
}

func forwardLines(reader io.Reader, kind EventKind, events chan<- Event, done *sync.WaitGroup) {
	defer done.Done()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		events <- Event{Kind: kind, Text: scanner.Text()}
	}
	_, _ = io.Copy(io.Discard, reader)
}
