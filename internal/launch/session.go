package launch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/spf13/afero"
)

const (
	DefaultRecentLines = 40
	DefaultEngineLog   = "logs/latest.log"
)

type SessionOptions struct {
	RecentLines int
	EngineLog   string
}

// Outcome summarises one engine run. Recent and LogTail are only filled for a failed run.
// Errors are diagnostic; only the close code decides failure.
type Outcome struct {
	Closed   bool
	ExitCode int
	Errors   []string
	Recent   []string
	LogTail  []string
}

func (outcome Outcome) Failed() bool {
	return !outcome.Closed || outcome.ExitCode != 0
}

// Session drives a single engine run. A new Session is created for every launch so event
// handling never leaks between runs.
type Session struct {
	engine  Engine
	fs      afero.Fs
	log     *logger.Logger
	options SessionOptions
	recent  *lineRing
}

func NewSession(engine Engine, fs afero.Fs, log *logger.Logger, options SessionOptions) *Session {
	if options.RecentLines <= 0 {
		options.RecentLines = DefaultRecentLines
	}
	if options.EngineLog == "" {
		options.EngineLog = DefaultEngineLog
	}
	return &Session{
		engine:  engine,
		fs:      fs,
		log:     log,
		options: options,
		recent:  newLineRing(options.RecentLines),
	}
}

// Run launches the engine and consumes its events until the stream ends.
func (session *Session) Run(ctx context.Context, cfg Configuration) (Outcome, error) {
	events, err := session.engine.Launch(ctx, cfg)
	if err != nil {
		return Outcome{}, err
	}

	ops := session.log.Operational()
	outcome := Outcome{}
	for event := range events {
		switch event.Kind {
		case EventDebug:
			session.recent.add("[DEBUG] " + event.Text)
			ops.Debug(event.Text, "source", "engine")
		case EventData:
			session.recent.add("[DATA] " + event.Text)
			ops.Info(event.Text, "source", "engine")
		case EventProgress:
			ops.Debug("progress", "type", event.Progress.Type, "task", event.Progress.Task, "total", event.Progress.Total)
		case EventError:
			session.recent.add("[ERROR] " + event.Text)
			outcome.Errors = append(outcome.Errors, event.Text)
			ops.Error(event.Text, "source", "engine")
		case EventClose:
			outcome.Closed = true
			outcome.ExitCode = event.Code
			ops.Info("engine closed", "code", event.Code)
		}
	}

	if !outcome.Closed && len(outcome.Errors) == 0 {
		outcome.Errors = append(outcome.Errors, "engine event stream ended without a close event")
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !outcome.Closed {
		return outcome, ctxErr
	}
	if outcome.Failed() {
		session.postmortem(cfg.Root, &outcome)
	}
	return outcome, nil
}

func (session *Session) postmortem(root string, outcome *Outcome) {
	outcome.Recent = session.recent.lines()
	logPath := session.options.EngineLog
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(root, filepath.FromSlash(logPath))
	}
	tail, err := fileutils.TailLines(session.fs, logPath, session.options.RecentLines)
	if err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		session.log.Operational().Warn("could not read engine log", "path", logPath, "err", err)
	}
	outcome.LogTail = tail

	ops := session.log.Operational()
	ops.Error(fmt.Sprintf("engine exited with code %d", outcome.ExitCode))
	for _, line := range outcome.Recent {
		ops.Error(line, "source", "recent")
	}
	for _, line := range outcome.LogTail {
		ops.Error(line, "source", logPath)
	}
}

type lineRing struct {
	size  int
	items []string
}

func newLineRing(size int) *lineRing {
	return &lineRing{size: size}
}

func (ring *lineRing) add(line string) {
	if len(ring.items) == ring.size {
		ring.items = ring.items[1:]
	}
	ring.items = append(ring.items, line)
}

func (ring *lineRing) lines() []string {
	return append([]string(nil), ring.items...)
}
