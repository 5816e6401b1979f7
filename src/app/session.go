package app

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/HeapDB/src"
	"github.com/Blackdeer1524/HeapDB/src/cfg"
	"github.com/Blackdeer1524/HeapDB/src/storage/engine"
)

// Session is what an Action works with: an engine with the manifest's
// tables open.
type Session struct {
	Engine *engine.Engine
	Fs     afero.Fs
	Out    io.Writer
	Log    src.Logger
}

type Action func(ctx context.Context, s Session) error

// EngineEntrypoint opens the database described by a manifest and runs an
// action against it. Without an action it runs the background jobs until
// the context is done.
type EngineEntrypoint struct {
	ConfigPath   string
	ManifestPath string
	Action       Action

	// Fs defaults to the OS file system, Out to stdout.
	Fs  afero.Fs
	Out io.Writer

	cfg    cfg.Config
	log    src.Logger
	engine *engine.Engine
}

var _ Entrypoint = &EngineEntrypoint{}

func (e *EngineEntrypoint) Init(_ context.Context) error {
	config, err := cfg.Load(e.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	e.cfg = config

	log, err := NewLogger(config.Environment)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	e.log = log

	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.Out == nil {
		e.Out = os.Stdout
	}

	eng, err := engine.New(config, e.Fs, log)
	if err != nil {
		return err
	}

	if _, err := eng.OpenManifest(e.ManifestPath); err != nil {
		return multierr.Append(err, eng.Close())
	}
	e.engine = eng

	return nil
}

func (e *EngineEntrypoint) Run(ctx context.Context) error {
	if e.Action != nil {
		return e.Action(ctx, Session{
			Engine: e.engine,
			Fs:     e.Fs,
			Out:    e.Out,
			Log:    e.log,
		})
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}
	e.log.Infow("serving",
		"manifest", e.ManifestPath,
		"flush_schedule", e.cfg.FlushSchedule,
		"analyze_schedule", e.cfg.AnalyzeSchedule,
	)

	<-ctx.Done()

	return nil
}

func (e *EngineEntrypoint) Close() error {
	var err error
	if e.engine != nil {
		err = e.engine.Close()
		e.engine = nil
	}

	if e.log != nil {
		if err != nil {
			e.log.Errorw("failed to close engine", "error", err)
		}
		// stderr cannot be synced on every platform
		_ = e.log.Sync()
	}

	return err
}
