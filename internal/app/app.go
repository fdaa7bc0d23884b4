package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	"SIOR/internal/config"
	"SIOR/internal/display"
	"SIOR/internal/experiment"
	"SIOR/internal/input"
	"SIOR/internal/session"
	"SIOR/internal/store"
	"SIOR/internal/telemetry"
	"SIOR/internal/triallog"
)

// App runs one experiment session on the terminal
type App struct {
	config   config.Config
	settings experiment.Settings
	logger   *slog.Logger
	out      io.Writer

	keyboard *input.Keyboard
	display  *display.Terminal
	store    *store.Store
	csv      *triallog.Sink
	seq      *experiment.Sequencer

	cleanups []func()
}

// Option configures an App
type Option func(*options)

type options struct {
	in      io.Reader
	out     io.Writer
	version string
}

// WithIO replaces stdin and stdout
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.in = in
		o.out = out
	}
}

// WithVersion sets the version reported to telemetry
func WithVersion(v string) Option {
	return func(o *options) {
		o.version = v
	}
}

// New validates cfg and wires the session. Any failure here happens before
// the first trial.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{in: os.Stdin, out: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	settings, err := experiment.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, settings: settings, out: o.out}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	logger, closeLog, err := telemetry.InitLogger(cfg.LogsDir(), cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.cleanups = append(a.cleanups, func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log: %v\n", err)
		}
	})

	deps := experiment.Deps{Logger: logger}

	if cfg.Telemetry.Enabled {
		tracer, meter, shutdown, err := telemetry.InitTelemetry(context.Background(), cfg.LogsDir(), o.version)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.cleanups = append(a.cleanups, shutdown)
		deps.Tracer = tracer
		deps.Meter = meter
	} else {
		deps.Tracer = otel.Tracer(telemetry.ServiceName)
		deps.Meter = otel.Meter(telemetry.ServiceName)
	}

	sinkOpts := []triallog.Option{triallog.WithLogger(logger)}
	if cfg.Archive.Enabled {
		sinkOpts = append(sinkOpts, triallog.WithArchive(cfg.ArchiveDir(), cfg.Archive.Compress))
	}
	a.csv = triallog.NewSink(cfg.LogPath(), sinkOpts...)
	deps.Sink = a.csv

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.StorePath(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.store = st
		a.cleanups = append(a.cleanups, func() {
			if err := st.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		})
		deps.Archives = append(deps.Archives, st)
	}

	a.display = display.NewTerminal(o.out, settings.Slots, settings.LeftKey, settings.RightKey)
	deps.Presenter = a.display
	deps.Highlighter = a.display
	deps.Status = a.display

	a.seq, err = experiment.NewSequencer(settings, deps)
	if err != nil {
		return nil, err
	}

	a.keyboard, err = input.NewKeyboard(o.in, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	// the terminal must be restored before anything else is torn down
	a.cleanups = append(a.cleanups, func() {
		if err := a.keyboard.Close(); err != nil {
			logger.Error("failed to restore terminal", "error", err)
		}
	})

	if cfg.Debug {
		logger.Debug("debug mode enabled")
	}
	logger.Info("session created",
		"session_id", a.seq.Session().ID,
		"agent_kind", settings.AgentKind,
		"max_trials", settings.MaxTrials,
		"log_path", cfg.LogPath(),
	)

	ok = true
	return a, nil
}

// Session returns the session being run
func (a *App) Session() *session.Session {
	return a.seq.Session()
}

// Run drives the sequencer from a fixed-rate ticker until the session ends.
// Cancelling ctx or closing the input aborts the session.
func (a *App) Run(ctx context.Context) error {
	a.display.Intro(a.settings.AgentKind, a.settings.MaxTrials, a.settings.StartKey, a.settings.AbortKey)

	ticker := time.NewTicker(time.Second / time.Duration(a.config.TickRateHz))
	defer ticker.Stop()

	start := time.Now()
	inputDone := a.keyboard.Done()
	inputClosed := false

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("interrupted")
			a.seq.Abort(context.Background())
			return a.finish()
		case <-inputDone:
			inputClosed = true
			inputDone = nil
			continue
		case <-ticker.C:
		}

		now := time.Since(start)
		keys := a.keyboard.Drain()
		interrupted := false
		for i, k := range keys {
			if k == input.KeyInterrupt {
				// keys typed before Ctrl-C still count
				keys = keys[:i]
				interrupted = true
				break
			}
		}

		a.display.Tick(now)
		phase, err := a.seq.Tick(ctx, now, keys)
		if err != nil {
			a.logger.Error("session failed", "error", err)
			return err
		}
		if interrupted {
			a.seq.Abort(ctx)
			return a.finish()
		}
		if phase.Terminal() {
			return a.finish()
		}
		if inputClosed {
			a.logger.Warn("input closed, aborting session")
			a.seq.Abort(ctx)
			return a.finish()
		}
	}
}

func (a *App) finish() error {
	if err := a.seq.Err(); err != nil {
		return err
	}
	sess := a.seq.Session()
	if sess.Status == session.StatusFinished {
		fmt.Fprintf(a.out, "Log saved to: %s\r\n", a.csv.Path())
	}
	fmt.Fprintf(a.out, "Session %s %s after %d of %d trials\r\n", sess.ID, sess.Status, sess.TrialCount, sess.MaxTrials)
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
