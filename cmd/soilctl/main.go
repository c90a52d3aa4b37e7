package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/soilctl/internal/config"
	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/hardware"
	"codeberg.org/mutker/soilctl/internal/history"
	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/observability"
	"codeberg.org/mutker/soilctl/internal/pid"
	"codeberg.org/mutker/soilctl/internal/scheduler"
	"codeberg.org/mutker/soilctl/internal/watermark"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	cfg      *config.Config
	backend  hardware.Backend
	seq      *watermark.Sequencer
	metrics  *observability.Metrics
	readings *fanout
	recorder history.Recorder
	server   *observability.Server

	hardwareReady bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	logger.Debug().Str("file", cfg.File).Msg("Config loaded")

	a, err := newApp(cfg)
	if err != nil {
		logFailure(err, "Failed to initialize application")
		return 1
	}

	if cfg.Dump {
		out, err := a.seq.Dump()
		if err != nil {
			logFailure(err, "Failed to dump configuration")
			return 1
		}
		fmt.Print(out)
		return 0
	}

	if err := pid.Write(); err != nil {
		logFailure(err, "Failed to write PID file")
		return 1
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	code := 0
	if err := a.start(); err != nil {
		logFailure(err, "Failed to start")
		code = 1
	} else if err := a.loop(ctx); err != nil {
		logFailure(errors.New().Wrap(errors.ErrMainLoop, err), "Error in main loop")
		code = 1
	}

	a.cleanup()
	return code
}

func newApp(cfg *config.Config) (*app, error) {
	bindings, err := cfg.Bindings()
	if err != nil {
		return nil, err
	}

	backend, err := hardware.New(cfg.Backend, cfg.HardwareConfig(), logger.Default())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		backend:  backend,
		metrics:  observability.New(),
		readings: &fanout{},
	}

	a.seq, err = watermark.New(backend, cfg.SensorCalibration(),
		watermark.WithLogger(logger.Default()),
		watermark.WithObserver(a.metrics),
	)
	if err != nil {
		return nil, err
	}

	if len(bindings) == 0 {
		logger.Warn().Msg("No channels configured, sweeps will be empty")
	}
	for _, b := range bindings {
		if err := a.seq.Activate(b.Channel); err != nil {
			return nil, err
		}
		for _, kind := range b.Kinds {
			if err := a.seq.Bind(b.Channel, kind, a.readings); err != nil {
				return nil, err
			}
		}
		logger.Debug().
			Int("channel", int(b.Channel)).
			Int("outputs", len(b.Kinds)).
			Msg("Channel registered")
	}

	return a, nil
}

// start brings up the hardware and every optional sink.
func (a *app) start() error {
	errFactory := errors.New()

	if err := a.backend.Initialize(); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	a.hardwareReady = true

	if err := a.seq.Setup(); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	a.readings.Attach(logSink{log: logger.Default()})
	a.readings.Attach(a.metrics)

	recorder, err := history.NewService(a.cfg.HistoryOptions(), logger.Default())
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	a.recorder = recorder
	a.readings.Attach(recorder)

	if a.cfg.Metrics.Listen != "" {
		if a.server, err = observability.Start(a.cfg.Metrics.Listen, a.metrics, logger.Default()); err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
	}

	logger.Info().
		Str("backend", a.backend.Name()).
		Dur("interval", a.cfg.Interval).
		Interface("channels", a.seq.Active()).
		Msg("Started")

	return nil
}

func (a *app) loop(ctx context.Context) error {
	loop, err := scheduler.New(a.seq, a.cfg.Interval, logger.Default())
	if err != nil {
		return err
	}
	return loop.Run(ctx)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// cleanup leaves the sensor lines unpowered and closes the sinks. It runs
// whether or not start succeeded.
func (a *app) cleanup() {
	if a.hardwareReady {
		if err := a.seq.Shutdown(); err != nil {
			logFailure(err, "Failed to drive sensor lines to safe state")
		}
		if err := a.backend.Shutdown(); err != nil {
			logFailure(err, "Failed to release hardware")
		}
	}

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			logFailure(err, "Failed to close reading history")
		}
	}

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			logFailure(err, "Failed to stop metrics server")
		}
	}

	logger.Info().Msg("Exiting...")
}

func logFailure(err error, msg string) {
	if e, ok := err.(errors.Error); ok {
		logger.ErrorWithCode(e).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
