package history

import (
	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
)

type service struct {
	repo Repository
	log  logger.Logger
}

type noopRecorder struct{}

// NewService returns a Recorder backed by SQLite, or a no-op Recorder when
// history is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Reading history disabled, using no-op recorder")
		return noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return newService(repo, log), nil
}

func newService(repo Repository, log logger.Logger) *service {
	return &service{repo: repo, log: log}
}

// Publish queues a reading. Storage errors are logged, never returned to the
// sequencer.
func (s *service) Publish(reading watermark.Reading) {
	if err := s.repo.Record(reading); err != nil {
		ev := s.log.Warn()
		if e, ok := err.(errors.Error); ok {
			ev = s.log.ErrorWithCode(e)
		}
		ev.Int("channel", int(reading.Channel)).
			Str("kind", reading.Kind.String()).
			Msg("Failed to record reading")
	}
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (noopRecorder) Publish(watermark.Reading) {}

func (noopRecorder) Close() error {
	return nil
}
