package history

import "codeberg.org/mutker/soilctl/internal/watermark"

// Recorder keeps every published reading for later analysis.
type Recorder interface {
	watermark.Sink
	Close() error
}

// Repository is the storage behind a Recorder.
type Repository interface {
	Record(reading watermark.Reading) error
	Flush() error
	Close() error
}
