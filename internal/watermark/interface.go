package watermark

import (
	"strings"
	"time"

	"codeberg.org/mutker/soilctl/internal/errors"
)

// MaxChannels is the number of multiplexer inputs.
const MaxChannels = 8

// Channel is a multiplexer input. Even channels carry temperature sensors,
// odd channels carry tension sensors.
type Channel int

func (c Channel) Valid() bool {
	return c >= 0 && c < MaxChannels
}

// IsTemperature reports whether the channel is wired to a temperature sensor.
func (c Channel) IsTemperature() bool {
	return c%2 == 0
}

// Line identifies one of the six digital control lines.
type Line int

const (
	LineSelect1 Line = iota
	LineSelect2
	LineSelect3
	LineMuxEnable // active low
	LineExciteA
	LineExciteB
)

var lineNames = [...]string{"select1", "select2", "select3", "mux_enable", "excite_a", "excite_b"}

func (l Line) String() string {
	if l < 0 || int(l) >= len(lineNames) {
		return "unknown"
	}
	return lineNames[l]
}

// Lines lists every control line in declaration order.
func Lines() []Line {
	return []Line{LineSelect1, LineSelect2, LineSelect3, LineMuxEnable, LineExciteA, LineExciteB}
}

type Level bool

const (
	Low  Level = false
	High Level = true
)

// Pins is the hardware the sequencer drives. Implementations must return
// quickly; none of the calls may wait on the settle delays.
type Pins interface {
	Write(line Line, level Level) error
	// ReadAnalog returns one raw conversion from the analog input.
	ReadAnalog() (int, error)
}

// Kind is one of the five outputs a channel can publish.
type Kind int

const (
	KindTension Kind = iota
	KindTemperature
	KindResistance
	KindResistanceA
	KindResistanceB
)

var kindMeta = [...]struct {
	name     string
	unit     string
	decimals int
}{
	KindTension:     {"soil_water_tension", "cbar", 0},
	KindTemperature: {"soil_temperature", "°C", 1},
	KindResistance:  {"resistance", "Ω", 1},
	KindResistanceA: {"resistance_a", "Ω", 1},
	KindResistanceB: {"resistance_b", "Ω", 1},
}

// Kinds lists every output kind.
func Kinds() []Kind {
	return []Kind{KindTension, KindTemperature, KindResistance, KindResistanceA, KindResistanceB}
}

func (k Kind) valid() bool {
	return k >= 0 && int(k) < len(kindMeta)
}

func (k Kind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return kindMeta[k].name
}

// Unit returns the unit of measurement for the output.
func (k Kind) Unit() string {
	if !k.valid() {
		return ""
	}
	return kindMeta[k].unit
}

// Decimals returns the number of decimals worth reporting.
func (k Kind) Decimals() int {
	if !k.valid() {
		return 0
	}
	return kindMeta[k].decimals
}

// ParseKind maps an output name to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range Kinds() {
		if k.String() == name {
			return k, nil
		}
	}

	return 0, errors.New().WithData(ErrInvalidKind, name)
}

// Reading is a single published value. Valid is false when the channel
// produced no data this cycle; Value is NaN in that case.
type Reading struct {
	Channel Channel
	Kind    Kind
	Value   float64
	Valid   bool
	Time    time.Time
}

// Sink receives published readings.
type Sink interface {
	Publish(r Reading)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(r Reading)

func (f SinkFunc) Publish(r Reading) {
	f(r)
}

// Observer is notified of sweep lifecycle events.
type Observer interface {
	SweepStarted()
	SweepCompleted(d time.Duration)
	UpdateRejected()
	SampleInvalid(ch Channel)
}

type noopObserver struct{}

func (noopObserver) SweepStarted()                {}
func (noopObserver) SweepCompleted(time.Duration) {}
func (noopObserver) UpdateRejected()              {}
func (noopObserver) SampleInvalid(Channel)        {}
