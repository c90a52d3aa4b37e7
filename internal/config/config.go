package config

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/hardware"
	"codeberg.org/mutker/soilctl/internal/history"
	"codeberg.org/mutker/soilctl/internal/watermark"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile = "/etc/soilctl.toml"
	DefaultEnvPrefix  = "SOILCTL"
	DefaultInterval   = 15 * time.Second
	DefaultLogLevel   = LogLevelInfo
	DefaultBackend    = hardware.BackendPeriph

	MinInterval = time.Second
)

type Config struct {
	Interval    time.Duration     `mapstructure:"interval"`
	LogLevel    string            `mapstructure:"log_level"`
	Backend     string            `mapstructure:"backend"`
	Dump        bool              `mapstructure:"dump"`
	Pins        PinsConfig        `mapstructure:"pins"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Channels    []ChannelConfig   `mapstructure:"channels"`
	History     HistoryConfig     `mapstructure:"history"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`

	// File is the configuration file actually read, empty if none.
	File string `mapstructure:"-"`
}

type PinsConfig struct {
	Select1    string `mapstructure:"select1"`
	Select2    string `mapstructure:"select2"`
	Select3    string `mapstructure:"select3"`
	Enable     string `mapstructure:"enable"`
	ExciteA    string `mapstructure:"excite_a"`
	ExciteB    string `mapstructure:"excite_b"`
	I2CBus     string `mapstructure:"i2c_bus"`
	I2CAddress uint16 `mapstructure:"i2c_address"`
	ADCChannel int    `mapstructure:"adc_channel"`
}

type CalibrationConfig struct {
	SupplyVoltage       float64       `mapstructure:"supply_voltage"`
	ReferenceResistance float64       `mapstructure:"reference_resistance"`
	Repetitions         int           `mapstructure:"repetitions"`
	ADCFullScale        float64       `mapstructure:"adc_full_scale"`
	Settle              time.Duration `mapstructure:"settle"`
	ExcitationSettle    time.Duration `mapstructure:"excitation_settle"`
	ShortResistance     float64       `mapstructure:"short_resistance"`
	OpenResistance      float64       `mapstructure:"open_resistance"`
	ShortCentibar       int           `mapstructure:"short_centibar"`
	OpenCentibar        int           `mapstructure:"open_centibar"`
	CalibrationFactor   float64       `mapstructure:"calibration_factor"`
}

// ChannelConfig wires one multiplexer input. Resistance only applies to the
// simulated backend.
type ChannelConfig struct {
	Index      int      `mapstructure:"index"`
	Outputs    []string `mapstructure:"outputs"`
	Resistance float64  `mapstructure:"resistance"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Database     string        `mapstructure:"database"`
	BackupDir    string        `mapstructure:"backup_dir"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type MetricsConfig struct {
	// Listen is the address for /metrics; empty disables the endpoint.
	Listen string `mapstructure:"listen"`
}

// Binding is a validated channel and the outputs published for it.
type Binding struct {
	Channel watermark.Channel
	Kinds   []watermark.Kind
}

func setDefaults(v *viper.Viper) {
	cal := watermark.DefaultCalibration()
	hw := hardware.DefaultConfig()
	hist := history.DefaultConfig()

	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel.String())
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("dump", false)

	v.SetDefault("pins.select1", hw.Select[0])
	v.SetDefault("pins.select2", hw.Select[1])
	v.SetDefault("pins.select3", hw.Select[2])
	v.SetDefault("pins.enable", hw.Enable)
	v.SetDefault("pins.excite_a", hw.ExciteA)
	v.SetDefault("pins.excite_b", hw.ExciteB)
	v.SetDefault("pins.i2c_bus", hw.I2CBus)
	v.SetDefault("pins.i2c_address", hw.I2CAddress)
	v.SetDefault("pins.adc_channel", hw.ADCChannel)

	v.SetDefault("calibration.supply_voltage", cal.SupplyVoltage)
	v.SetDefault("calibration.reference_resistance", cal.ReferenceResistance)
	v.SetDefault("calibration.repetitions", cal.Repetitions)
	v.SetDefault("calibration.adc_full_scale", cal.ADCFullScale)
	v.SetDefault("calibration.settle", cal.Settle)
	v.SetDefault("calibration.excitation_settle", cal.ExcitationSettle)
	v.SetDefault("calibration.short_resistance", cal.ShortResistance)
	v.SetDefault("calibration.open_resistance", cal.OpenResistance)
	v.SetDefault("calibration.short_centibar", cal.ShortCentibar)
	v.SetDefault("calibration.open_centibar", cal.OpenCentibar)
	v.SetDefault("calibration.calibration_factor", cal.CalibrationFactor)

	v.SetDefault("history.enabled", hist.Enabled)
	v.SetDefault("history.database", hist.DBPath)
	v.SetDefault("history.backup_dir", hist.BackupDir)
	v.SetDefault("history.batch_size", hist.BatchSize)
	v.SetDefault("history.batch_timeout", hist.BatchTimeout)

	v.SetDefault("metrics.listen", "")
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("soilctl", pflag.ContinueOnError)
	flags.StringP("config", "c", "", "Path to configuration file")
	flags.DurationP("interval", "i", DefaultInterval, "Interval between measurement sweeps")
	flags.StringP("log-level", "l", DefaultLogLevel.String(), "Log level (debug, info, warning, error)")
	flags.String("backend", DefaultBackend, "Hardware backend (periph, simulated)")
	flags.Bool("dump", false, "Print the sensor configuration and exit")
	return flags
}

// Load reads defaults, the configuration file, the environment and args, in
// increasing order of precedence, and validates the result.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	for key, flag := range map[string]string{
		"interval":  "interval",
		"log_level": "log-level",
		"backend":   "backend",
		"dump":      "dump",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path, explicit := configPath(flags, o)
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		// A missing default file is fine; anything else is not.
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, errFactory.WithData(errors.ErrReadConfig, struct {
				Path  string
				Error string
			}{path, err.Error()})
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configPath(flags *pflag.FlagSet, o options) (string, bool) {
	if p, _ := flags.GetString("config"); p != "" {
		return p, true
	}
	if o.configPath != "" {
		return o.configPath, true
	}
	if p := os.Getenv(o.envPrefix + "_CONFIG"); p != "" {
		return p, true
	}
	return DefaultConfigFile, false
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Interval < MinInterval {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	switch c.Backend {
	case hardware.BackendPeriph, hardware.BackendSimulated:
	default:
		return errFactory.WithData(errors.ErrInvalidBackend, c.Backend)
	}

	if err := c.SensorCalibration().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if _, err := c.Bindings(); err != nil {
		return err
	}
	if err := c.HistoryOptions().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) SensorCalibration() watermark.Calibration {
	cal := watermark.DefaultCalibration()
	cc := c.Calibration

	cal.SupplyVoltage = cc.SupplyVoltage
	cal.ReferenceResistance = cc.ReferenceResistance
	cal.Repetitions = cc.Repetitions
	cal.ADCFullScale = cc.ADCFullScale
	cal.Settle = cc.Settle
	cal.ExcitationSettle = cc.ExcitationSettle
	cal.ShortResistance = cc.ShortResistance
	cal.OpenResistance = cc.OpenResistance
	cal.ShortCentibar = cc.ShortCentibar
	cal.OpenCentibar = cc.OpenCentibar
	cal.CalibrationFactor = cc.CalibrationFactor

	return cal
}

func (c *Config) HardwareConfig() hardware.Config {
	p := c.Pins
	hw := hardware.Config{
		Select:        [3]string{p.Select1, p.Select2, p.Select3},
		Enable:        p.Enable,
		ExciteA:       p.ExciteA,
		ExciteB:       p.ExciteB,
		I2CBus:        p.I2CBus,
		I2CAddress:    p.I2CAddress,
		ADCChannel:    p.ADCChannel,
		SupplyVoltage: c.Calibration.SupplyVoltage,
		FullScale:     c.Calibration.ADCFullScale,
	}

	for _, ch := range c.Channels {
		if ch.Resistance > 0 {
			if hw.Resistances == nil {
				hw.Resistances = make(map[int]float64)
			}
			hw.Resistances[ch.Index] = ch.Resistance
		}
	}

	return hw
}

func (c *Config) HistoryOptions() history.Config {
	return history.Config{
		Enabled:      c.History.Enabled,
		DBPath:       c.History.Database,
		BackupDir:    c.History.BackupDir,
		BatchSize:    c.History.BatchSize,
		BatchTimeout: c.History.BatchTimeout,
	}
}

// Bindings validates the channel table. A channel may appear once; each
// output must exist and match the sensor wired to that channel.
func (c *Config) Bindings() ([]Binding, error) {
	errFactory := errors.New()

	seen := make(map[int]bool, len(c.Channels))
	bindings := make([]Binding, 0, len(c.Channels))

	for _, cc := range c.Channels {
		ch := watermark.Channel(cc.Index)
		if !ch.Valid() || seen[cc.Index] {
			return nil, errFactory.WithData(errors.ErrInvalidChannel, cc.Index)
		}
		seen[cc.Index] = true

		b := Binding{Channel: ch}
		for _, name := range cc.Outputs {
			kind, err := watermark.ParseKind(name)
			if err != nil {
				return nil, err
			}
			if (kind == watermark.KindTemperature && !ch.IsTemperature()) ||
				(kind == watermark.KindTension && ch.IsTemperature()) {
				return nil, errFactory.WithData(errors.ErrInvalidOutput, struct {
					Channel int
					Output  string
				}{cc.Index, name})
			}
			b.Kinds = append(b.Kinds, kind)
		}
		bindings = append(bindings, b)
	}

	return bindings, nil
}
