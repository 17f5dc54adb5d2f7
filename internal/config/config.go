// Package config provides the configuration schema, loader, hot-reload
// watcher and backend registry for the earshot voice scheduler.
package config

import (
	"time"

	"github.com/MrWong99/earshot/pkg/voice"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the process log handler.
type LogFormat string

const (
	// LogFormatText is slog's key=value handler.
	LogFormatText LogFormat = "text"

	// LogFormatJSON is slog's JSON handler.
	LogFormatJSON LogFormat = "json"

	// LogFormatPretty is a colourised console handler for interactive use.
	LogFormatPretty LogFormat = "pretty"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatPretty:
		return true
	}
	return false
}

// Output selects where a backend renders audio.
type Output string

const (
	// OutputSpeaker plays through the default audio device.
	OutputSpeaker Output = "speaker"

	// OutputNone mixes without a device. Useful for headless runs.
	OutputNone Output = "none"
)

// IsValid reports whether o is a recognised output.
func (o Output) IsValid() bool {
	return o == OutputSpeaker || o == OutputNone
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Worker     WorkerConfig     `yaml:"worker" envPrefix:"WORKER_"`
	Backend    BackendConfig    `yaml:"backend" envPrefix:"BACKEND_"`
	Simulation SimulationConfig `yaml:"simulation" envPrefix:"SIMULATION_"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health/metrics server (e.g., ":9090").
	// Empty disables the server.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`

	// LogFormat selects the log handler.
	LogFormat LogFormat `yaml:"log_format" env:"LOG_FORMAT"`
}

// SchedulerConfig tunes the voice scheduler.
type SchedulerConfig struct {
	// MaxVoices is the number of simultaneously active voices. Hot-reloadable.
	MaxVoices int `yaml:"max_voices" env:"MAX_VOICES"`

	// TickRate is the number of scheduler ticks per second.
	TickRate float64 `yaml:"tick_rate" env:"TICK_RATE"`

	// LoadTimeout marks entries dead when a load takes longer than this.
	// Zero waits indefinitely. Hot-reloadable.
	LoadTimeout time.Duration `yaml:"load_timeout" env:"LOAD_TIMEOUT"`

	// SummaryInterval limits how often capacity overflow is logged.
	SummaryInterval time.Duration `yaml:"summary_interval" env:"SUMMARY_INTERVAL"`

	// Attenuation selects the distance policy. Hot-reloadable.
	Attenuation AttenuationConfig `yaml:"attenuation" envPrefix:"ATTENUATION_"`
}

// TickInterval returns the wall-clock time between ticks.
func (s SchedulerConfig) TickInterval() time.Duration {
	if s.TickRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.TickRate)
}

// AttenuationConfig names a distance attenuation model.
type AttenuationConfig struct {
	// Model is one of "linear", "inverse" or "none".
	Model string `yaml:"model" env:"MODEL"`

	// Rolloff scales the inverse model. Ignored by the others.
	Rolloff float64 `yaml:"rolloff" env:"ROLLOFF"`
}

// Attenuator builds the configured [voice.Attenuator].
func (a AttenuationConfig) Attenuator() (voice.Attenuator, error) {
	return voice.ParseAttenuator(a.Model, a.Rolloff)
}

// WorkerConfig tunes the background work queue driver.
type WorkerConfig struct {
	// SliceBudget is how long the driver runs jobs before yielding.
	SliceBudget time.Duration `yaml:"slice_budget" env:"SLICE_BUDGET"`

	// MinSleep is the minimum pause between slices.
	MinSleep time.Duration `yaml:"min_sleep" env:"MIN_SLEEP"`

	// ShutdownBudget bounds how long shutdown keeps draining released voices.
	ShutdownBudget time.Duration `yaml:"shutdown_budget" env:"SHUTDOWN_BUDGET"`
}

// BackendConfig selects and configures the voice backend.
type BackendConfig struct {
	// Name selects a factory registered in the [Registry] (e.g., "beep", "null").
	Name string `yaml:"name" env:"NAME"`

	// SampleRate is the output sample rate in Hz.
	SampleRate int `yaml:"sample_rate" env:"SAMPLE_RATE"`

	// Output selects the audio sink.
	Output Output `yaml:"output" env:"OUTPUT"`

	// Buffer is the device buffer length. Larger values trade latency for
	// fewer underruns.
	Buffer time.Duration `yaml:"buffer" env:"BUFFER"`

	// AssetDir is the root that relative sound sources are resolved against.
	// Empty means the working directory.
	AssetDir string `yaml:"asset_dir" env:"ASSET_DIR"`

	// Breaker guards voice creation.
	Breaker BreakerConfig `yaml:"breaker" envPrefix:"BREAKER_"`
}

// BreakerConfig configures the circuit breaker around voice creation.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" env:"MAX_FAILURES"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	HalfOpenMax  int           `yaml:"half_open_max" env:"HALF_OPEN_MAX"`
}

// SimulationConfig describes the demo world.
type SimulationConfig struct {
	// Seed makes the world reproducible.
	Seed uint64 `yaml:"seed" env:"SEED"`

	// Bounds is the half-width of the square the emitters wander in.
	Bounds float64 `yaml:"bounds" env:"BOUNDS"`

	Listener ListenerConfig `yaml:"listener" envPrefix:"LISTENER_"`

	// Emitters lists groups of identical emitters.
	Emitters []EmitterConfig `yaml:"emitters"`
}

// ListenerConfig describes the listener's orbit around the origin.
type ListenerConfig struct {
	OrbitRadius float64 `yaml:"orbit_radius" env:"ORBIT_RADIUS"`

	// OrbitSpeed is in radians per second.
	OrbitSpeed float64 `yaml:"orbit_speed" env:"ORBIT_SPEED"`

	Height float64 `yaml:"height" env:"HEIGHT"`
}

// EmitterConfig describes Count emitters sharing one sound.
type EmitterConfig struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`

	voice.Descriptor `yaml:",inline"`

	// Speed is the wander speed in world units per second.
	Speed float64 `yaml:"speed"`

	// DespawnChance is the probability per second that an emitter vanishes.
	DespawnChance float64 `yaml:"despawn_chance"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			LogLevel:   LogInfo,
			LogFormat:  LogFormatText,
		},
		Scheduler: SchedulerConfig{
			MaxVoices:       32,
			TickRate:        30,
			SummaryInterval: 10 * time.Second,
			Attenuation:     AttenuationConfig{Model: "linear", Rolloff: 1},
		},
		Worker: WorkerConfig{
			SliceBudget:    100 * time.Millisecond,
			MinSleep:       10 * time.Millisecond,
			ShutdownBudget: 2 * time.Second,
		},
		Backend: BackendConfig{
			Name:       "beep",
			SampleRate: 48000,
			Output:     OutputSpeaker,
			Buffer:     50 * time.Millisecond,
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
				HalfOpenMax:  3,
			},
		},
		Simulation: SimulationConfig{
			Seed:     1,
			Bounds:   100,
			Listener: ListenerConfig{OrbitRadius: 20, OrbitSpeed: 0.2, Height: 1.7},
		},
	}
}

// applyEmitterDefaults fills per-emitter fields a YAML document commonly
// omits. A zero volume or pitch is treated as unset.
func applyEmitterDefaults(cfg *Config) {
	for i := range cfg.Simulation.Emitters {
		e := &cfg.Simulation.Emitters[i]
		if e.Count == 0 {
			e.Count = 1
		}
		if e.Volume == 0 {
			e.Volume = 1
		}
		if e.Pitch == 0 {
			e.Pitch = 1
		}
	}
}
