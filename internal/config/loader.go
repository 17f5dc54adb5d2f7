package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EARSHOT_SCHEDULER_MAX_VOICES.
const EnvPrefix = "EARSHOT_"

// ValidBackendNames lists the backends shipped with earshot.
// Used by [Validate] to warn about unrecognised backend names.
var ValidBackendNames = []string{"beep", "null"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// EARSHOT_* environment overrides and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEmitterDefaults(cfg)
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBytes parses an in-memory document.
func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, pretty", cfg.Server.LogFormat))
	}

	// Scheduler
	s := cfg.Scheduler
	if s.MaxVoices < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_voices %d must be at least 1", s.MaxVoices))
	}
	if s.TickRate <= 0 || s.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("scheduler.tick_rate %.2f is out of range (0, 1000]", s.TickRate))
	}
	if s.LoadTimeout < 0 {
		errs = append(errs, fmt.Errorf("scheduler.load_timeout %v must not be negative", s.LoadTimeout))
	}
	if s.SummaryInterval < 0 {
		errs = append(errs, fmt.Errorf("scheduler.summary_interval %v must not be negative", s.SummaryInterval))
	}
	if _, err := s.Attenuation.Attenuator(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.attenuation.model: %w", err))
	}
	if s.Attenuation.Rolloff < 0 {
		errs = append(errs, fmt.Errorf("scheduler.attenuation.rolloff %.2f must not be negative", s.Attenuation.Rolloff))
	}

	// Worker
	w := cfg.Worker
	if w.SliceBudget <= 0 {
		errs = append(errs, fmt.Errorf("worker.slice_budget %v must be positive", w.SliceBudget))
	}
	if w.MinSleep < 0 {
		errs = append(errs, fmt.Errorf("worker.min_sleep %v must not be negative", w.MinSleep))
	}
	if w.ShutdownBudget < 0 {
		errs = append(errs, fmt.Errorf("worker.shutdown_budget %v must not be negative", w.ShutdownBudget))
	}

	// Backend
	b := cfg.Backend
	if b.Name == "" {
		errs = append(errs, errors.New("backend.name is required"))
	} else if !slices.Contains(ValidBackendNames, b.Name) {
		slog.Warn("unknown backend name; it must be registered before the app is built",
			"name", b.Name,
			"known", ValidBackendNames,
		)
	}
	if b.SampleRate < 8000 || b.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("backend.sample_rate %d is out of range [8000, 192000]", b.SampleRate))
	}
	if b.Output != "" && !b.Output.IsValid() {
		errs = append(errs, fmt.Errorf("backend.output %q is invalid; valid values: speaker, none", b.Output))
	}
	if b.Buffer < 0 {
		errs = append(errs, fmt.Errorf("backend.buffer %v must not be negative", b.Buffer))
	}
	if b.Breaker.MaxFailures < 0 || b.Breaker.HalfOpenMax < 0 || b.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("backend.breaker values must not be negative"))
	}

	// Simulation
	if cfg.Simulation.Bounds <= 0 {
		errs = append(errs, fmt.Errorf("simulation.bounds %.2f must be positive", cfg.Simulation.Bounds))
	}
	if len(cfg.Simulation.Emitters) == 0 {
		slog.Warn("simulation.emitters is empty; the scheduler will have nothing to voice")
	}
	seen := make(map[string]int, len(cfg.Simulation.Emitters))
	for i, e := range cfg.Simulation.Emitters {
		prefix := fmt.Sprintf("simulation.emitters[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[e.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of simulation.emitters[%d]", prefix, e.Name, prev))
			}
			seen[e.Name] = i
		}
		if e.Count < 0 {
			errs = append(errs, fmt.Errorf("%s.count %d must not be negative", prefix, e.Count))
		}
		if err := e.Descriptor.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		if e.Speed < 0 {
			errs = append(errs, fmt.Errorf("%s.speed %.2f must not be negative", prefix, e.Speed))
		}
		if e.DespawnChance < 0 {
			errs = append(errs, fmt.Errorf("%s.despawn_chance %.2f must not be negative", prefix, e.DespawnChance))
		}
	}

	return errors.Join(errs...)
}
