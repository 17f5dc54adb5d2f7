package config_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":8081"
  log_level: debug
  log_format: json

scheduler:
  max_voices: 8
  tick_rate: 20
  load_timeout: 2s
  attenuation:
    model: inverse
    rolloff: 1.5

worker:
  slice_budget: 50ms

backend:
  name: "null"
  sample_rate: 44100
  output: none

simulation:
  seed: 7
  bounds: 60
  listener:
    orbit_radius: 10
  emitters:
    - name: campfire
      count: 4
      source: tone:220
      loop: true
      max_distance: 30
    - name: bird
      source: sounds/bird.wav
      volume: 0.5
      pitch: 1.2
      min_distance: 2
      max_distance: 25
      speed: 4
      despawn_chance: 0.1
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8081" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Scheduler.MaxVoices != 8 || cfg.Scheduler.TickRate != 20 || cfg.Scheduler.LoadTimeout != 2*time.Second {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.Attenuation.Model != "inverse" || cfg.Scheduler.Attenuation.Rolloff != 1.5 {
		t.Errorf("attenuation = %+v", cfg.Scheduler.Attenuation)
	}
	if cfg.Worker.SliceBudget != 50*time.Millisecond {
		t.Errorf("slice_budget = %v", cfg.Worker.SliceBudget)
	}
	if cfg.Backend.Name != "null" || cfg.Backend.Output != config.OutputNone || cfg.Backend.SampleRate != 44100 {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if len(cfg.Simulation.Emitters) != 2 {
		t.Fatalf("emitters = %d, want 2", len(cfg.Simulation.Emitters))
	}
	bird := cfg.Simulation.Emitters[1]
	if bird.Source != "sounds/bird.wav" || bird.Volume != 0.5 || bird.Pitch != 1.2 || bird.MinDistance != 2 {
		t.Errorf("bird = %+v", bird)
	}
}

func TestLoadFromReader_DefaultsFillGaps(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := config.Default()

	// Absent from the document, so the defaults survive.
	if cfg.Worker.MinSleep != def.Worker.MinSleep {
		t.Errorf("min_sleep = %v, want default %v", cfg.Worker.MinSleep, def.Worker.MinSleep)
	}
	if cfg.Backend.Breaker != def.Backend.Breaker {
		t.Errorf("breaker = %+v, want default %+v", cfg.Backend.Breaker, def.Backend.Breaker)
	}
	if cfg.Simulation.Listener.Height != def.Simulation.Listener.Height {
		t.Errorf("listener height = %v, want default", cfg.Simulation.Listener.Height)
	}

	fire := cfg.Simulation.Emitters[0]
	if fire.Volume != 1 || fire.Pitch != 1 {
		t.Errorf("campfire volume/pitch = %v/%v, want 1/1", fire.Volume, fire.Pitch)
	}
	if bird := cfg.Simulation.Emitters[1]; bird.Count != 1 {
		t.Errorf("bird count = %d, want 1", bird.Count)
	}
}

func TestLoadFromReader_EmptyDocumentUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scheduler.MaxVoices != config.Default().Scheduler.MaxVoices {
		t.Errorf("max_voices = %d", cfg.Scheduler.MaxVoices)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("scheduler:\n  max_voicez: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_EnvOverrides(t *testing.T) {
	// t.Setenv forbids t.Parallel.
	t.Setenv("EARSHOT_SCHEDULER_MAX_VOICES", "3")
	t.Setenv("EARSHOT_SERVER_LOG_LEVEL", "warn")
	t.Setenv("EARSHOT_SCHEDULER_ATTENUATION_MODEL", "none")
	t.Setenv("EARSHOT_BACKEND_BREAKER_RESET_TIMEOUT", "5s")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scheduler.MaxVoices != 3 {
		t.Errorf("max_voices = %d, want 3 from environment", cfg.Scheduler.MaxVoices)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level = %q, want warn", cfg.Server.LogLevel)
	}
	if cfg.Scheduler.Attenuation.Model != "none" {
		t.Errorf("attenuation.model = %q, want none", cfg.Scheduler.Attenuation.Model)
	}
	if cfg.Backend.Breaker.ResetTimeout != 5*time.Second {
		t.Errorf("breaker.reset_timeout = %v, want 5s", cfg.Backend.Breaker.ResetTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "earshot.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Simulation.Seed != 7 {
		t.Errorf("seed = %d, want 7", cfg.Simulation.Seed)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"bad log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"bad log format", func(c *config.Config) { c.Server.LogFormat = "xml" }, "server.log_format"},
		{"zero max voices", func(c *config.Config) { c.Scheduler.MaxVoices = 0 }, "scheduler.max_voices"},
		{"zero tick rate", func(c *config.Config) { c.Scheduler.TickRate = 0 }, "scheduler.tick_rate"},
		{"negative load timeout", func(c *config.Config) { c.Scheduler.LoadTimeout = -time.Second }, "scheduler.load_timeout"},
		{"unknown attenuation", func(c *config.Config) { c.Scheduler.Attenuation.Model = "cubic" }, "scheduler.attenuation.model"},
		{"zero slice", func(c *config.Config) { c.Worker.SliceBudget = 0 }, "worker.slice_budget"},
		{"missing backend", func(c *config.Config) { c.Backend.Name = "" }, "backend.name"},
		{"low sample rate", func(c *config.Config) { c.Backend.SampleRate = 100 }, "backend.sample_rate"},
		{"bad output", func(c *config.Config) { c.Backend.Output = "jack" }, "backend.output"},
		{"negative breaker", func(c *config.Config) { c.Backend.Breaker.MaxFailures = -1 }, "backend.breaker"},
		{"zero bounds", func(c *config.Config) { c.Simulation.Bounds = 0 }, "simulation.bounds"},
		{"emitter without name", func(c *config.Config) {
			c.Simulation.Emitters = []config.EmitterConfig{validEmitter("")}
		}, "simulation.emitters[0].name"},
		{"duplicate emitter", func(c *config.Config) {
			c.Simulation.Emitters = []config.EmitterConfig{validEmitter("a"), validEmitter("a")}
		}, "duplicate"},
		{"emitter without range", func(c *config.Config) {
			e := validEmitter("a")
			e.MaxDistance = 0
			c.Simulation.Emitters = []config.EmitterConfig{e}
		}, "max_distance"},
		{"negative despawn", func(c *config.Config) {
			e := validEmitter("a")
			e.DespawnChance = -1
			c.Simulation.Emitters = []config.EmitterConfig{e}
		}, "despawn_chance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Scheduler.MaxVoices = 0
	cfg.Backend.SampleRate = 1
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"max_voices", "sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q is missing %q", err, want)
		}
	}
}

func validEmitter(name string) config.EmitterConfig {
	e := config.EmitterConfig{Name: name, Count: 1}
	e.Source = "tone:440"
	e.Volume = 1
	e.Pitch = 1
	e.MaxDistance = 10
	return e
}
