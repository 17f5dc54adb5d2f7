package config

import (
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MaxVoicesChanged bool
	NewMaxVoices     int

	AttenuationChanged bool
	NewAttenuation     AttenuationConfig

	LoadTimeoutChanged bool
	NewLoadTimeout     time.Duration

	// RestartRequired names the top-level sections whose changes are
	// ignored until the process restarts.
	RestartRequired []string
}

// Empty reports whether d carries no reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MaxVoicesChanged && !d.AttenuationChanged && !d.LoadTimeoutChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Scheduler.MaxVoices != new.Scheduler.MaxVoices {
		d.MaxVoicesChanged = true
		d.NewMaxVoices = new.Scheduler.MaxVoices
	}
	if old.Scheduler.Attenuation != new.Scheduler.Attenuation {
		d.AttenuationChanged = true
		d.NewAttenuation = new.Scheduler.Attenuation
	}
	if old.Scheduler.LoadTimeout != new.Scheduler.LoadTimeout {
		d.LoadTimeoutChanged = true
		d.NewLoadTimeout = new.Scheduler.LoadTimeout
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Scheduler.TickRate != new.Scheduler.TickRate || old.Scheduler.SummaryInterval != new.Scheduler.SummaryInterval {
		d.RestartRequired = append(d.RestartRequired, "scheduler")
	}
	if old.Worker != new.Worker {
		d.RestartRequired = append(d.RestartRequired, "worker")
	}
	if old.Backend != new.Backend {
		d.RestartRequired = append(d.RestartRequired, "backend")
	}
	if !simulationEqual(old.Simulation, new.Simulation) {
		d.RestartRequired = append(d.RestartRequired, "simulation")
	}
	return d
}

func simulationEqual(a, b SimulationConfig) bool {
	return a.Seed == b.Seed &&
		a.Bounds == b.Bounds &&
		a.Listener == b.Listener &&
		slices.Equal(a.Emitters, b.Emitters)
}
