package app

import (
	"context"
	"log/slog"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/scheduler"
)

// Status is the /statusz document.
type Status struct {
	Tick       scheduler.TickStats   `json:"last_tick"`
	MaxVoices  int                   `json:"max_voices"`
	Active     int                   `json:"active"`
	InFlight   int                   `json:"in_flight"`
	Breaker    string                `json:"breaker"`
	WorkQueue  int                   `json:"work_queue"`
	Population int                   `json:"population"`
	Voiced     int                   `json:"voiced"`
	Despawns   uint64                `json:"despawns"`
	Entries    []scheduler.EntryInfo `json:"entries"`
}

// Status captures a snapshot on the simulation goroutine and waits for it.
// It fails with ctx's error when the tick loop is not running.
func (a *App) Status(ctx context.Context) (any, error) {
	ch := make(chan Status, 1)
	a.main.Enqueue(func() { ch <- a.snapshot() })
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *App) snapshot() Status {
	return Status{
		Tick:       a.sched.Stats(),
		MaxVoices:  a.sched.MaxVoices(),
		Active:     a.sched.Active(),
		InFlight:   a.sched.InFlight(),
		Breaker:    a.breaker.State().String(),
		WorkQueue:  a.work.Len(),
		Population: a.world.Population(),
		Voiced:     a.world.Voiced(),
		Despawns:   a.world.Despawns(),
		Entries:    a.sched.Entries(),
	}
}

// Reload applies the hot-reloadable differences between old and new. The
// log level changes immediately; scheduler settings are posted to the
// simulation goroutine and take effect on the next tick. It is the config
// watcher's callback and may be called from any goroutine.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	for _, section := range d.RestartRequired {
		slog.Warn("app: config change needs a restart to apply", "section", section)
	}
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(observe.ParseLevel(string(d.NewLogLevel)))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}

	a.main.Enqueue(func() {
		if d.MaxVoicesChanged {
			a.sched.SetMaxVoices(d.NewMaxVoices)
			slog.Info("app: max voices changed", "max_voices", d.NewMaxVoices)
		}
		if d.AttenuationChanged {
			att, err := d.NewAttenuation.Attenuator()
			if err != nil {
				// Validate rejects unknown models before a reload gets here.
				slog.Warn("app: attenuation unchanged", "err", err)
			} else {
				a.sched.SetAttenuator(att)
				slog.Info("app: attenuation changed", "model", d.NewAttenuation.Model)
			}
		}
		if d.LoadTimeoutChanged {
			a.sched.SetLoadTimeout(d.NewLoadTimeout)
			slog.Info("app: load timeout changed", "load_timeout", d.NewLoadTimeout)
		}
	})
}
