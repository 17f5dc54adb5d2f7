package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/voice"
)

// submitLoad moves e to Loading and queues the backend Create. The job
// captures the descriptor by value and never dereferences e off the
// simulation goroutine; e only travels back through the main dispatcher.
func (s *Scheduler) submitLoad(e *Entry) {
	e.state = StateLoading
	e.isNew = false
	e.loadStart = s.now()
	s.inflight++

	id, desc := e.id, e.desc
	parent := s.ctx
	s.work.Enqueue(func() {
		ctx, span := observe.StartVoiceSpan(parent, "create", int64(id),
			attribute.String("source", desc.Source),
		)
		start := time.Now()
		h, err := s.backend.Create(ctx, desc)
		s.metrics.LoadDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			s.metrics.RecordBackendError(ctx, "create")
		}
		observe.EndSpan(span, err)

		s.main.Enqueue(func() { s.completeLoad(e, h, err) })
	})
}

// completeLoad applies a load result on the simulation goroutine.
func (s *Scheduler) completeLoad(e *Entry, h voice.Handle, err error) {
	s.inflight--

	if err != nil {
		s.metrics.RecordLoad(s.ctx, "error")
		slog.Warn("scheduler: voice load failed",
			"emitter", e.id,
			"source", e.desc.Source,
			"err", err,
		)
		if e.state != StateDead {
			// Never retried for this entry; it is dropped the normal way.
			e.loadFailed = true
		}
		return
	}

	if e.state == StateActive {
		// Cannot happen: a load is only submitted from Pending.
		slog.Error("scheduler: duplicate load result", "emitter", e.id)
		s.submitUnload(e.id, h, ReasonNone)
		return
	}

	if e.state != StateDead && (s.closed || s.active >= s.maxVoices) {
		// The cap was lowered after this load was submitted.
		s.markDead(e, ReasonEvicted, nil)
	}

	if e.state == StateDead {
		s.metrics.RecordLoad(s.ctx, "discarded")
		slog.Debug("scheduler: discarding late voice", "emitter", e.id, "reason", e.reason)
		s.submitUnload(e.id, h, e.reason)
		return
	}

	e.handle = h
	e.state = StateActive
	s.active++
	s.metrics.ActiveVoices.Add(s.ctx, 1)
	s.metrics.RecordLoad(s.ctx, "ok")

	s.apply(e)
	s.submitPlay(e.id, h)
	if s.attacher != nil {
		s.attacher.AttachVoice(e.id, h)
	}
}

// submitPlay queues playback start for a freshly attached voice.
func (s *Scheduler) submitPlay(id voice.EmitterID, h voice.Handle) {
	s.work.Enqueue(func() {
		if err := s.backend.Play(h); err != nil {
			s.metrics.RecordBackendError(s.ctx, "play")
			slog.Warn("scheduler: voice play failed", "emitter", id, "handle", h, "err", err)
		}
	})
}

// submitUnload queues stop and destroy for h. Destroy is attempted even if
// stop fails; failures are logged and never retried.
func (s *Scheduler) submitUnload(id voice.EmitterID, h voice.Handle, reason DeathReason) {
	parent := s.ctx
	s.work.Enqueue(func() {
		ctx, span := observe.StartVoiceSpan(parent, "destroy", int64(id),
			attribute.String("reason", reason.String()),
		)

		stopErr := s.backend.Stop(h)
		if stopErr != nil {
			s.backendFailure(ctx, "stop", id, h, stopErr)
		}
		destroyErr := s.backend.Destroy(h)
		if destroyErr != nil {
			s.backendFailure(ctx, "destroy", id, h, destroyErr)
		}
		err := errors.Join(stopErr, destroyErr)
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordUnload(ctx, reason.String(), status)
		observe.EndSpan(span, err)
	})
}

func (s *Scheduler) backendFailure(ctx context.Context, op string, id voice.EmitterID, h voice.Handle, err error) {
	s.metrics.RecordBackendError(ctx, op)
	observe.Logger(ctx).Warn("scheduler: voice "+op+" failed", "emitter", id, "handle", h, "err", err)
}
