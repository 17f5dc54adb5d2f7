// Package health provides HTTP health, readiness and status handlers.
//
// The package exposes three endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /statusz: a JSON snapshot produced by the registered [StatusFunc],
//     when one is set.
//
// Health responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "ticks",
	// "worker"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// StatusFunc returns a JSON-encodable snapshot for /statusz.
type StatusFunc func(ctx context.Context) (any, error)

// Handler serves /healthz, /readyz and /statusz. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	status   StatusFunc
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// WithStatus sets the function behind /statusz and returns h.
func (h *Handler) WithStatus(fn StatusFunc) *Handler {
	h.status = fn
	return h
}

// Heartbeat returns a [Checker] that fails when last reports a time older
// than maxAge, or the zero time (no beat yet). now defaults to [time.Now].
func Heartbeat(name string, last func() time.Time, maxAge time.Duration, now func() time.Time) Checker {
	if now == nil {
		now = time.Now
	}
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			t := last()
			if t.IsZero() {
				return errors.New("no heartbeat yet")
			}
			if age := now().Sub(t); age > maxAge {
				return fmt.Errorf("last heartbeat %v ago exceeds %v", age.Round(time.Millisecond), maxAge)
			}
			return nil
		},
	}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Statusz writes the [StatusFunc] snapshot. It returns 503 when the snapshot
// cannot be produced within [checkTimeout], and 404 when no function is set.
func (h *Handler) Statusz(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	v, err := h.status(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, result{
			Status: "fail",
			Checks: map[string]string{"status": "fail: " + err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Register adds the /healthz, /readyz and /statusz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if h.status != nil {
		mux.HandleFunc("GET /statusz", h.Statusz)
	}
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
