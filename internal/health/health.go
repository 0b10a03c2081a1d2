// Package health serves liveness and readiness probes.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz
// runs every registered [Checker] concurrently and answers 200 only when all
// of them pass, 503 otherwise. Both reply with a JSON [Report].
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single readiness check.
const DefaultTimeout = 5 * time.Second

// Status values used in reports.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Checker is a named readiness check. Check returns nil when the component
// is ready and must return promptly once ctx is done.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Report is the JSON body of both probes.
type Report struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]CheckReport `json:"checks,omitempty"`
}

// CheckReport is the outcome of one checker.
type CheckReport struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithVersion adds the build version to every report.
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	version  string
	timeout  time.Duration
}

// New creates a Handler evaluating checkers on each readiness request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK, Version: h.version})
}

// Readyz runs all checkers and reports 503 if any failed.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	status := http.StatusOK
	if rep.Status != StatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Check runs every checker concurrently, each under its own timeout, and
// returns the combined report.
func (h *Handler) Check(ctx context.Context) Report {
	rep := Report{Status: StatusOK, Version: h.version}
	if len(h.checkers) == 0 {
		return rep
	}
	rep.Checks = make(map[string]CheckReport, len(h.checkers))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cr := h.run(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			rep.Checks[c.Name] = cr
			if cr.Status != StatusOK {
				rep.Status = StatusFail
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func (h *Handler) run(ctx context.Context, c Checker) CheckReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := ctx.Err()
	if err == nil {
		err = c.Check(ctx)
	}
	cr := CheckReport{Status: StatusOK, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		cr.Status = StatusFail
		cr.Error = err.Error()
	}
	return cr
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
