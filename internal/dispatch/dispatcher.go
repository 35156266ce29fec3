// Package dispatch accepts AI requests, hands out job ids and runs the
// external tool off the request path.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"churchsite/internal/models"
	"churchsite/internal/registry"
	"churchsite/internal/telemetry"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatcher closed")

// AuditLog is the part of the store the dispatcher writes to.
type AuditLog interface {
	AppendAudit(ctx context.Context, prompt, promptContext, jobID string, status models.AuditStatus) error
	UpdateAuditStatus(ctx context.Context, jobID string, status models.AuditStatus) error
}

// Invoker runs one AI request to completion.
type Invoker interface {
	Invoke(ctx context.Context, req models.AIRequest) models.AIResult
}

// Dispatcher runs at most `workers` invocations at once. Submissions beyond
// that wait in their own goroutine for a free slot; Submit never blocks on it.
type Dispatcher struct {
	registry registry.Registry
	audit    AuditLog
	invoker  Invoker
	logger   *slog.Logger

	slots chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New wires a dispatcher. workers below 1 is treated as 1.
func New(reg registry.Registry, audit AuditLog, inv Invoker, logger *slog.Logger, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: reg,
		audit:    audit,
		invoker:  inv,
		logger:   logger,
		slots:    make(chan struct{}, workers),
	}
}

// Submit registers a new job as processing, records the audit row and starts
// the invocation in the background. The returned id can be polled at once.
func (d *Dispatcher) Submit(ctx context.Context, req models.AIRequest) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrClosed
	}

	id, err := newJobID()
	if err != nil {
		return "", err
	}
	if err := d.registry.Create(id); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}
	bestEffort(d.logger, d.audit.AppendAudit(ctx, req.Prompt, req.Context, id, models.AuditProcessing),
		"record ai prompt", "job_id", id)

	telemetry.JobsSubmitted.Inc()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.slots <- struct{}{}
		defer func() { <-d.slots }()
		d.run(id, req)
	}()
	return id, nil
}

// Close stops accepting jobs and waits for running ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run owns the only terminal write for id. A panic anywhere below is turned
// into status error so no job stays processing.
func (d *Dispatcher) run(id string, req models.AIRequest) {
	ctx := context.Background()
	log := d.logger.With("job_id", id)
	start := time.Now()

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Error("ai job failed", "panic", r)
		bestEffort(log, d.audit.UpdateAuditStatus(ctx, id, models.AuditError), "update ai job status")
		d.complete(log, id, models.JobError, &models.AIResult{Success: false, Error: fmt.Sprint(r)})
		telemetry.JobsFinished.WithLabelValues(telemetry.OutcomeError).Inc()
	}()

	log.Info("ai job started")
	res := d.invoker.Invoke(ctx, req)
	telemetry.JobDuration.Observe(time.Since(start).Seconds())

	status, outcome := models.AuditCompleted, telemetry.OutcomeSucceeded
	if !res.Success {
		status, outcome = models.AuditFailed, telemetry.OutcomeFailed
	}
	bestEffort(log, d.audit.UpdateAuditStatus(ctx, id, status), "update ai job status")
	d.complete(log, id, models.JobCompleted, &res)
	telemetry.JobsFinished.WithLabelValues(outcome).Inc()
	log.Info("ai job completed", "success", res.Success, "error_kind", res.ErrorKind, "elapsed", time.Since(start))
}

func (d *Dispatcher) complete(log *slog.Logger, id string, status models.JobStatus, res *models.AIResult) {
	if err := d.registry.Complete(id, status, res); err != nil {
		log.Error("complete ai job", "status", status, "err", err)
	}
}

// bestEffort logs err and drops it. Audit writes never change the outcome a
// client sees.
func bestEffort(log *slog.Logger, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	log.Warn(msg, append(args, "err", err)...)
}

func newJobID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
