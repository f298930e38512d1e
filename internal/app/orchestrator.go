// internal/app/orchestrator.go
// Scan job orchestrator: admission, bounded worker pool, lifecycle

package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/internal/normalize"
	"github.com/aspnmy/scanapi/internal/profile"
	"github.com/aspnmy/scanapi/internal/scanner"
	"github.com/aspnmy/scanapi/internal/target"
	"github.com/aspnmy/scanapi/pkg/logger"
)

// maxLoggedRaw bounds how much unparseable output goes into the log
const maxLoggedRaw = 4096

// Archive persists terminal jobs
type Archive interface {
	Save(ctx context.Context, job *models.ScanJob) error
	Load(ctx context.Context, id string) (*models.ScanJob, error)
}

// AuditSink receives every terminal job once
type AuditSink interface {
	Write(job *models.ScanJob) error
}

// Options holds pool and retention settings
type Options struct {
	Workers     int
	QueueDepth  int
	Timeout     time.Duration // per scan
	Retention   time.Duration
	MaxRetained int
}

// Deps holds dependencies for the orchestrator
type Deps struct {
	Executor  scanner.Executor
	Validator *target.Validator
	Archive   Archive   // optional
	Audit     AuditSink // optional
}

// entry is the mutable record behind a job. All fields are guarded by
// Orchestrator.mu.
type entry struct {
	job models.ScanJob
	// targets are the nmap target tokens, pinned to the checked addresses
	// for resolved hostnames
	targets []string
	// cancel stops the running process; non-nil iff status is running
	cancel context.CancelFunc
	// done is closed when the job reaches a terminal state
	done chan struct{}
}

// Orchestrator owns every scan job
type Orchestrator struct {
	opts Options
	deps Deps

	mu       sync.Mutex
	live     map[string]*entry
	finished *expirable.LRU[string, *entry]
	closed   bool
	// slots counts admitted jobs that a worker has not yet finished with,
	// including cancelled ones still in the queue
	slots int

	queue  chan *entry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitted atomic.Int64
	rejected  atomic.Int64
}

// New creates an orchestrator and starts its workers
func New(opts Options, deps Deps) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 0 {
		opts.QueueDepth = 0
	}
	if opts.MaxRetained < 1 {
		opts.MaxRetained = 1000
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:     opts,
		deps:     deps,
		live:     make(map[string]*entry),
		finished: expirable.NewLRU[string, *entry](opts.MaxRetained, nil, opts.Retention),
		queue:    make(chan *entry, opts.Workers+opts.QueueDepth),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}

	logger.Info("Scan orchestrator started",
		logger.Int("workers", opts.Workers),
		logger.Int("queue_depth", opts.QueueDepth),
		logger.Duration("timeout", opts.Timeout),
	)
	return o
}

// Submit validates req and queues it. Validation failures are returned
// before any process is started. Once Workers jobs are running and
// QueueDepth more are waiting, Submit yields ErrTooManyJobs.
func (o *Orchestrator) Submit(ctx context.Context, req models.ScanRequest) (string, error) {
	if req.Target == "" || req.Profile == "" {
		return "", models.NewError(models.ErrMissingField, "Target and scan type are required")
	}

	args, err := profile.Resolve(req.Profile, req.CustomArgs)
	if err != nil {
		return "", err
	}
	tgt, err := o.deps.Validator.Validate(ctx, req.Target)
	if err != nil {
		return "", err
	}

	req.ID = uuid.NewString()
	req.CreatedAt = time.Now().UTC()
	e := &entry{
		job:     models.ScanJob{Request: req, Args: args, Status: models.StatusPending},
		targets: tgt.ScanTokens(),
		done:    make(chan struct{}),
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return "", models.NewError(models.ErrShutdown, "")
	}

	if o.slots >= o.opts.Workers+o.opts.QueueDepth {
		o.rejected.Add(1)
		logger.Warn("Scan rejected: queue full",
			logger.String("target", req.Target),
			logger.Int("queue_depth", o.opts.QueueDepth),
		)
		return "", models.NewError(models.ErrTooManyJobs, "%d workers busy and %d jobs queued", o.opts.Workers, o.opts.QueueDepth)
	}
	// the channel holds at most slots entries, so this never blocks
	o.queue <- e
	o.slots++

	o.live[req.ID] = e
	o.submitted.Add(1)

	logger.Info("Scan queued",
		logger.JobID(req.ID),
		logger.String("target", req.Target),
		logger.String("scan_type", string(req.Profile)),
	)
	return req.ID, nil
}

// Get returns a snapshot of a job
func (o *Orchestrator) Get(ctx context.Context, id string) (models.ScanJob, error) {
	o.mu.Lock()
	e := o.lookupLocked(id)
	if e != nil {
		snap := snapshot(e)
		o.mu.Unlock()
		return snap, nil
	}
	o.mu.Unlock()

	if job := o.loadArchived(ctx, id); job != nil {
		return *job, nil
	}
	return models.ScanJob{}, models.NewError(models.ErrNotFound, "%s", id)
}

// Result returns the outcome of a terminal job
func (o *Orchestrator) Result(ctx context.Context, id string) (*models.ScanOutcome, error) {
	job, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() || job.Outcome == nil {
		return nil, models.NewError(models.ErrNotReady, "job %s is %s", id, job.Status)
	}
	return job.Outcome, nil
}

// Wait blocks until the job is terminal or ctx is done
func (o *Orchestrator) Wait(ctx context.Context, id string) (*models.ScanOutcome, error) {
	o.mu.Lock()
	e := o.lookupLocked(id)
	o.mu.Unlock()
	if e == nil {
		return o.Result(ctx, id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return e.job.Outcome, nil
}

// Cancel stops a pending or running job. The job becomes cancelled
// immediately; a running process is terminated in the background.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	e, ok := o.live[id]
	if !ok {
		_, retained := o.finished.Peek(id)
		o.mu.Unlock()
		if retained || o.loadArchived(ctx, id) != nil {
			return models.NewError(models.ErrAlreadyTerminal, "%s", id)
		}
		return models.NewError(models.ErrNotFound, "%s", id)
	}

	stop := e.cancel
	o.settleLocked(e, &models.ScanOutcome{
		Status:    models.StatusCancelled,
		ErrorKind: models.KindExecution,
		Error:     models.NewError(models.ErrCancelled, "cancelled by request").Error(),
	})
	snap := snapshot(e)
	o.mu.Unlock()

	if stop != nil {
		stop()
	}

	logger.Info("Scan cancelled", logger.JobID(id))
	o.persist(&snap)
	return nil
}

// List returns snapshots of every live and retained job, newest first
func (o *Orchestrator) List() []models.ScanJob {
	o.mu.Lock()
	out := make([]models.ScanJob, 0, len(o.live)+o.finished.Len())
	for _, e := range o.live {
		out = append(out, snapshot(e))
	}
	for _, e := range o.finished.Values() {
		out = append(out, snapshot(e))
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Request.CreatedAt.After(out[j].Request.CreatedAt)
	})
	return out
}

// Forget drops a terminal job from memory. Archived copies are kept.
func (o *Orchestrator) Forget(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.live[id]; ok {
		return models.NewError(models.ErrNotReady, "job %s has not finished", id)
	}
	if !o.finished.Remove(id) {
		return models.NewError(models.ErrNotFound, "%s", id)
	}
	return nil
}

// Stats returns a load snapshot
func (o *Orchestrator) Stats() models.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := models.Stats{
		Workers:   o.opts.Workers,
		QueueCap:  o.opts.QueueDepth,
		Retained:  o.finished.Len(),
		Submitted: o.submitted.Load(),
		Rejected:  o.rejected.Load(),
	}
	for _, e := range o.live {
		switch e.job.Status {
		case models.StatusPending:
			st.Queued++
		case models.StatusRunning:
			st.Running++
		}
	}
	return st
}

// Shutdown refuses new work, cancels every live job and waits for the
// workers to exit or ctx to expire
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down scan orchestrator...")

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true

	var settled []models.ScanJob
	for _, e := range o.live {
		stop := e.cancel
		o.settleLocked(e, &models.ScanOutcome{
			Status:    models.StatusCancelled,
			ErrorKind: models.KindResource,
			Error:     models.NewError(models.ErrShutdown, "").Error(),
		})
		if stop != nil {
			stop()
		}
		settled = append(settled, snapshot(e))
	}
	o.mu.Unlock()

	o.cancel()
	for i := range settled {
		o.persist(&settled[i])
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown complete")
		return nil
	case <-ctx.Done():
		logger.Warn("Shutdown timeout exceeded")
		return ctx.Err()
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case e := <-o.queue:
			o.execute(e)
		}
	}
}

// execute runs one job. A job cancelled while queued is skipped.
func (o *Orchestrator) execute(e *entry) {
	defer o.releaseSlot()

	o.mu.Lock()
	if e.job.Status != models.StatusPending {
		o.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(o.ctx)
	defer cancel()

	now := time.Now().UTC()
	e.cancel = cancel
	e.job.Status = models.StatusRunning
	e.job.StartedAt = &now
	req := e.job.Request
	args := append([]string(nil), e.job.Args...)
	targets := e.targets
	o.mu.Unlock()

	logger.Info("Scan started",
		logger.JobID(req.ID),
		logger.String("target", req.Target),
		logger.Strings("addresses", targets),
		logger.Strings("args", args),
	)

	raw, runErr := o.deps.Executor.Run(runCtx, args, targets, o.opts.Timeout)
	outcome := o.buildOutcome(req.ID, raw, runErr)

	o.mu.Lock()
	if e.job.Status.Terminal() {
		// cancelled while running; the first outcome stands
		o.mu.Unlock()
		return
	}
	o.settleLocked(e, outcome)
	snap := snapshot(e)
	o.mu.Unlock()

	fields := []logger.Field{
		logger.JobID(req.ID),
		logger.String("status", string(outcome.Status)),
		logger.Int("hosts", len(outcome.Hosts)),
		logger.Bool("complete", outcome.Complete),
	}
	if raw != nil {
		fields = append(fields, logger.Duration("duration", raw.Duration))
	}
	if outcome.Error != "" {
		fields = append(fields, logger.String("error", outcome.Error))
	}
	logger.Info("Scan finished", fields...)

	o.persist(&snap)
}

func (o *Orchestrator) releaseSlot() {
	o.mu.Lock()
	o.slots--
	o.mu.Unlock()
}

// buildOutcome maps runner and parser results to a terminal outcome
func (o *Orchestrator) buildOutcome(id string, raw *scanner.RawOutput, runErr error) *models.ScanOutcome {
	outcome := &models.ScanOutcome{Hosts: []models.HostResult{}}
	if raw != nil {
		outcome.ExitCode = raw.ExitCode
		outcome.RawOutput = string(raw.Stdout)
	}

	switch {
	case runErr == nil:
		o.applyParse(id, outcome, raw, nil)

	case errors.Is(runErr, models.ErrNonZeroExit):
		// keep whatever nmap managed to write, flagged incomplete
		o.applyParse(id, outcome, raw, runErr)
		if outcome.Status == models.StatusSucceeded {
			outcome.Complete = false
		}

	case errors.Is(runErr, models.ErrTimeout):
		outcome.Status = models.StatusTimedOut
		setError(outcome, runErr)

	case errors.Is(runErr, models.ErrCancelled):
		outcome.Status = models.StatusCancelled
		setError(outcome, runErr)

	default:
		outcome.Status = models.StatusFailed
		setError(outcome, runErr)
	}
	return outcome
}

// applyParse normalizes raw stdout. runErr is the execution error to report
// when the output cannot be used.
func (o *Orchestrator) applyParse(id string, outcome *models.ScanOutcome, raw *scanner.RawOutput, runErr error) {
	res, err := normalize.Normalize(raw.Stdout)
	if err != nil {
		outcome.Status = models.StatusFailed
		if runErr != nil {
			setError(outcome, runErr)
			return
		}
		setError(outcome, err)
		logger.Error("Failed to parse scanner output",
			logger.JobID(id),
			logger.Err(err),
			logger.Bool("truncated", raw.Truncated),
			logger.String("raw", clip(raw.Stdout, maxLoggedRaw)),
		)
		return
	}

	logger.Debug("Scanner output parsed",
		logger.JobID(id),
		logger.String("summary", res.Summary),
		logger.Duration("elapsed", time.Duration(float64(res.Elapsed)*float64(time.Second))),
		logger.Int("hosts", len(res.Hosts)),
	)

	outcome.Status = models.StatusSucceeded
	outcome.Hosts = res.Hosts
	outcome.Complete = res.Complete
	outcome.CSV = normalize.CSV(res.Hosts)
}

// settleLocked records the terminal outcome and moves the job to the
// retention cache. Caller holds o.mu and has checked the job is live.
func (o *Orchestrator) settleLocked(e *entry, outcome *models.ScanOutcome) {
	now := time.Now().UTC()
	outcome.JobID = e.job.Request.ID
	outcome.CompletedAt = now
	if outcome.Hosts == nil {
		outcome.Hosts = []models.HostResult{}
	}

	e.job.Status = outcome.Status
	e.job.FinishedAt = &now
	e.job.Outcome = outcome
	e.cancel = nil
	close(e.done)

	delete(o.live, e.job.Request.ID)
	o.finished.Add(e.job.Request.ID, e)
}

// persist hands a terminal snapshot to the archive and audit sink
func (o *Orchestrator) persist(job *models.ScanJob) {
	if o.deps.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.deps.Archive.Save(ctx, job); err != nil {
			logger.Warn("Failed to archive job", logger.JobID(job.Request.ID), logger.Err(err))
		}
		cancel()
	}
	if o.deps.Audit != nil {
		if err := o.deps.Audit.Write(job); err != nil {
			logger.Warn("Failed to write audit record", logger.JobID(job.Request.ID), logger.Err(err))
		}
	}
}

func (o *Orchestrator) lookupLocked(id string) *entry {
	if e, ok := o.live[id]; ok {
		return e
	}
	if e, ok := o.finished.Get(id); ok {
		return e
	}
	return nil
}

func (o *Orchestrator) loadArchived(ctx context.Context, id string) *models.ScanJob {
	if o.deps.Archive == nil {
		return nil
	}
	job, err := o.deps.Archive.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logger.Warn("Archive lookup failed", logger.JobID(id), logger.Err(err))
		}
		return nil
	}
	return job
}

// snapshot copies the mutable parts of a job. Outcomes are never modified
// after settle, so the pointer is shared.
func snapshot(e *entry) models.ScanJob {
	job := e.job
	job.Args = append([]string(nil), e.job.Args...)
	if e.job.StartedAt != nil {
		t := *e.job.StartedAt
		job.StartedAt = &t
	}
	if e.job.FinishedAt != nil {
		t := *e.job.FinishedAt
		job.FinishedAt = &t
	}
	return job
}

func setError(outcome *models.ScanOutcome, err error) {
	outcome.ErrorKind = models.KindOf(err)
	outcome.Error = err.Error()

	var scanErr *models.ScanError
	if errors.As(err, &scanErr) && scanErr.Detail != "" {
		outcome.Error += ": " + scanErr.Detail
	}
}

func clip(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
