package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avatargate/avatargate/internal/artifact"
	"github.com/avatargate/avatargate/internal/config"
	"github.com/avatargate/avatargate/internal/job"
	"github.com/avatargate/avatargate/internal/metrics"
	"github.com/avatargate/avatargate/internal/store"
	"github.com/avatargate/avatargate/internal/webhook"
	"github.com/avatargate/avatargate/internal/worker"
)

var (
	ErrQueueFull   = errors.New("queue full")
	ErrInvalidTask = errors.New("invalid task")
)

// Notifier delivers a terminal event to a job's callback URL.
type Notifier func(ctx context.Context, callbackURL string, ev webhook.Event)

// Queue accepts video jobs and runs them on a fixed pool of workers.
type Queue struct {
	tasks     chan job.Task
	registry  *job.Registry
	store     store.Store
	artifacts *artifact.Store
	cfg       *config.Config
	opts      job.Options
	subs      map[string][]chan job.Snapshot
	notify    Notifier
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

// New creates a new Queue.
func New(cfg *config.Config, registry *job.Registry, st store.Store, artifacts *artifact.Store) *Queue {
	return &Queue{
		tasks:     make(chan job.Task, cfg.QueueSize),
		registry:  registry,
		store:     st,
		artifacts: artifacts,
		cfg:       cfg,
		opts:      job.Options{Enhancers: cfg.Enhancers, Languages: cfg.Languages},
		subs:      make(map[string][]chan job.Snapshot),
		notify:    webhook.Send,
	}
}

// SetNotifier replaces the callback delivery used for terminal events.
// Call it before Start.
func (q *Queue) SetNotifier(n Notifier) {
	q.notify = n
}

// Submit validates t, registers it as pending and hands it to the workers without
// blocking. If the buffer is full the job is failed immediately and
// ErrQueueFull is returned.
func (q *Queue) Submit(t job.Task) error {
	if err := t.Validate(q.opts); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	if err := q.registry.Create(t.ID); err != nil {
		return err
	}
	metrics.IncreaseJobsSubmitted()

	select {
	case q.tasks <- t:
		slog.Info("job queued", "job_id", t.ID, "user_id", t.UserID)
		return nil
	default:
		// The caller never receives this id, so nobody is owed a callback.
		t.CallbackURL = ""
		q.finalize(context.Background(), t, job.StatusError, "")
		return fmt.Errorf("%w: cannot enqueue job %s", ErrQueueFull, t.ID)
	}
}

// Start launches N workers (cfg.Concurrency) as goroutines.
func (q *Queue) Start(ctx context.Context) {
	for range q.cfg.Concurrency {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.runWorker(ctx)
		}()
	}
}

// Wait blocks until every worker has returned after ctx cancellation.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Subscribe returns a channel that receives the job's terminal snapshot and
// is then closed.
func (q *Queue) Subscribe(jobID string) chan job.Snapshot {
	ch := make(chan job.Snapshot, 1)
	q.mu.Lock()
	q.subs[jobID] = append(q.subs[jobID], ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the map.
func (q *Queue) Unsubscribe(jobID string, ch chan job.Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	chans := q.subs[jobID]
	for i, c := range chans {
		if c == ch {
			q.subs[jobID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(q.subs[jobID]) == 0 {
		delete(q.subs, jobID)
	}
}

// runWorker is a worker loop: dequeues jobs and processes them.
func (q *Queue) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.process(ctx, t)
		}
	}
}

// process drives one job to a terminal state. Every failure, panics
// included, ends in StatusError.
func (q *Queue) process(ctx context.Context, t job.Task) {
	status, url := job.StatusError, ""
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker: panic while processing job", "job_id", t.ID, "panic", r)
			status, url = job.StatusError, ""
		}
		q.finalize(ctx, t, status, url)
	}()

	slog.Info("job started", "job_id", t.ID)
	u, err := q.execute(ctx, t)
	if err != nil {
		slog.Warn("job failed", "job_id", t.ID, "error", err)
		return
	}
	status, url = job.StatusCompleted, u
}

func (q *Queue) execute(ctx context.Context, t job.Task) (string, error) {
	runCtx := ctx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}

	inv := worker.Invocation{
		ImagePath:      t.ImagePath,
		Query:          t.Query,
		DocumentPath:   t.DocumentPath,
		SourceLang:     t.SourceLang,
		TargetLang:     t.TargetLang,
		ResultDir:      t.WorkDir,
		ReferenceAudio: t.AudioPath,
		Enhancer:       t.Enhancer,
	}
	logger := slog.With("job_id", t.ID)
	onLine := func(line string) {
		logger.Debug("synthesis output", "line", line)
	}

	start := time.Now()
	err := worker.Run(runCtx, q.cfg.Synthesis, inv, onLine)
	metrics.ObserveSynthesisDuration(time.Since(start))
	if err != nil {
		return "", err
	}

	out, err := q.artifacts.FindOutput(t.WorkDir, q.cfg.Synthesis.VideoExtensions, t.StagedFiles)
	if err != nil {
		return "", fmt.Errorf("locate output: %w", err)
	}
	ref, err := q.artifacts.Reference(out)
	if err != nil {
		return "", err
	}

	// The run already succeeded; shutdown must not discard its output.
	v := &store.Video{UserID: t.UserID, Filename: ref, Query: t.Query}
	if err := q.store.CreateVideo(context.WithoutCancel(ctx), v); err != nil {
		return "", fmt.Errorf("record video: %w", err)
	}
	return artifact.URL(ref), nil
}

func (q *Queue) finalize(ctx context.Context, t job.Task, status job.Status, url string) {
	if err := q.registry.SetTerminal(t.ID, status, url); err != nil {
		// Only one runner owns a job; reaching this means that invariant broke.
		slog.Error("registry corruption: terminal write rejected", "job_id", t.ID, "status", status, "error", err)
		return
	}
	metrics.IncreaseJobsFinished(string(status))
	q.cleanup(t, status)

	snap := q.registry.Get(t.ID)
	q.notifyAndClose(t.ID, snap)

	if t.CallbackURL != "" {
		q.notify(ctx, t.CallbackURL, webhook.Event{JobID: t.ID, Status: string(snap.Status), URL: snap.URL})
	}
	slog.Info("job finished", "job_id", t.ID, "status", status)
}

func (q *Queue) cleanup(t job.Task, status job.Status) {
	var err error
	switch {
	case status == job.StatusError && !q.cfg.KeepFailed:
		err = q.artifacts.RemoveAll(t.WorkDir)
	case status == job.StatusCompleted && q.cfg.PruneInputs:
		err = q.artifacts.Prune(t.StagedFiles)
	}
	if err != nil {
		slog.Warn("cleanup failed", "job_id", t.ID, "dir", t.WorkDir, "error", err)
	}
}

// notifyAndClose sends the final snapshot and closes all channels for the job.
func (q *Queue) notifyAndClose(jobID string, snap job.Snapshot) {
	q.mu.Lock()
	chans := q.subs[jobID]
	delete(q.subs, jobID)
	q.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- snap:
		default:
		}
		close(ch)
	}
}
