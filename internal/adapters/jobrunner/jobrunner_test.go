package jobrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	"github.com/target/bulkmailer/internal/service"
	"github.com/target/bulkmailer/internal/service/scheduler"
	"github.com/target/bulkmailer/internal/testutil"
	"github.com/target/bulkmailer/internal/testutil/jobstore"
)

// dispatchFunc adapts a function to Dispatcher.
type dispatchFunc func(ctx context.Context, job *model.Job, opts scheduler.RunOptions) (*scheduler.Result, error)

func (f dispatchFunc) Run(ctx context.Context, job *model.Job, opts scheduler.RunOptions) (*scheduler.Result, error) {
	return f(ctx, job, opts)
}

// complete marks the job completed in the store the way a scheduler would.
func complete(store *jobstore.Store) dispatchFunc {
	return func(ctx context.Context, job *model.Job, _ scheduler.RunOptions) (*scheduler.Result, error) {
		if _, err := store.TransitionStatus(ctx, core.TransitionParams{JobID: job.ID, To: model.JobStatusCompleted}); err != nil {
			return nil, err
		}
		return &scheduler.Result{JobID: job.ID, Status: model.JobStatusCompleted}, nil
	}
}

type gaugeSink struct {
	mu  sync.Mutex
	max float64
}

func (g *gaugeSink) Count(string, int64, map[string]string)           {}
func (g *gaugeSink) Timing(string, time.Duration, map[string]string) {}
func (g *gaugeSink) Gauge(_ string, v float64, _ map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v > g.max {
		g.max = v
	}
}

func newRunner(t *testing.T, store *jobstore.Store, d Dispatcher, mutate ...func(*RunnerOptions)) *Runner {
	t.Helper()
	opts := RunnerOptions{
		Repo:         store,
		Jobs:         service.MustNewJobService(service.JobServiceOptions{Repo: store}),
		Dispatcher:   d,
		PollInterval: 10 * time.Millisecond,
		Concurrency:  2,
	}
	for _, m := range mutate {
		m(&opts)
	}
	r, err := NewRunner(opts)
	require.NoError(t, err)
	return r
}

func createJobs(t *testing.T, store *jobstore.Store, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for range n {
		job, err := store.CreateJob(context.Background(), testutil.NewJobRequest().WithNumberedRecipients(1).Build())
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	return ids
}

func statusOf(t *testing.T, store *jobstore.Store, id string) model.JobStatus {
	t.Helper()
	st, err := store.GetStatus(context.Background(), id)
	require.NoError(t, err)
	return st
}

func runInBackground(ctx context.Context, r *Runner) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	store := jobstore.New()
	jobs := service.MustNewJobService(service.JobServiceOptions{Repo: store})
	d := complete(store)

	tests := map[string]RunnerOptions{
		"repo":       {Jobs: jobs, Dispatcher: d},
		"jobs":       {Repo: store, Dispatcher: d},
		"dispatcher": {Repo: store, Jobs: jobs},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewRunner(opts)
			require.Error(t, err)
		})
	}

	r, err := NewRunner(RunnerOptions{Repo: store, Jobs: jobs, Dispatcher: d})
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, r.pollInterval)
	assert.Equal(t, DefaultConcurrency, r.concurrency)
}

func TestRunner_DispatchesDueJobsWithinConcurrencyLimit(t *testing.T) {
	store := jobstore.New()
	ids := createJobs(t, store, 5)

	var (
		current, peak atomic.Int64
		finished      atomic.Int64
	)
	d := dispatchFunc(func(ctx context.Context, job *model.Job, opts scheduler.RunOptions) (*scheduler.Result, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		defer finished.Add(1)
		return complete(store)(ctx, job, opts)
	})
	sink := &gaugeSink{}
	r := newRunner(t, store, d, func(o *RunnerOptions) { o.Metrics = sink })

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, r)

	require.Eventually(t, func() bool { return finished.Load() == 5 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.InDelta(t, 2, sink.max, 0)
	for _, id := range ids {
		assert.Equal(t, model.JobStatusCompleted, statusOf(t, store, id))
	}
	assert.Zero(t, r.Active())
}

func TestRunner_WakesOnQueueNotification(t *testing.T) {
	store := jobstore.New()
	var dispatched atomic.Int64
	d := dispatchFunc(func(ctx context.Context, job *model.Job, opts scheduler.RunOptions) (*scheduler.Result, error) {
		defer dispatched.Add(1)
		return complete(store)(ctx, job, opts)
	})
	r := newRunner(t, store, d, func(o *RunnerOptions) { o.PollInterval = time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, r)

	// Let the first (empty) claim pass before enqueueing.
	time.Sleep(20 * time.Millisecond)
	createJobs(t, store, 1)

	require.Eventually(t, func() bool { return dispatched.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunner_JobScopedErrorKeepsPolling(t *testing.T) {
	store := jobstore.New()
	ids := createJobs(t, store, 2)

	var calls atomic.Int64
	d := dispatchFunc(func(ctx context.Context, job *model.Job, opts scheduler.RunOptions) (*scheduler.Result, error) {
		defer calls.Add(1)
		if job.ID == ids[0] {
			msg := "token revoked"
			_, _ = store.TransitionStatus(ctx, core.TransitionParams{JobID: job.ID, To: model.JobStatusError, LastError: &msg})
			return &scheduler.Result{JobID: job.ID, Status: model.JobStatusError}, errors.New(msg)
		}
		return complete(store)(ctx, job, opts)
	})
	r := newRunner(t, store, d, func(o *RunnerOptions) { o.Concurrency = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, r)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, model.JobStatusError, statusOf(t, store, ids[0]))
	assert.Equal(t, model.JobStatusCompleted, statusOf(t, store, ids[1]))
}

func TestRunner_ShutdownRequeuesInterruptedJobs(t *testing.T) {
	store := jobstore.New()
	ids := createJobs(t, store, 1)

	started := make(chan struct{})
	d := dispatchFunc(func(ctx context.Context, job *model.Job, _ scheduler.RunOptions) (*scheduler.Result, error) {
		close(started)
		<-ctx.Done()
		return &scheduler.Result{JobID: job.ID, Status: model.JobStatusRunning, Interrupted: true}, nil
	})
	r := newRunner(t, store, d)

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, r)
	<-started
	assert.Equal(t, model.JobStatusRunning, statusOf(t, store, ids[0]))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, model.JobStatusQueued, statusOf(t, store, ids[0]))
}

func TestRunner_RunsReceiveControlFlags(t *testing.T) {
	store := jobstore.New()
	ids := createJobs(t, store, 1)
	jobs := service.MustNewJobService(service.JobServiceOptions{Repo: store})

	started := make(chan struct{})
	stopped := make(chan bool, 1)
	d := dispatchFunc(func(ctx context.Context, job *model.Job, opts scheduler.RunOptions) (*scheduler.Result, error) {
		close(started)
		if opts.Signals == nil {
			stopped <- false
			return nil, errors.New("no signals")
		}
		deadline := time.Now().Add(2 * time.Second)
		for !opts.Signals.ShouldStop(ctx) && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
		stopped <- opts.Signals.ShouldStop(ctx)
		return &scheduler.Result{JobID: job.ID, Status: model.JobStatusStopped}, nil
	})
	r := newRunner(t, store, d, func(o *RunnerOptions) { o.Jobs = jobs })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runInBackground(ctx, r)

	<-started
	ok, err := jobs.Stop(context.Background(), ids[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, <-stopped)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, model.JobStatusStopped, statusOf(t, store, ids[0]))
}

func TestRunner_PanicMarksJobError(t *testing.T) {
	store := jobstore.New()
	ids := createJobs(t, store, 1)

	var calls atomic.Int64
	d := dispatchFunc(func(context.Context, *model.Job, scheduler.RunOptions) (*scheduler.Result, error) {
		calls.Add(1)
		panic("boom")
	})
	r := newRunner(t, store, d)

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, r)
	require.Eventually(t, func() bool {
		st, err := store.GetStatus(context.Background(), ids[0])
		return err == nil && st == model.JobStatusError
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), calls.Load())

	job, err := store.GetJob(context.Background(), ids[0])
	require.NoError(t, err)
	require.NotNil(t, job.LastError)
	assert.Contains(t, *job.LastError, "boom")
}
