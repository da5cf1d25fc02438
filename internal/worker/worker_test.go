package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirowlabs/analysis-service/internal/analysis"
	"github.com/mirowlabs/analysis-service/internal/clock/system"
	"github.com/mirowlabs/analysis-service/internal/manifest"
	memstorage "github.com/mirowlabs/analysis-service/internal/storage/memory"
	"github.com/mirowlabs/analysis-service/internal/workspace"
)

type fakeRunner struct {
	fn func(ctx context.Context, req analysis.RunRequest, progress analysis.ProgressFunc) (analysis.RunResult, error)
}

func (r *fakeRunner) Run(ctx context.Context, req analysis.RunRequest, progress analysis.ProgressFunc) (analysis.RunResult, error) {
	return r.fn(ctx, req, progress)
}

type recordingPublisher struct {
	topics   []string
	payloads []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

func testManifest() manifest.Manifest {
	return manifest.Manifest{
		Inputs: []manifest.Artifact{
			{Key: "source", Name: "a.csv", Dtype: "text/csv", Required: true},
		},
		Outputs: []manifest.Artifact{
			{Key: "report", Name: "out.txt", Dtype: "text/plain", Required: true},
			{Key: "extra", Name: "extra.txt", Dtype: "text/plain", Required: false},
		},
	}
}

type harness struct {
	worker    *Worker
	jobStore  *memstorage.JobStore
	ws        *workspace.Workspace
	blobStore *memstorage.BlobStore
	publisher *recordingPublisher
}

func newHarness(t *testing.T, runner analysis.Runner, cfg Config) *harness {
	t.Helper()
	ws, err := workspace.New(workspace.Config{DataDir: t.TempDir()})
	require.NoError(t, err)

	jobStore := memstorage.NewJobStore(nil)
	blobStore := memstorage.NewBlobStore()
	pub := &recordingPublisher{}
	w := New(nil, jobStore, ws, testManifest(), runner, blobStore, pub, nil, system.Clock{}, cfg, zap.NewNop())
	return &harness{worker: w, jobStore: jobStore, ws: ws, blobStore: blobStore, publisher: pub}
}

func (h *harness) submitJob(t *testing.T, stageInput bool) analysis.Job {
	t.Helper()
	job := analysis.Job{
		ID:        "job-1",
		Status:    analysis.JobStatusPending,
		Submitted: system.Clock{}.Now(),
	}
	require.NoError(t, h.jobStore.CreateJob(context.Background(), job))
	require.NoError(t, h.ws.EnsureJobDirs(job.ID))
	if stageInput {
		_, err := h.ws.StageInput(job.ID, "a.csv", strings.NewReader("x,y\n1,2\n"))
		require.NoError(t, err)
	}
	return job
}

func TestProcessJobCompletes(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: func(_ context.Context, req analysis.RunRequest, progress analysis.ProgressFunc) (analysis.RunResult, error) {
		progress(0.5, "halfway")
		out := filepath.Join(req.OutputsDir, "out.txt")
		if err := os.WriteFile(out, []byte("done"), 0o600); err != nil {
			return analysis.RunResult{}, err
		}
		return analysis.RunResult{Results: map[string]any{"rows": 2}}, nil
	}}

	h := newHarness(t, runner, Config{Topic: "analysis-events", ArchivePrefix: "jobs"})
	job := h.submitJob(t, true)

	h.worker.processJob(context.Background(), analysis.QueueItem{JobID: job.ID})

	got, err := h.jobStore.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusCompleted, got.Status)
	require.Equal(t, 1.0, got.Progress)
	require.Equal(t, map[string]any{"rows": 2}, got.Results)
	require.Len(t, got.OutputFiles, 1)
	require.Equal(t, "out.txt", got.OutputFiles[0].Filename)
	require.Equal(t, int64(4), got.OutputFiles[0].SizeBytes)
	require.Equal(t, "memory://jobs/job-1/out.txt", got.OutputFiles[0].ArchiveURI)

	require.Equal(t, []string{"analysis-events"}, h.publisher.topics)
	event, ok := h.publisher.payloads[0].(analysis.CompletionEvent)
	require.True(t, ok)
	require.Equal(t, analysis.JobStatusCompleted, event.Status)
	require.Len(t, event.OutputFiles, 1)
}

func TestProcessJobMissingRequiredInput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: func(context.Context, analysis.RunRequest, analysis.ProgressFunc) (analysis.RunResult, error) {
		t.Fatal("runner should not be invoked")
		return analysis.RunResult{}, nil
	}}

	h := newHarness(t, runner, Config{})
	job := h.submitJob(t, false)

	h.worker.processJob(context.Background(), analysis.QueueItem{JobID: job.ID})

	got, err := h.jobStore.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusFailed, got.Status)
	require.Contains(t, got.ErrorText, "not staged")
}

func TestProcessJobRunnerError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: func(context.Context, analysis.RunRequest, analysis.ProgressFunc) (analysis.RunResult, error) {
		return analysis.RunResult{}, errors.New("model blew up")
	}}

	h := newHarness(t, runner, Config{})
	job := h.submitJob(t, true)

	h.worker.processJob(context.Background(), analysis.QueueItem{JobID: job.ID})

	got, err := h.jobStore.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusFailed, got.Status)
	require.Contains(t, got.ErrorText, "model blew up")
}

func TestProcessJobMissingRequiredOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: func(context.Context, analysis.RunRequest, analysis.ProgressFunc) (analysis.RunResult, error) {
		return analysis.RunResult{}, nil
	}}

	h := newHarness(t, runner, Config{})
	job := h.submitJob(t, true)

	h.worker.processJob(context.Background(), analysis.QueueItem{JobID: job.ID})

	got, err := h.jobStore.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusFailed, got.Status)
	require.Contains(t, got.ErrorText, `required output "report"`)
}

func TestProcessJobSkipsCancelledWhileQueued(t *testing.T) {
	t.Parallel()

	invoked := false
	runner := &fakeRunner{fn: func(context.Context, analysis.RunRequest, analysis.ProgressFunc) (analysis.RunResult, error) {
		invoked = true
		return analysis.RunResult{}, nil
	}}

	h := newHarness(t, runner, Config{})
	job := h.submitJob(t, true)
	require.NoError(t, h.jobStore.UpdateStatus(context.Background(), job.ID, analysis.JobStatusCancelled, ""))

	h.worker.processJob(context.Background(), analysis.QueueItem{JobID: job.ID})

	require.False(t, invoked)
	got, err := h.jobStore.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusCancelled, got.Status)
}

func TestProcessJobCancelledMidRun(t *testing.T) {
	t.Parallel()

	h := &harness{}
	runner := &fakeRunner{fn: func(ctx context.Context, _ analysis.RunRequest, _ analysis.ProgressFunc) (analysis.RunResult, error) {
		// Simulate a cancel request arriving while the analysis runs.
		err := h.jobStore.UpdateStatus(ctx, "job-1", analysis.JobStatusCancelled, "")
		if err != nil {
			return analysis.RunResult{}, err
		}
		return analysis.RunResult{}, ctx.Err()
	}}
	*h = *newHarness(t, runner, Config{})
	job := h.submitJob(t, true)

	h.worker.processJob(context.Background(), analysis.QueueItem{JobID: job.ID})

	got, err := h.jobStore.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusCancelled, got.Status)
}

func TestProgressMapping(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: func(_ context.Context, req analysis.RunRequest, progress analysis.ProgressFunc) (analysis.RunResult, error) {
		progress(0.5, "halfway")
		return analysis.RunResult{}, errors.New("stop here")
	}}

	h := newHarness(t, runner, Config{})
	job := h.submitJob(t, true)

	h.worker.processJob(context.Background(), analysis.QueueItem{JobID: job.ID})

	got, err := h.jobStore.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.6, got.Progress, 0.0001)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(1)
	runner := &fakeRunner{fn: func(context.Context, analysis.RunRequest, analysis.ProgressFunc) (analysis.RunResult, error) {
		return analysis.RunResult{}, nil
	}}
	h := newHarness(t, runner, Config{})
	w := New(queue, h.jobStore, h.ws, testManifest(), runner, nil, nil, nil, system.Clock{}, Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	<-done
}

type testQueue struct {
	ch chan analysis.QueueItem
}

func newTestQueue(depth int) *testQueue {
	return &testQueue{ch: make(chan analysis.QueueItem, depth)}
}

func (q *testQueue) Enqueue(_ context.Context, item analysis.QueueItem) error {
	q.ch <- item
	return nil
}

func (q *testQueue) Dequeue(ctx context.Context) (analysis.QueueItem, error) {
	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return analysis.QueueItem{}, ctx.Err()
	}
}
