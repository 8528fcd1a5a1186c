package supervisor_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genie/internal/catalog"
	"genie/internal/config"
	"genie/internal/errs"
	"genie/internal/executor"
	"genie/internal/model"
	"genie/internal/notify"
	"genie/internal/resolver"
	"genie/internal/store"
	"genie/internal/supervisor"
	"genie/pkg/log"
)

type harness struct {
	sup      *supervisor.Supervisor
	catalog  *catalog.Catalog
	store    store.JobStore
	events   *notify.Recorder
	jobsDir  string
	shutdown sync.Once
}

func newHarness(t *testing.T, opts supervisor.Options, mods ...func(*supervisor.Deps)) *harness {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}

	cat := catalog.New(t.Context())
	require.NoError(t, cat.PutCluster(&model.Cluster{Id: "A", Name: "cluster-a", Tags: []string{"local", "prod"}}))
	require.NoError(t, cat.PutCommand(&model.Command{Id: "X", Name: "sh", Executable: "sh", JobType: "shell", Tags: []string{"sh"}}))
	require.NoError(t, cat.PutCommand(&model.Command{Id: "broken", Name: "broken", Executable: "/nonexistent/bin/tool", Tags: []string{"broken"}}))
	require.NoError(t, cat.AttachCommand("A", "X"))
	require.NoError(t, cat.AttachCommand("A", "broken"))

	st, err := store.NewMemoryStore(log.NewLogger())
	require.NoError(t, err)

	jobsDir := t.TempDir()
	settings := executor.Settings{
		JobsDir:     jobsDir,
		Environment: "test",
		Hadoop:      config.DefaultHadoopConfig(),
		KillGrace:   time.Second,
	}
	h := &harness{
		catalog: cat,
		store:   st,
		events:  &notify.Recorder{},
		jobsDir: jobsDir,
	}
	deps := supervisor.Deps{
		Resolver: resolver.New(cat, resolver.NewRandomBalancer(1)),
		Catalog:  cat,
		Managers: executor.NewRegistry(settings, executor.LocalFetcher{}),
		Store:    st,
		Notifier: h.events,
	}
	for _, mod := range mods {
		mod(&deps)
	}
	h.sup = supervisor.New(t.Context(), deps, opts)

	t.Cleanup(func() {
		h.stop()
		st.Close()
	})
	return h
}

func (h *harness) stop() {
	h.shutdown.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.sup.Shutdown(ctx)
	})
}

func shellJob(id, script string) *supervisor.JobRequest {
	return &supervisor.JobRequest{
		Id:          id,
		User:        "alice",
		CommandArgs: fmt.Sprintf("-c '%s'", script),
		Criteria:    []model.CriteriaSet{{"local", "sh"}},
	}
}

func waitFor(t *testing.T, h *harness, id string, want model.JobStatus) *model.Job {
	t.Helper()
	var job *model.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.sup.Status(t.Context(), id)
		if err != nil || job.Status != want {
			return false
		}
		stored, err := h.store.GetJob(t.Context(), id)
		return err == nil && stored.Status == want
	}, 10*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func waitIdle(t *testing.T, h *harness) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.sup.List(t.Context())) == 0
	}, 10*time.Second, 10*time.Millisecond)
}

func defaultOpts() supervisor.Options {
	return supervisor.Options{
		MaxRunning:      4,
		Admission:       config.AdmissionQueue,
		ShutdownMode:    config.ShutdownKill,
		ShutdownTimeout: time.Second,
	}
}

func TestSubmitRunsJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	id, err := h.sup.Submit(t.Context(), shellJob("job-ok", "echo done"))
	require.NoError(t, err)
	require.Equal(t, "job-ok", id)

	job := waitFor(t, h, id, model.JobStatusSucceeded)
	require.Equal(t, "A", job.ClusterId)
	require.Equal(t, "X", job.CommandId)
	require.Equal(t, 0, job.ExitCode)
	require.NotNil(t, job.StartTime)
	require.NotNil(t, job.FinishTime)
	waitIdle(t, h)

	stored, err := h.store.GetJob(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusSucceeded, stored.Status)

	out, err := os.ReadFile(filepath.Join(stored.WorkDir, "stdout.log"))
	require.NoError(t, err)
	require.Equal(t, "done\n", string(out))

	events := h.events.Events(id)
	require.Equal(t, model.JobStatusInit, events[0].Status)
	require.Equal(t, model.JobStatusSucceeded, events[len(events)-1].Status)
	running := 0
	for _, ev := range events {
		if ev.Status == model.JobStatusRunning {
			running++
		}
	}
	require.Equal(t, 1, running)
}

func TestSubmitAssignsId(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	id, err := h.sup.Submit(t.Context(), shellJob("", "exit 0"))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	waitFor(t, h, id, model.JobStatusSucceeded)
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	req := shellJob("v1", "exit 0")
	req.User = ""
	_, err := h.sup.Submit(t.Context(), req)
	require.True(t, errs.IsKind(err, errs.KindPrecondition))

	req = shellJob("v2", "exit 0")
	req.Criteria = []model.CriteriaSet{{"local"}, {}}
	_, err = h.sup.Submit(t.Context(), req)
	require.True(t, errs.IsKind(err, errs.KindPrecondition))

	req = shellJob("../escape", "exit 0")
	_, err = h.sup.Submit(t.Context(), req)
	require.True(t, errs.IsKind(err, errs.KindPrecondition))

	_, err = h.sup.Status(t.Context(), "v1")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNonzeroExitFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	id, err := h.sup.Submit(t.Context(), shellJob("job-fail", "exit 7"))
	require.NoError(t, err)
	job := waitFor(t, h, id, model.JobStatusFailed)
	require.Equal(t, 7, job.ExitCode)
	require.Equal(t, "exit code 7", job.StatusMsg)
	require.Equal(t, string(errs.KindProcess), job.FailureKind)
}

func TestNoClusterFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	req := shellJob("job-nocluster", "exit 0")
	req.Criteria = []model.CriteriaSet{{"gpu"}, {"hadoop", "test"}}
	id, err := h.sup.Submit(t.Context(), req)
	require.NoError(t, err)

	job := waitFor(t, h, id, model.JobStatusFailed)
	require.Equal(t, string(errs.KindResolution), job.FailureKind)
	require.Equal(t, errs.ErrNoClusterFound.Error(), job.StatusMsg)
	require.Zero(t, job.ProcessId)
	require.Empty(t, job.WorkDir)
	require.Nil(t, job.StartTime)
	require.NoDirExists(t, filepath.Join(h.jobsDir, id))
}

func TestLaunchFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	req := shellJob("job-broken", "")
	req.CommandArgs = ""
	req.Criteria = []model.CriteriaSet{{"local", "broken"}}
	id, err := h.sup.Submit(t.Context(), req)
	require.NoError(t, err)

	job := waitFor(t, h, id, model.JobStatusFailed)
	require.Equal(t, string(errs.KindProcess), job.FailureKind)
	require.Equal(t, "broken", job.CommandId)
}

func TestDuplicate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	_, err := h.sup.Submit(t.Context(), shellJob("dup", "sleep 30"))
	require.NoError(t, err)
	_, err = h.sup.Submit(t.Context(), shellJob("dup", "exit 0"))
	require.ErrorIs(t, err, errs.ErrDuplicateJob)

	require.NoError(t, h.sup.Kill(t.Context(), "dup"))
	waitFor(t, h, "dup", model.JobStatusKilled)

	_, err = h.sup.Submit(t.Context(), shellJob("dup", "exit 0"))
	require.ErrorIs(t, err, errs.ErrDuplicateJob)
}

func TestKill(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	id, err := h.sup.Submit(t.Context(), shellJob("job-kill", "sleep 30"))
	require.NoError(t, err)
	running := waitFor(t, h, id, model.JobStatusRunning)
	require.NotZero(t, running.ProcessId)

	require.NoError(t, h.sup.Kill(t.Context(), id))
	job := waitFor(t, h, id, model.JobStatusKilled)
	require.Equal(t, "killed by user", job.StatusMsg)

	// killing a finished job is a no-op
	require.NoError(t, h.sup.Kill(t.Context(), id))
	stored, err := h.store.GetJob(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusKilled, stored.Status)

	require.ErrorIs(t, h.sup.Kill(t.Context(), "unknown"), errs.ErrNotFound)
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	req := shellJob("job-timeout", "sleep 30")
	req.Timeout = 1
	id, err := h.sup.Submit(t.Context(), req)
	require.NoError(t, err)

	job := waitFor(t, h, id, model.JobStatusFailed)
	require.Contains(t, job.StatusMsg, "timeout")
}

func TestConcurrentSubmissions(t *testing.T) {
	t.Parallel()
	opts := defaultOpts()
	opts.MaxRunning = 8
	h := newHarness(t, opts)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := h.sup.Submit(t.Context(), shellJob(fmt.Sprintf("job-%d", i), "exit 0"))
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.NotEmpty(t, id)
		waitFor(t, h, id, model.JobStatusSucceeded)
	}
}

func TestRejectAdmission(t *testing.T) {
	t.Parallel()
	opts := defaultOpts()
	opts.MaxRunning = 1
	opts.Admission = config.AdmissionReject
	h := newHarness(t, opts)

	_, err := h.sup.Submit(t.Context(), shellJob("first", "sleep 30"))
	require.NoError(t, err)
	_, err = h.sup.Submit(t.Context(), shellJob("second", "exit 0"))
	require.ErrorIs(t, err, errs.ErrTooManyJobs)
	_, err = h.sup.Status(t.Context(), "second")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, h.sup.Kill(t.Context(), "first"))
	waitFor(t, h, "first", model.JobStatusKilled)

	require.Eventually(t, func() bool {
		_, err := h.sup.Submit(t.Context(), shellJob("third", "exit 0"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	waitFor(t, h, "third", model.JobStatusSucceeded)
}

func TestQueueAdmission(t *testing.T) {
	t.Parallel()
	opts := defaultOpts()
	opts.MaxRunning = 1
	h := newHarness(t, opts)

	_, err := h.sup.Submit(t.Context(), shellJob("first", "sleep 30"))
	require.NoError(t, err)
	waitFor(t, h, "first", model.JobStatusRunning)

	_, err = h.sup.Submit(t.Context(), shellJob("queued", "exit 0"))
	require.NoError(t, err)
	_, err = h.sup.Submit(t.Context(), shellJob("dropped", "exit 0"))
	require.NoError(t, err)

	// the queued jobs are configured but wait for a slot
	require.Eventually(t, func() bool {
		job, err := h.sup.Status(t.Context(), "dropped")
		return err == nil && job.WorkDir != ""
	}, 5*time.Second, 10*time.Millisecond)
	job, err := h.sup.Status(t.Context(), "queued")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusInit, job.Status)

	require.NoError(t, h.sup.Kill(t.Context(), "dropped"))
	dropped := waitFor(t, h, "dropped", model.JobStatusKilled)
	require.Zero(t, dropped.ProcessId)
	require.Nil(t, dropped.StartTime)
	require.Equal(t, string(errs.KindProcess), dropped.FailureKind)

	require.NoError(t, h.sup.Kill(t.Context(), "first"))
	waitFor(t, h, "first", model.JobStatusKilled)
	waitFor(t, h, "queued", model.JobStatusSucceeded)
}

func TestRecover(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())
	ctx := t.Context()

	for id, st := range map[string]model.JobStatus{
		"was-running": model.JobStatusRunning,
		"was-init":    model.JobStatusInit,
		"was-done":    model.JobStatusSucceeded,
	} {
		require.NoError(t, h.store.CreateJob(ctx, &model.Job{Id: id, User: "alice", Status: st}))
	}

	lost, err := h.sup.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, lost)

	for id, want := range map[string]model.JobStatus{
		"was-running": model.JobStatusLost,
		"was-init":    model.JobStatusLost,
		"was-done":    model.JobStatusSucceeded,
	} {
		job, err := h.sup.Status(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, job.Status, id)
	}
	require.Len(t, h.events.Events("was-running"), 1)
}

func TestShutdownKill(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultOpts())

	_, err := h.sup.Submit(t.Context(), shellJob("long", "sleep 30"))
	require.NoError(t, err)
	waitFor(t, h, "long", model.JobStatusRunning)

	h.stop()

	job, err := h.store.GetJob(t.Context(), "long")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusKilled, job.Status)
	require.Empty(t, h.sup.List(t.Context()))

	_, err = h.sup.Submit(t.Context(), shellJob("late", "exit 0"))
	require.True(t, errs.IsKind(err, errs.KindPrecondition))
}

func TestShutdownWait(t *testing.T) {
	t.Parallel()
	opts := defaultOpts()
	opts.ShutdownMode = config.ShutdownWait
	opts.ShutdownTimeout = 10 * time.Second
	h := newHarness(t, opts)

	_, err := h.sup.Submit(t.Context(), shellJob("short", "sleep 0.2"))
	require.NoError(t, err)

	h.stop()

	job, err := h.store.GetJob(t.Context(), "short")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusSucceeded, job.Status)
}

type blockingArchiver struct {
	jobId   string
	started chan struct{}
	release chan struct{}
}

func (a *blockingArchiver) Archive(ctx context.Context, job *model.Job) error {
	if job.Id != a.jobId {
		return nil
	}
	close(a.started)
	<-a.release
	return nil
}

func TestArchiveDoesNotHoldSlot(t *testing.T) {
	t.Parallel()
	archiver := &blockingArchiver{jobId: "first", started: make(chan struct{}), release: make(chan struct{})}
	opts := defaultOpts()
	opts.MaxRunning = 1
	h := newHarness(t, opts, func(d *supervisor.Deps) { d.Archiver = archiver })
	t.Cleanup(func() { close(archiver.release) })

	_, err := h.sup.Submit(t.Context(), shellJob("first", "exit 0"))
	require.NoError(t, err)
	<-archiver.started

	_, err = h.sup.Submit(t.Context(), shellJob("second", "exit 0"))
	require.NoError(t, err)
	second := waitFor(t, h, "second", model.JobStatusSucceeded)
	require.NotNil(t, second.StartTime)

	// first is still archiving
	first, err := h.sup.Status(t.Context(), "first")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusSucceeded, first.Status)
	require.NotEmpty(t, h.sup.List(t.Context()))
}

func TestArchiveDoesNotHoldSlotReject(t *testing.T) {
	t.Parallel()
	archiver := &blockingArchiver{jobId: "first", started: make(chan struct{}), release: make(chan struct{})}
	opts := defaultOpts()
	opts.MaxRunning = 1
	opts.Admission = config.AdmissionReject
	h := newHarness(t, opts, func(d *supervisor.Deps) { d.Archiver = archiver })
	t.Cleanup(func() { close(archiver.release) })

	_, err := h.sup.Submit(t.Context(), shellJob("first", "exit 0"))
	require.NoError(t, err)
	<-archiver.started

	_, err = h.sup.Submit(t.Context(), shellJob("second", "exit 0"))
	require.NoError(t, err)
	waitFor(t, h, "second", model.JobStatusSucceeded)
}

// slowConfigure delays Configure for selected job ids.
type slowConfigure struct {
	inner  supervisor.ManagerFactory
	delays map[string]time.Duration
}

func (f *slowConfigure) NewManager(cmd *model.Command) (executor.Manager, error) {
	mgr, err := f.inner.NewManager(cmd)
	if err != nil {
		return nil, err
	}
	return &slowManager{Manager: mgr, delays: f.delays}, nil
}

type slowManager struct {
	executor.Manager
	delays map[string]time.Duration
}

func (m *slowManager) Configure(ctx context.Context, req *executor.Request) (*executor.LaunchPlan, error) {
	time.Sleep(m.delays[req.Job.Id])
	return m.Manager.Configure(ctx, req)
}

func TestQueueAdmissionFollowsSubmitOrder(t *testing.T) {
	t.Parallel()
	opts := defaultOpts()
	opts.MaxRunning = 1
	h := newHarness(t, opts, func(d *supervisor.Deps) {
		d.Managers = &slowConfigure{
			inner:  d.Managers,
			delays: map[string]time.Duration{"early": 300 * time.Millisecond},
		}
	})

	_, err := h.sup.Submit(t.Context(), shellJob("first", "sleep 30"))
	require.NoError(t, err)
	waitFor(t, h, "first", model.JobStatusRunning)

	_, err = h.sup.Submit(t.Context(), shellJob("early", "exit 0"))
	require.NoError(t, err)
	_, err = h.sup.Submit(t.Context(), shellJob("late", "exit 0"))
	require.NoError(t, err)

	// late finishes configuring long before early does
	require.Eventually(t, func() bool {
		job, err := h.sup.Status(t.Context(), "early")
		return err == nil && job.WorkDir != ""
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.sup.Kill(t.Context(), "first"))
	early := waitFor(t, h, "early", model.JobStatusSucceeded)
	late := waitFor(t, h, "late", model.JobStatusSucceeded)
	require.False(t, late.StartTime.Before(*early.StartTime))
}

type blockingNotifier struct {
	release chan struct{}
}

func (n *blockingNotifier) Notify(context.Context, notify.Event) { <-n.release }
func (n *blockingNotifier) Close()                               {}

func TestSubmitDoesNotWaitForNotifier(t *testing.T) {
	t.Parallel()
	n := &blockingNotifier{release: make(chan struct{})}
	h := newHarness(t, defaultOpts(), func(d *supervisor.Deps) { d.Notifier = n })
	t.Cleanup(func() { close(n.release) })

	submitted := make(chan error, 1)
	go func() {
		_, err := h.sup.Submit(t.Context(), shellJob("quiet", "exit 0"))
		submitted <- err
	}()
	select {
	case err := <-submitted:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("submit blocked on the notifier")
	}
}
