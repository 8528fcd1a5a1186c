// Package supervisor accepts jobs, runs each one in its own worker through
// resolution, configuration, admission, launch and monitoring, and keeps the
// registry of live jobs.
package supervisor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"genie/internal/catalog"
	"genie/internal/config"
	"genie/internal/errs"
	"genie/internal/executor"
	"genie/internal/model"
	"genie/internal/monitor"
	"genie/internal/notify"
	"genie/internal/resolver"
	"genie/internal/store"
	"genie/pkg/log"
)

const persistTimeout = 10 * time.Second

type Resolver interface {
	Resolve(ctx context.Context, criteria []model.CriteriaSet) (*resolver.Candidate, error)
}

type ManagerFactory interface {
	NewManager(cmd *model.Command) (executor.Manager, error)
}

// Archiver copies the output of a finished job somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, job *model.Job) error
}

type JobRequest struct {
	Id          string              `json:"id,omitempty" binding:"omitempty,jobid"`
	Name        string              `json:"name,omitempty"`
	User        string              `json:"user" binding:"required"`
	Group       string              `json:"group,omitempty"`
	CommandArgs string              `json:"commandArgs"`
	Criteria    []model.CriteriaSet `json:"criteria" binding:"required,min=1,dive,min=1"`
	Environment string              `json:"environment,omitempty"`
	Timeout     int                 `json:"timeout,omitempty" binding:"gte=0"`
}

func (r *JobRequest) Validate() error {
	if strings.TrimSpace(r.User) == "" {
		return errs.Precondition("user is required")
	}
	if len(r.Criteria) == 0 {
		return errs.Precondition("at least one criteria set is required")
	}
	for i, set := range r.Criteria {
		if len(set) == 0 {
			return errs.Precondition("criteria set %d is empty", i)
		}
	}
	if r.Timeout < 0 {
		return errs.Precondition("timeout must not be negative")
	}
	if strings.ContainsAny(r.Id, "/\\") || r.Id == "." || r.Id == ".." {
		return errs.Precondition("invalid job id %q", r.Id)
	}
	return nil
}

type Deps struct {
	Resolver Resolver
	Catalog  catalog.Reader
	Managers ManagerFactory
	Store    store.JobStore
	Notifier notify.Notifier
	Archiver Archiver
}

type Options struct {
	MaxRunning      int
	Admission       string
	ShutdownMode    string
	ShutdownTimeout time.Duration
}

func OptionsFromConfig(conf config.JobsConfig) Options {
	return Options{
		MaxRunning:      conf.MaxRunning,
		Admission:       conf.Admission,
		ShutdownMode:    conf.ShutdownMode,
		ShutdownTimeout: conf.ShutdownTimeoutDuration(),
	}
}

type Supervisor struct {
	deps   Deps
	opts   Options
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Entry

	mu     sync.Mutex
	jobs   map[string]*entry
	closed bool
	wg     sync.WaitGroup
	// lastTurn is the admission turn of the most recent queued submission.
	lastTurn chan struct{}
}

func New(ctx context.Context, deps Deps, opts Options) *Supervisor {
	if opts.MaxRunning <= 0 {
		opts.MaxRunning = 1
	}
	if opts.Admission == "" {
		opts.Admission = config.AdmissionQueue
	}
	if opts.ShutdownMode == "" {
		opts.ShutdownMode = config.ShutdownWait
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Supervisor{
		deps:   deps,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxRunning)),
		ctx:    ctx,
		cancel: cancel,
		logger: log.GetLogger(ctx).WithField("component", "supervisor"),
		jobs:   make(map[string]*entry),
	}
}

// Submit registers the job and starts its worker. It returns as soon as the
// INIT record is persisted.
func (s *Supervisor) Submit(ctx context.Context, req *JobRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	id := req.Id
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	job := &model.Job{
		Id:          id,
		Name:        req.Name,
		User:        req.User,
		Group:       req.Group,
		CommandArgs: req.CommandArgs,
		Criteria:    req.Criteria,
		Environment: req.Environment,
		Timeout:     req.Timeout,
		Status:      model.JobStatusInit,
		ExitCode:    -1,
		CreateTime:  now,
		UpdateTime:  now,
	}
	e := newEntry(job)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errs.Precondition("server is shutting down")
	}
	if _, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		return "", errs.ErrDuplicateJob
	}
	if s.opts.Admission == config.AdmissionReject {
		if !s.sem.TryAcquire(1) {
			s.mu.Unlock()
			return "", errs.ErrTooManyJobs
		}
		e.slot = true
	} else {
		e.prevTurn = s.lastTurn
		s.lastTurn = e.turn
	}
	s.jobs[id] = e
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.deps.Store.CreateJob(ctx, job.Clone()); err != nil {
		s.remove(e)
		e.passTurn()
		e.releaseSlot(s.sem)
		s.wg.Done()
		return "", err
	}

	log.GetLogger(ctx).WithField("job", id).Infof("job submitted by %s", job.User)

	go s.run(e)
	return id, nil
}

// Status returns the live view of a job, falling back to the store for jobs
// that are no longer running.
func (s *Supervisor) Status(ctx context.Context, id string) (*model.Job, error) {
	if e := s.get(id); e != nil {
		return e.snapshot(), nil
	}
	return s.deps.Store.GetJob(ctx, id)
}

// Kill cancels a live job. Killing a finished job is a no-op.
func (s *Supervisor) Kill(ctx context.Context, id string) error {
	if e := s.get(id); e != nil {
		if e.kill("killed by user") {
			log.GetLogger(ctx).WithField("job", id).Info("kill requested")
		}
		return nil
	}
	if _, err := s.deps.Store.GetJob(ctx, id); err != nil {
		return err
	}
	return nil
}

// List returns the live jobs ordered by submission time.
func (s *Supervisor) List(ctx context.Context) []*model.Job {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreateTime.Before(out[j].CreateTime)
	})
	return out
}

// Recover marks persisted jobs that are still INIT or RUNNING but have no
// live worker as LOST. It runs once at startup.
func (s *Supervisor) Recover(ctx context.Context) (int, error) {
	jobs, err := s.deps.Store.ListJobs(ctx, model.JobStatusInit, model.JobStatusRunning)
	if err != nil {
		return 0, err
	}
	lost := 0
	for _, job := range jobs {
		if s.get(job.Id) != nil {
			continue
		}
		now := time.Now()
		job.Status = model.JobStatusLost
		job.StatusMsg = "job has no live process after restart"
		job.FinishTime = &now
		job.UpdateTime = now
		if err := s.deps.Store.SaveJob(ctx, job); err != nil {
			s.logger.WithError(err).Errorf("mark job %s lost", job.Id)
			continue
		}
		s.deps.Notifier.Notify(ctx, notify.EventFromJob(job))
		s.logger.Warnf("job %s marked LOST", job.Id)
		lost++
	}
	return lost, nil
}

// Shutdown stops accepting jobs and brings every live job to a terminal
// status, waiting or killing according to the shutdown mode.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.opts.ShutdownMode == config.ShutdownWait {
		var deadline <-chan time.Time
		if s.opts.ShutdownTimeout > 0 {
			timer := time.NewTimer(s.opts.ShutdownTimeout)
			defer timer.Stop()
			deadline = timer.C
		}
		s.logger.Infof("waiting for %d jobs to finish", len(s.List(ctx)))
		select {
		case <-done:
		case <-deadline:
			s.logger.Warn("shutdown timeout, killing remaining jobs")
		case <-ctx.Done():
			s.logger.Warn("shutdown cancelled, killing remaining jobs")
		}
	}

	s.killAll("killed on server shutdown")
	<-done
	s.cancel()
	s.logger.Info("supervisor stopped")
}

func (s *Supervisor) killAll(reason string) {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.kill(reason)
	}
}

func (s *Supervisor) get(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *Supervisor) remove(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[e.id] == e {
		delete(s.jobs, e.id)
	}
}

// run drives one job from INIT to a terminal status.
func (s *Supervisor) run(e *entry) {
	defer s.wg.Done()
	defer s.remove(e)
	defer e.releaseSlot(s.sem)

	ctx := log.WithJobId(s.ctx, e.id)
	logger := log.GetLogger(ctx).WithField("component", "supervisor")
	s.deps.Notifier.Notify(ctx, notify.EventFromJob(e.snapshot()))

	result := s.execute(ctx, e)
	// no process is left; free the slot before persisting and archiving
	e.passTurn()
	e.releaseSlot(s.sem)
	job := s.finish(ctx, e, result)
	logger.Infof("job finished: %s %s", job.Status, job.StatusMsg)

	if s.deps.Archiver != nil && job.WorkDir != "" {
		if err := s.deps.Archiver.Archive(ctx, job); err != nil {
			logger.WithError(err).Warn("archive job output failed")
		}
	}
}

func failed(err error) monitor.Result {
	reason := err.Error()
	kind := errs.KindOf(err)
	return monitor.Result{Status: model.JobStatusFailed, ExitCode: -1, Reason: reason, Kind: kind}
}

func (s *Supervisor) execute(ctx context.Context, e *entry) monitor.Result {
	logger := log.GetLogger(ctx).WithField("component", "supervisor")
	if r, ok := e.killedResult(); ok {
		return r
	}

	job := e.snapshot()
	cand, err := s.deps.Resolver.Resolve(ctx, job.Criteria)
	if err != nil {
		logger.WithError(err).Warn("resolve job failed")
		return failed(err)
	}
	s.update(ctx, e, func(j *model.Job) {
		j.Bind(cand.Cluster, cand.Command)
	})

	var app *model.Application
	if cand.Command.ApplicationId != "" {
		app, err = s.deps.Catalog.Application(cand.Command.ApplicationId)
		if err != nil {
			return failed(errs.ServerConfiguration("command %s references application %s: %v",
				cand.Command.Id, cand.Command.ApplicationId, err))
		}
	}

	mgr, err := s.deps.Managers.NewManager(cand.Command)
	if err != nil {
		return failed(err)
	}
	plan, err := mgr.Configure(ctx, &executor.Request{
		Job:         e.snapshot(),
		Cluster:     cand.Cluster,
		Command:     cand.Command,
		Application: app,
	})
	if err != nil {
		logger.WithError(err).Warn("configure job failed")
		return failed(err)
	}
	s.update(ctx, e, func(j *model.Job) {
		j.WorkDir = plan.WorkDir
	})

	if !e.hasSlot() {
		err := e.waitTurn()
		if err == nil {
			err = s.sem.Acquire(e.admitCtx, 1)
		}
		e.passTurn()
		if err != nil {
			if r, ok := e.killedResult(); ok {
				return r
			}
			return failed(errs.Process(err, "admission"))
		}
		e.setSlot()
	}

	mon, err := e.launch(ctx, mgr)
	if err != nil {
		if r, ok := e.killedResult(); ok && errs.IsKind(err, errs.KindPrecondition) {
			return r
		}
		logger.WithError(err).Error("launch job failed")
		return failed(err)
	}

	now := time.Now()
	s.update(ctx, e, func(j *model.Job) {
		j.Status = model.JobStatusRunning
		j.StartTime = &now
		j.ProcessId = mon.Pid()
	})

	<-mon.Done()
	r, _ := mon.Result()
	return r
}

// update applies fn to the live job and persists the new record.
func (s *Supervisor) update(ctx context.Context, e *entry, fn func(j *model.Job)) {
	job := e.mutate(func(j *model.Job) {
		fn(j)
		j.UpdateTime = time.Now()
	})
	s.persist(ctx, job)
}

func (s *Supervisor) finish(ctx context.Context, e *entry, r monitor.Result) *model.Job {
	job := e.mutate(func(j *model.Job) {
		finish := r.FinishTime
		if finish.IsZero() {
			finish = time.Now()
		}
		j.Status = r.Status
		j.StatusMsg = r.Reason
		j.FailureKind = string(r.Kind)
		j.ExitCode = r.ExitCode
		j.FinishTime = &finish
		j.UpdateTime = finish
	})
	s.persist(ctx, job)
	return job
}

func (s *Supervisor) persist(ctx context.Context, job *model.Job) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.deps.Store.SaveJob(pctx, job); err != nil {
		log.GetLogger(ctx).WithError(err).Errorf("persist job status %s failed", job.Status)
	}
	s.deps.Notifier.Notify(ctx, notify.EventFromJob(job))
}
