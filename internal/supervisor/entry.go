package supervisor

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"genie/internal/errs"
	"genie/internal/executor"
	"genie/internal/model"
	"genie/internal/monitor"
)

// entry is the registry record of one live job. Its fields are guarded by
// mu; only the job's worker and the Kill entry point touch it.
type entry struct {
	id string

	mu          sync.Mutex
	job         *model.Job
	monitor     *monitor.Monitor
	killed      bool
	killReason  string
	slot        bool
	admitCtx    context.Context
	cancelAdmit context.CancelFunc

	// prevTurn is closed once the job submitted before this one has taken
	// its admission slot or given up on it; turn is the same signal for
	// the next job.
	prevTurn <-chan struct{}
	turn     chan struct{}
	turnOnce sync.Once
}

func newEntry(job *model.Job) *entry {
	ctx, cancel := context.WithCancel(context.Background())
	return &entry{
		id:          job.Id,
		job:         job,
		admitCtx:    ctx,
		cancelAdmit: cancel,
		turn:        make(chan struct{}),
	}
}

func (e *entry) snapshot() *model.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone()
}

func (e *entry) mutate(fn func(j *model.Job)) *model.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.job)
	return e.job.Clone()
}

// kill marks the job killed and forwards the request to the process when
// one is running. It reports whether this call changed anything.
func (e *entry) kill(reason string) bool {
	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		return false
	}
	e.killed = true
	e.killReason = reason
	mon := e.monitor
	e.mu.Unlock()

	e.cancelAdmit()
	if mon != nil {
		return mon.Kill(reason)
	}
	return true
}

func (e *entry) killedResult() (monitor.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.killed {
		return monitor.Result{}, false
	}
	return monitor.Result{
		Status:   model.JobStatusKilled,
		ExitCode: -1,
		Reason:   e.killReason,
		Kind:     errs.KindProcess,
	}, true
}

// launch spawns the process unless a kill arrived first. A kill that races
// with the spawn is forwarded to the new monitor.
func (e *entry) launch(ctx context.Context, mgr executor.Manager) (*monitor.Monitor, error) {
	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		return nil, errs.Precondition("job killed before launch")
	}
	e.mu.Unlock()

	mon, err := mgr.Launch(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.monitor = mon
	killed, reason := e.killed, e.killReason
	e.mu.Unlock()
	if killed {
		mon.Kill(reason)
	}
	return mon, nil
}

func (e *entry) hasSlot() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slot
}

func (e *entry) setSlot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.slot = true
}

func (e *entry) releaseSlot(sem *semaphore.Weighted) {
	e.mu.Lock()
	held := e.slot
	e.slot = false
	e.mu.Unlock()
	e.cancelAdmit()
	if held {
		sem.Release(1)
	}
}

// waitTurn blocks until every job submitted earlier has been admitted or
// has left the queue.
func (e *entry) waitTurn() error {
	if e.prevTurn == nil {
		return nil
	}
	select {
	case <-e.prevTurn:
		return nil
	case <-e.admitCtx.Done():
		return e.admitCtx.Err()
	}
}

// passTurn lets the next job in submission order ask for a slot. A job that
// leaves early still hands over only after its own predecessor has.
func (e *entry) passTurn() {
	e.turnOnce.Do(func() {
		prev := e.prevTurn
		if prev == nil {
			close(e.turn)
			return
		}
		select {
		case <-prev:
			close(e.turn)
		default:
			go func() {
				<-prev
				close(e.turn)
			}()
		}
	})
}
