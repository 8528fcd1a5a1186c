// Package monitor owns one running job process: it captures the output
// streams, enforces the job deadline and reports the terminal status once.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"genie/internal/errs"
	"genie/internal/model"
	"genie/pkg/log"
)

const (
	StdoutFile = "stdout.log"
	StderrFile = "stderr.log"

	DefaultKillGrace = 10 * time.Second
)

type Result struct {
	Status     model.JobStatus
	ExitCode   int
	Reason     string
	Kind       errs.Kind
	FinishTime time.Time
}

type Options struct {
	Dir  string
	Args []string
	Env  []string
	// Timeout of zero means no deadline.
	Timeout   time.Duration
	KillGrace time.Duration
	// OnExit is called exactly once, after the process has been reaped.
	OnExit func(Result)
}

type Monitor struct {
	opts   Options
	cmd    *exec.Cmd
	logger *logrus.Entry
	signal func(pid int, sig syscall.Signal) error

	mu       sync.Mutex
	decided  bool
	result   Result
	killOnce sync.Once
	killReq  chan struct{}
	done     chan struct{}
}

// Start spawns the process in its own process group and returns without
// waiting for it.
func Start(ctx context.Context, opts Options) (*Monitor, error) {
	if len(opts.Args) == 0 {
		return nil, errs.Precondition("empty command line")
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}

	stdout, err := os.OpenFile(filepath.Join(opts.Dir, StdoutFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errs.Process(err, "open stdout log")
	}
	stderr, err := os.OpenFile(filepath.Join(opts.Dir, StderrFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		stdout.Close()
		return nil, errs.Process(err, "open stderr log")
	}

	cmd := exec.Command(opts.Args[0], opts.Args[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, errs.Process(err, "spawn %s", opts.Args[0])
	}

	m := &Monitor{
		opts:    opts,
		cmd:     cmd,
		logger:  log.GetLogger(ctx).WithField("component", "monitor").WithField("pid", cmd.Process.Pid),
		signal:  syscall.Kill,
		killReq: make(chan struct{}),
		done:    make(chan struct{}),
	}
	m.logger.Infof("process started: %s", opts.Args[0])

	go m.run(stdout, stderr)
	return m, nil
}

func (m *Monitor) Pid() int {
	return m.cmd.Process.Pid
}

// Done is closed once the process is reaped and the result is final.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Result returns the terminal result; ok is false while the process runs.
func (m *Monitor) Result() (Result, bool) {
	select {
	case <-m.done:
	default:
		return Result{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, true
}

func (m *Monitor) Wait(ctx context.Context) (Result, error) {
	select {
	case <-m.done:
		r, _ := m.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Kill asks for termination. It reports whether this request decided the
// terminal status; false means the process had already finished or another
// transition was observed first.
func (m *Monitor) Kill(reason string) bool {
	if reason == "" {
		reason = "job killed"
	}
	won := m.decide(Result{Status: model.JobStatusKilled, ExitCode: -1, Reason: reason, Kind: errs.KindProcess})
	if won {
		m.killOnce.Do(func() { close(m.killReq) })
	}
	return won
}

// decide records the first terminal transition and ignores later ones.
func (m *Monitor) decide(r Result) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decided {
		return false
	}
	m.decided = true
	m.result = r
	return true
}

func (m *Monitor) run(stdout, stderr *os.File) {
	waitCh := make(chan error, 1)
	go func() { waitCh <- m.cmd.Wait() }()

	var timeout <-chan time.Time
	if m.opts.Timeout > 0 {
		timer := time.NewTimer(m.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-waitCh:
		m.decide(exitResult(waitErr, m.cmd.ProcessState))
	case <-m.killReq:
		m.logger.Info("kill requested")
		waitErr = m.terminate(waitCh)
	case <-timeout:
		if m.decide(Result{
			Status:   model.JobStatusFailed,
			ExitCode: -1,
			Reason:   fmt.Sprintf("job exceeded timeout of %v", m.opts.Timeout),
			Kind:     errs.KindProcess,
		}) {
			m.logger.Warnf("timeout after %v", m.opts.Timeout)
		}
		waitErr = m.terminate(waitCh)
	}
	stdout.Close()
	stderr.Close()

	m.mu.Lock()
	if m.result.ExitCode == -1 && m.cmd.ProcessState != nil {
		m.result.ExitCode = m.cmd.ProcessState.ExitCode()
	}
	m.result.FinishTime = time.Now()
	result := m.result
	m.mu.Unlock()

	if waitErr != nil && result.Status == model.JobStatusSucceeded {
		m.logger.WithError(waitErr).Warn("wait error on successful exit")
	}
	m.logger.Infof("process finished: %s (%s)", result.Status, result.Reason)

	if m.opts.OnExit != nil {
		m.opts.OnExit(result)
	}
	close(m.done)
}

// terminate sends SIGTERM to the process group, then SIGKILL once the grace
// period is over, and waits for the process to be reaped. A process that was
// already reaped is not signalled; its group id may belong to someone else.
func (m *Monitor) terminate(waitCh <-chan error) error {
	select {
	case err := <-waitCh:
		return err
	default:
	}

	pgid := -m.cmd.Process.Pid
	_ = m.signal(pgid, syscall.SIGTERM)

	grace := time.NewTimer(m.opts.KillGrace)
	defer grace.Stop()
	select {
	case err := <-waitCh:
		return err
	case <-grace.C:
		m.logger.Warnf("process ignored SIGTERM for %v, sending SIGKILL", m.opts.KillGrace)
		_ = m.signal(pgid, syscall.SIGKILL)
		return <-waitCh
	}
}

func exitResult(waitErr error, state *os.ProcessState) Result {
	if waitErr == nil {
		return Result{Status: model.JobStatusSucceeded, ExitCode: 0}
	}
	code := -1
	if state != nil {
		code = state.ExitCode()
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return Result{Status: model.JobStatusFailed, ExitCode: code, Reason: waitErr.Error(), Kind: errs.KindProcess}
	}
	return Result{
		Status:   model.JobStatusFailed,
		ExitCode: code,
		Reason:   fmt.Sprintf("exit code %d", code),
		Kind:     errs.KindProcess,
	}
}
