// Package executor prepares and spawns job processes. A Manager is created
// per job for the engine kind of the resolved command; it builds the working
// directory, argument vector and environment in Configure, then hands the
// process to a monitor in Launch.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"genie/internal/config"
	"genie/internal/errs"
	"genie/internal/model"
	"genie/internal/monitor"
	"genie/pkg/log"
)

type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateLaunched
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateConfigured:
		return "CONFIGURED"
	case StateLaunched:
		return "LAUNCHED"
	default:
		return "UNKNOWN"
	}
}

const (
	ConfDirName     = "conf"
	AppsDirName     = "apps"
	CommandDirName  = "command"
	JarsDirName     = "jars"
	GenieJobIdProp  = "genie.job.id"
	EnvironmentProp = "netflix.environment"
)

// Request is everything Configure needs about one resolved job.
type Request struct {
	Job         *model.Job
	Cluster     *model.Cluster
	Command     *model.Command
	Application *model.Application
}

type LaunchPlan struct {
	WorkDir   string
	ConfDir   string
	Args      []string
	Vars      map[string]string
	Env       []string
	Timeout   time.Duration
	KillGrace time.Duration
}

type Manager interface {
	Configure(ctx context.Context, req *Request) (*LaunchPlan, error)
	Launch(ctx context.Context) (*monitor.Monitor, error)
	State() State
}

// Settings are the server-wide values every manager reads.
type Settings struct {
	JobsDir        string
	Environment    string
	Hadoop         config.HadoopConfig
	DefaultTimeout time.Duration
	KillGrace      time.Duration
}

func SettingsFromConfig(conf *config.Config) Settings {
	return Settings{
		JobsDir:        conf.JobDir(),
		Environment:    conf.Environment,
		Hadoop:         conf.Hadoop,
		DefaultTimeout: conf.Jobs.DefaultTimeoutDuration(),
		KillGrace:      conf.Jobs.KillGraceDuration(),
	}
}

// envHook adds engine specific variables once the common setup is done.
type envHook func(ctx context.Context, req *Request, plan *LaunchPlan) error

type manager struct {
	kind     string
	settings Settings
	fetcher  Fetcher
	hook     envHook

	mu    sync.Mutex
	state State
	plan  *LaunchPlan
}

func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *manager) Configure(ctx context.Context, req *Request) (*LaunchPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUninitialized {
		return nil, errs.Precondition("job already %s", strings.ToLower(m.state.String()))
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	logger := log.GetLogger(ctx).WithField("component", "executor").WithField("kind", m.kind)
	plan, err := m.configureCommon(ctx, req)
	if err != nil {
		return nil, err
	}
	if m.hook != nil {
		if err := m.hook(ctx, req, plan); err != nil {
			return nil, err
		}
	}
	plan.Env = mergeEnv(os.Environ(), plan.Vars)

	m.plan = plan
	m.state = StateConfigured
	logger.Infof("configured job in %s: %s", plan.WorkDir, strings.Join(plan.Args, " "))
	return plan, nil
}

func (m *manager) Launch(ctx context.Context) (*monitor.Monitor, error) {
	m.mu.Lock()
	switch m.state {
	case StateUninitialized:
		m.mu.Unlock()
		return nil, errs.ErrNotConfigured
	case StateLaunched:
		m.mu.Unlock()
		return nil, errs.Precondition("job already launched")
	}
	m.state = StateLaunched
	plan := m.plan
	m.mu.Unlock()

	return monitor.Start(ctx, monitor.Options{
		Dir:       plan.WorkDir,
		Args:      plan.Args,
		Env:       plan.Env,
		Timeout:   plan.Timeout,
		KillGrace: plan.KillGrace,
	})
}

func validateRequest(req *Request) error {
	switch {
	case req == nil || req.Job == nil:
		return errs.Precondition("no job to configure")
	case req.Job.Id == "":
		return errs.Precondition("job id is required")
	case req.Cluster == nil:
		return errs.Precondition("no cluster resolved for job %s", req.Job.Id)
	case req.Command == nil:
		return errs.Precondition("no command resolved for job %s", req.Job.Id)
	}
	return nil
}

func (m *manager) configureCommon(ctx context.Context, req *Request) (*LaunchPlan, error) {
	job, cluster, cmd, app := req.Job, req.Cluster, req.Command, req.Application

	workDir := filepath.Join(m.settings.JobsDir, job.Id)
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	confDir := filepath.Join(workDir, ConfDirName)
	cmdDir := filepath.Join(workDir, CommandDirName)
	dirs := []string{confDir, cmdDir}
	var appConfDir, appJarsDir string
	if app != nil {
		appConfDir = filepath.Join(workDir, AppsDirName, app.Id, ConfDirName)
		appJarsDir = filepath.Join(workDir, AppsDirName, app.Id, JarsDirName)
		dirs = append(dirs, appConfDir, appJarsDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.ServerConfiguration("create job directory %s: %v", dir, err)
		}
	}

	vars := map[string]string{
		"GENIE_JOB_ID":              job.Id,
		"CURRENT_JOB_WORKING_DIR":   workDir,
		"CURRENT_JOB_CONF_DIR":      confDir,
		"GENIE_CLUSTER_ID":          cluster.Id,
		"GENIE_CLUSTER_NAME":        cluster.Name,
		"GENIE_COMMAND_ID":          cmd.Id,
		"GENIE_COMMAND_NAME":        cmd.Name,
		"S3_CLUSTER_CONF_FILES":     strings.Join(cluster.Configs, ","),
		"S3_COMMAND_CONF_FILES":     strings.Join(cmd.Configs, ","),
		"S3_APPLICATION_CONF_FILES": "",
		"S3_APPLICATION_JAR_FILES":  "",
	}

	if err := m.fetchAll(ctx, cluster.Configs, confDir); err != nil {
		return nil, err
	}
	if err := m.fetchAll(ctx, cmd.Configs, confDir); err != nil {
		return nil, err
	}
	if cmd.SetupFile != "" {
		local, err := m.fetcher.Fetch(ctx, cmd.SetupFile, cmdDir)
		if err != nil {
			return nil, err
		}
		vars["COMMAND_ENV_FILE"] = local
	}
	if app != nil {
		vars["S3_APPLICATION_CONF_FILES"] = strings.Join(app.Configs, ",")
		vars["S3_APPLICATION_JAR_FILES"] = strings.Join(app.Jars, ",")
		if err := m.fetchAll(ctx, app.Configs, appConfDir); err != nil {
			return nil, err
		}
		if err := m.fetchAll(ctx, app.Jars, appJarsDir); err != nil {
			return nil, err
		}
		if app.SetupFile != "" {
			local, err := m.fetcher.Fetch(ctx, app.SetupFile, filepath.Dir(appConfDir))
			if err != nil {
				return nil, err
			}
			vars["APPLICATION_ENV_FILE"] = local
		}
	}
	for k, v := range vars {
		if v == "" {
			delete(vars, k)
		}
	}

	args, err := BuildArgs(cmd.Executable, job.CommandArgs)
	if err != nil {
		return nil, err
	}

	timeout := m.settings.DefaultTimeout
	if job.Timeout > 0 {
		timeout = time.Duration(job.Timeout) * time.Second
	}
	return &LaunchPlan{
		WorkDir:   workDir,
		ConfDir:   confDir,
		Args:      args,
		Vars:      vars,
		Timeout:   timeout,
		KillGrace: m.settings.KillGrace,
	}, nil
}

func (m *manager) fetchAll(ctx context.Context, locations []string, dstDir string) error {
	for _, loc := range locations {
		if _, err := m.fetcher.Fetch(ctx, loc, dstDir); err != nil {
			return err
		}
	}
	return nil
}

// BuildArgs splits the command executable and the job arguments with shell
// quoting rules and concatenates them.
func BuildArgs(executable, commandArgs string) ([]string, error) {
	exe, err := shellwords.Parse(executable)
	if err != nil {
		return nil, errs.Precondition("parse executable %q: %v", executable, err)
	}
	if len(exe) == 0 {
		return nil, errs.Precondition("command has no executable")
	}
	args, err := shellwords.Parse(commandArgs)
	if err != nil {
		return nil, errs.Precondition("parse command args: %v", err)
	}
	return append(exe, args...), nil
}

// mergeEnv overlays vars on base; overridden keys are dropped from base and
// vars are appended in key order.
func mergeEnv(base []string, vars map[string]string) []string {
	out := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := vars[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, vars[k]))
	}
	return out
}
