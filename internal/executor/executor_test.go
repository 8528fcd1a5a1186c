package executor_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genie/internal/config"
	"genie/internal/errs"
	"genie/internal/executor"
	"genie/internal/model"
	"genie/internal/monitor"
)

func settings(t *testing.T) executor.Settings {
	t.Helper()
	return executor.Settings{
		JobsDir:     t.TempDir(),
		Environment: "test",
		Hadoop:      config.DefaultHadoopConfig(),
		KillGrace:   time.Second,
	}
}

func request(id string) *executor.Request {
	return &executor.Request{
		Job:     &model.Job{Id: id, User: "alice", CommandArgs: `-c 'echo "$GENIE_JOB_ID"'`},
		Cluster: &model.Cluster{Id: "A", Name: "cluster-a"},
		Command: &model.Command{Id: "X", Name: "sh", Executable: "sh"},
	}
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	return m
}

func TestLaunchBeforeConfigure(t *testing.T) {
	t.Parallel()
	s := settings(t)
	m := executor.NewShellManager(s, executor.LocalFetcher{})

	mon, err := m.Launch(t.Context())
	require.ErrorIs(t, err, errs.ErrNotConfigured)
	require.True(t, errs.IsKind(err, errs.KindPrecondition))
	require.Nil(t, mon)
	require.Equal(t, executor.StateUninitialized, m.State())

	entries, err := os.ReadDir(s.JobsDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestShellConfigureAndLaunch(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
	s := settings(t)
	m := executor.NewShellManager(s, executor.LocalFetcher{})

	plan, err := m.Configure(t.Context(), request("job-1"))
	require.NoError(t, err)
	require.Equal(t, executor.StateConfigured, m.State())
	require.Equal(t, []string{"sh", "-c", `echo "$GENIE_JOB_ID"`}, plan.Args)
	require.DirExists(t, filepath.Join(plan.WorkDir, "conf"))
	require.DirExists(t, filepath.Join(plan.WorkDir, "command"))

	env := envMap(plan.Env)
	require.Equal(t, "job-1", env["GENIE_JOB_ID"])
	require.Equal(t, plan.WorkDir, env["CURRENT_JOB_WORKING_DIR"])
	require.Equal(t, "A", env["GENIE_CLUSTER_ID"])
	require.Equal(t, "sh", env["GENIE_COMMAND_NAME"])
	require.NotContains(t, env, "HADOOP_HOME")
	require.NotContains(t, env, "S3_CLUSTER_CONF_FILES")
	require.Equal(t, os.Getenv("PATH"), env["PATH"])

	_, err = m.Configure(t.Context(), request("job-1"))
	require.True(t, errs.IsKind(err, errs.KindPrecondition))

	mon, err := m.Launch(t.Context())
	require.NoError(t, err)
	require.Equal(t, executor.StateLaunched, m.State())
	r, err := mon.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, model.JobStatusSucceeded, r.Status)

	out, err := os.ReadFile(filepath.Join(plan.WorkDir, monitor.StdoutFile))
	require.NoError(t, err)
	require.Equal(t, "job-1\n", string(out))

	_, err = m.Launch(t.Context())
	require.True(t, errs.IsKind(err, errs.KindPrecondition))
}

func TestConfigureFetchesArtifacts(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	write := func(name string) string {
		p := filepath.Join(src, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0644))
		return p
	}

	req := request("job-2")
	req.Cluster.Configs = []string{write("core-site.xml")}
	req.Command.Configs = []string{"file://" + write("hive-site.xml")}
	req.Command.SetupFile = write("hive.env")
	req.Application = &model.Application{
		Id:        "app1",
		Name:      "hive-app",
		Configs:   []string{write("app.xml")},
		Jars:      []string{write("udf.jar")},
		SetupFile: write("app.env"),
	}

	m := executor.NewShellManager(settings(t), executor.NewSchemeFetcher(nil))
	plan, err := m.Configure(t.Context(), req)
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(plan.ConfDir, "core-site.xml"))
	require.FileExists(t, filepath.Join(plan.ConfDir, "hive-site.xml"))
	require.FileExists(t, filepath.Join(plan.WorkDir, "command", "hive.env"))
	require.FileExists(t, filepath.Join(plan.WorkDir, "apps", "app1", "conf", "app.xml"))
	require.FileExists(t, filepath.Join(plan.WorkDir, "apps", "app1", "jars", "udf.jar"))

	require.Equal(t, req.Cluster.Configs[0], plan.Vars["S3_CLUSTER_CONF_FILES"])
	require.Equal(t, req.Application.Jars[0], plan.Vars["S3_APPLICATION_JAR_FILES"])
	require.Equal(t, filepath.Join(plan.WorkDir, "command", "hive.env"), plan.Vars["COMMAND_ENV_FILE"])
	require.Equal(t, filepath.Join(plan.WorkDir, "apps", "app1", "app.env"), plan.Vars["APPLICATION_ENV_FILE"])
}

func TestConfigureFetchFailures(t *testing.T) {
	t.Parallel()

	req := request("job-3")
	req.Cluster.Configs = []string{"s3://bucket/core-site.xml"}
	m := executor.NewShellManager(settings(t), executor.NewSchemeFetcher(nil))
	_, err := m.Configure(t.Context(), req)
	require.True(t, errs.IsKind(err, errs.KindServerConfiguration))
	require.Equal(t, executor.StateUninitialized, m.State())

	req = request("job-4")
	req.Cluster.Configs = []string{filepath.Join(t.TempDir(), "missing.xml")}
	m = executor.NewShellManager(settings(t), executor.NewSchemeFetcher(nil))
	_, err = m.Configure(t.Context(), req)
	require.True(t, errs.IsKind(err, errs.KindProcess))
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()
	args, err := executor.BuildArgs("/usr/bin/hive --service cli", `-e "select * from t" -f 'my file.q'`)
	require.NoError(t, err)
	require.Equal(t, []string{"/usr/bin/hive", "--service", "cli", "-e", "select * from t", "-f", "my file.q"}, args)

	args, err = executor.BuildArgs("pig", "")
	require.NoError(t, err)
	require.Equal(t, []string{"pig"}, args)

	_, err = executor.BuildArgs("", "x")
	require.True(t, errs.IsKind(err, errs.KindPrecondition))

	_, err = executor.BuildArgs("pig", `-e "unterminated`)
	require.True(t, errs.IsKind(err, errs.KindPrecondition))
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := executor.NewRegistry(settings(t), executor.LocalFetcher{})

	for _, kind := range []string{"", "shell", "yarn", "Hadoop", "hive", "pig"} {
		m, err := r.NewManager(&model.Command{Id: "c", JobType: kind})
		require.NoError(t, err, kind)
		require.Equal(t, executor.StateUninitialized, m.State())
	}

	_, err := r.NewManager(&model.Command{Id: "c", JobType: "spark"})
	require.True(t, errs.IsKind(err, errs.KindServerConfiguration))
}
