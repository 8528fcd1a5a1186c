package executor_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"genie/internal/config"
	"genie/internal/errs"
	"genie/internal/executor"
)

func TestCoreSiteXMLArgs(t *testing.T) {
	t.Parallel()
	require.Equal(t, "genie.job.id=123;netflix.environment=test",
		executor.CoreSiteXMLArgs("123", "test", false, "lipstick.uuid.prop.name"))
	require.Equal(t, "genie.job.id=123;netflix.environment=prod;lipstick.uuid.prop.name=genie.job.id",
		executor.CoreSiteXMLArgs("123", "prod", true, "lipstick.uuid.prop.name"))
	require.Equal(t, "genie.job.id=123",
		executor.CoreSiteXMLArgs("123", "", true, ""))
}

func TestTrimVersion(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"2.6.0-amzn-1": "2.6.0",
		"2.6.0":        "2.6.0",
		"2.7.3.2":      "2.7.3",
		"3.1":          "3.1",
		"":             "",
	}
	for in, want := range cases {
		require.Equal(t, want, executor.TrimVersion(in), in)
	}
}

func TestHadoopHome(t *testing.T) {
	t.Parallel()
	exact := t.TempDir()
	trimmed := t.TempDir()
	def := t.TempDir()
	missing := filepath.Join(t.TempDir(), "not-there")

	hadoop := config.DefaultHadoopConfig()
	hadoop.Homes = map[string]string{"2.6.0": trimmed}

	t.Run("trimmed version used when exact is missing", func(t *testing.T) {
		home, err := executor.HadoopHome(hadoop, "2.6.0-amzn-1")
		require.NoError(t, err)
		require.Equal(t, trimmed, home)
	})
	t.Run("exact version wins", func(t *testing.T) {
		h := hadoop
		h.Homes = map[string]string{"2.6.0-amzn-1": exact, "2.6.0": trimmed}
		home, err := executor.HadoopHome(h, "2.6.0-amzn-1")
		require.NoError(t, err)
		require.Equal(t, exact, home)
	})
	t.Run("exact entry that is not a directory falls through", func(t *testing.T) {
		h := hadoop
		h.Homes = map[string]string{"2.6.0-amzn-1": missing, "2.6.0": trimmed}
		home, err := executor.HadoopHome(h, "2.6.0-amzn-1")
		require.NoError(t, err)
		require.Equal(t, trimmed, home)
	})
	t.Run("default home", func(t *testing.T) {
		h := hadoop
		h.Homes = nil
		h.Home = def
		home, err := executor.HadoopHome(h, "3.3.6")
		require.NoError(t, err)
		require.Equal(t, def, home)

		home, err = executor.HadoopHome(h, "")
		require.NoError(t, err)
		require.Equal(t, def, home)
	})
	t.Run("nothing resolves", func(t *testing.T) {
		h := hadoop
		h.Homes = map[string]string{"2.6.0": missing}
		_, err := executor.HadoopHome(h, "2.6.0-amzn-1")
		require.True(t, errs.IsKind(err, errs.KindServerConfiguration))

		_, err = executor.HadoopHome(config.DefaultHadoopConfig(), "")
		require.True(t, errs.IsKind(err, errs.KindServerConfiguration))
	})
}

func TestYarnConfigure(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	s := settings(t)
	s.Hadoop.Homes = map[string]string{"2.6.0": home}

	req := request("123")
	req.Cluster.Version = "2.6.0-amzn-1"
	m := executor.NewYarnManager(s, executor.LocalFetcher{})
	plan, err := m.Configure(t.Context(), req)
	require.NoError(t, err)

	env := envMap(plan.Env)
	require.Equal(t, filepath.Join(plan.WorkDir, "conf"), env["HADOOP_CONF_DIR"])
	require.Equal(t, "alice", env["HADOOP_USER_NAME"])
	require.Equal(t, "hadoop", env["HADOOP_GROUP_NAME"])
	require.Equal(t, home, env["HADOOP_HOME"])
	require.Equal(t, "genie.job.id=123;netflix.environment=test", env["CORE_SITE_XML_ARGS"])
	require.Equal(t, "1800", env["CP_TIMEOUT"])
	require.Equal(t, home+"/bin/hadoop fs  -cp -f", env["COPY_COMMAND"])
	require.Equal(t, "-f", env["FORCE_COPY_FLAG"])
	require.Equal(t, home+"/bin/hadoop fs  -mkdir", env["MKDIR_COMMAND"])

	t.Run("job group and environment override", func(t *testing.T) {
		req := request("124")
		req.Job.Group = "analytics"
		req.Job.Environment = "prod"
		req.Cluster.Version = "2.6.0"
		plan, err := executor.NewYarnManager(s, executor.LocalFetcher{}).Configure(t.Context(), req)
		require.NoError(t, err)
		require.Equal(t, "analytics", plan.Vars["HADOOP_GROUP_NAME"])
		require.Equal(t, "genie.job.id=124;netflix.environment=prod", plan.Vars["CORE_SITE_XML_ARGS"])
	})
}

func TestYarnMissingHomeSpawnsNothing(t *testing.T) {
	t.Parallel()
	s := settings(t)
	req := request("125")
	req.Cluster.Version = "2.6.0-amzn-1"

	m := executor.NewYarnManager(s, executor.LocalFetcher{})
	_, err := m.Configure(t.Context(), req)
	require.True(t, errs.IsKind(err, errs.KindServerConfiguration))
	require.Equal(t, executor.StateUninitialized, m.State())

	_, err = m.Launch(t.Context())
	require.ErrorIs(t, err, errs.ErrNotConfigured)
	_, statErr := os.Stat(filepath.Join(s.JobsDir, "125", "stdout.log"))
	require.True(t, os.IsNotExist(statErr))
}
