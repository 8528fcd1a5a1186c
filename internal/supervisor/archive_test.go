package supervisor_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"genie/internal/model"
	"genie/internal/monitor"
	"genie/internal/supervisor"
	"genie/internal/utils/s3test"
)

func TestS3ArchiverUploadsOutput(t *testing.T) {
	t.Parallel()
	srv := s3test.NewServer(t)
	archiver := supervisor.NewS3Archiver(srv.Client(t), "archive", "genie/jobs")

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, monitor.StdoutFile), []byte("hello from stdout"), 0o644))

	job := &model.Job{Id: "job-1", WorkDir: workDir}
	require.NoError(t, archiver.Archive(t.Context(), job))

	body, ok := srv.Get("archive", "genie/jobs/job-1/"+monitor.StdoutFile)
	require.True(t, ok)
	require.Contains(t, string(body), "hello from stdout")
	_, ok = srv.Get("archive", "genie/jobs/job-1/"+monitor.StderrFile)
	require.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(workDir, monitor.StderrFile), []byte("warning"), 0o644))
	require.NoError(t, archiver.Archive(t.Context(), job))
	body, ok = srv.Get("archive", "genie/jobs/job-1/"+monitor.StderrFile)
	require.True(t, ok)
	require.Contains(t, string(body), "warning")
}

func TestSupervisorArchivesFinishedJob(t *testing.T) {
	t.Parallel()
	srv := s3test.NewServer(t)
	h := newHarness(t, defaultOpts(), func(d *supervisor.Deps) {
		d.Archiver = supervisor.NewS3Archiver(srv.Client(t), "archive", "jobs")
	})

	_, err := h.sup.Submit(t.Context(), shellJob("archived", "echo archived-output"))
	require.NoError(t, err)
	waitFor(t, h, "archived", model.JobStatusSucceeded)
	waitIdle(t, h)

	body, ok := srv.Get("archive", "jobs/archived/"+monitor.StdoutFile)
	require.True(t, ok)
	require.Contains(t, string(body), "archived-output")
}
