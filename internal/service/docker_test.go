package service_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/CZERTAINLY/mdsetup/internal/service"
)

func TestDockerLauncher(t *testing.T) {
	if testing.Short() {
		t.Skip("skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	t.Parallel()

	launcher, err := service.NewDockerLauncher(model.Worker{
		Docker: model.Docker{
			Image: "busybox:1.36",
			Cmd:   []string{"sh"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = launcher.Close()
	})
	require.Equal(t, "/work", launcher.WorkDir(t.TempDir()))

	t.Run("output and exit code", func(t *testing.T) {
		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("echo hello from $(pwd)\necho oops 1>&2\nexit 3\n"), 0o644)
		require.NoError(t, err)

		var buf bytes.Buffer
		w, err := launcher.Launch(t.Context(), dir, "run.sh", &buf)
		require.NoError(t, err)
		res := wait(t, w)
		require.Equal(t, 3, res.ExitCode)
		require.Error(t, res.Err)
		require.Contains(t, buf.String(), "hello from /work\n")
		require.Contains(t, buf.String(), "oops\n")
	})

	t.Run("kill", func(t *testing.T) {
		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("sleep 60\n"), 0o644)
		require.NoError(t, err)

		w, err := launcher.Launch(t.Context(), dir, "run.sh", &bytes.Buffer{})
		require.NoError(t, err)
		require.NoError(t, w.Kill())
		res := wait(t, w)
		require.False(t, res.Success())
	})
}
