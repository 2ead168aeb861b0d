package model_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/stretchr/testify/require"
)

const snapshotHCL = `
file_type        = "amber"
nonbonded_method = "PME"
cutoff           = "1.0"
ewald_tolerance  = "0.0005"
constraints      = "hbonds"
constraint_tolerance = "0.000001"
ensemble         = "nvt"
temperature      = "310"
friction         = "1.0"
dt               = "0.004"
steps            = 5000
equilibration_steps = 100
platform         = "CPU"

reporters {
  data {
    filename = "log.txt"
    interval = "100"
    fields   = ["step", "temperature"]
  }
}
`

func TestDecodeSnapshotHCL(t *testing.T) {
	t.Parallel()
	s, err := model.DecodeSnapshot([]byte(snapshotHCL), "job.hcl", model.FormatHCL)
	require.NoError(t, err)
	require.Equal(t, model.FileTypeAmber, s.FileType)
	require.Equal(t, model.EnsembleNVT, s.Ensemble)
	require.Equal(t, "5000", s.Steps)
	require.Equal(t, "310", s.Temperature)
	require.False(t, s.WriteDCD)
	require.True(t, s.WriteData)
	require.Equal(t, []model.DataField{model.FieldStep, model.FieldTemperature}, s.DataFields)
	require.NoError(t, s.Validate())
}

func TestDecodeSnapshotHCLUnknownAttribute(t *testing.T) {
	t.Parallel()
	_, err := model.DecodeSnapshot([]byte(snapshotHCL+"\nbogus = 1\n"), "job.hcl", model.FormatHCL)
	require.Error(t, err)
}

func TestSnapshotYAMLRoundTrip(t *testing.T) {
	t.Parallel()
	want := model.DefaultSnapshot(model.FileTypePDB, "amber14-all.xml")

	var buf bytes.Buffer
	require.NoError(t, model.WriteSnapshot(&buf, want))

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := model.LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeSnapshotYAMLUnknownKey(t *testing.T) {
	t.Parallel()
	_, err := model.DecodeSnapshot([]byte("fileType: pdb\nfoo: bar\n"), "x.yaml", model.FormatYAML)
	require.Error(t, err)
}

func TestDecodeSnapshotJSON(t *testing.T) {
	t.Parallel()
	s, err := model.DecodeSnapshot([]byte(`{"fileType":"gromacs","platform":"OpenCL","writeDCD":true}`), "x.json", model.FormatJSON)
	require.NoError(t, err)
	require.Equal(t, model.FileTypeGromacs, s.FileType)
	require.Equal(t, model.PlatformOpenCL, s.Platform)
	require.True(t, s.WriteDCD)
}

func TestFormatOf(t *testing.T) {
	t.Parallel()
	for path, want := range map[string]model.Format{
		"a.yaml": model.FormatYAML,
		"a.YML":  model.FormatYAML,
		"a.json": model.FormatJSON,
		"a.hcl":  model.FormatHCL,
	} {
		got, err := model.FormatOf(path)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := model.FormatOf("a.toml")
	require.ErrorIs(t, err, model.ErrUnknownFormat)
}
