package model_test

import (
	"errors"
	"testing"

	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDefaultSnapshot(t *testing.T) {
	t.Parallel()

	var cases = []struct {
		scenario    string
		fileType    model.FileType
		forceField  string
		water       string
		constraints model.Constraints
	}{
		{"amber14", model.FileTypePDB, "amber14-all.xml", "tip3p.xml", model.ConstraintsHBonds},
		{"amoeba", model.FileTypePDBx, "amoeba2013.xml", model.WaterImplicit, model.ConstraintsNone},
		{"charmm polar", model.FileTypePDB, model.CharmmPolar, "", model.ConstraintsHBonds},
		{"amber files", model.FileTypeAmber, "ignored.xml", "", model.ConstraintsHBonds},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			s := model.DefaultSnapshot(tc.fileType, tc.forceField)
			require.Equal(t, tc.water, s.WaterModel)
			require.Equal(t, tc.constraints, s.Constraints)
			require.NoError(t, s.Validate())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	var cases = []struct {
		scenario string
		mutate   func(*model.Snapshot)
		fields   []string
	}{
		{
			scenario: "missing water model",
			mutate:   func(s *model.Snapshot) { s.WaterModel = "" },
			fields:   []string{"waterModel"},
		},
		{
			scenario: "cutoff required",
			mutate:   func(s *model.Snapshot) { s.Cutoff = "" },
			fields:   []string{"cutoff"},
		},
		{
			scenario: "no cutoff needed",
			mutate: func(s *model.Snapshot) {
				*s = s.WithEnsemble(model.EnsembleNVT)
				s.NonbondedMethod = model.NoCutoff
				s.Cutoff = ""
				s.EwaldTolerance = ""
			},
		},
		{
			scenario: "ewald tolerance",
			mutate:   func(s *model.Snapshot) { s.EwaldTolerance = "" },
			fields:   []string{"ewaldTolerance"},
		},
		{
			scenario: "constraint tolerance",
			mutate:   func(s *model.Snapshot) { s.ConstraintTolerance = "" },
			fields:   []string{"constraintTolerance"},
		},
		{
			scenario: "no constraint tolerance",
			mutate: func(s *model.Snapshot) {
				s.Constraints = model.ConstraintsNone
				s.ConstraintTolerance = ""
			},
		},
		{
			scenario: "npt",
			mutate: func(s *model.Snapshot) {
				s.Pressure = ""
				s.BarostatInterval = ""
			},
			fields: []string{"pressure", "barostatInterval"},
		},
		{
			scenario: "npt non periodic",
			mutate:   func(s *model.Snapshot) { s.NonbondedMethod = model.CutoffNonPeriodic },
			fields:   []string{"ensemble"},
		},
		{
			scenario: "nve needs no thermostat",
			mutate: func(s *model.Snapshot) {
				*s = s.WithEnsemble(model.EnsembleNVE)
			},
		},
		{
			scenario: "nve with thermostat",
			mutate: func(s *model.Snapshot) {
				s.Ensemble = model.EnsembleNVE
				s.Pressure = ""
				s.BarostatInterval = ""
			},
			fields: []string{"temperature", "friction"},
		},
		{
			scenario: "nvt with barostat",
			mutate:   func(s *model.Snapshot) { s.Ensemble = model.EnsembleNVT },
			fields:   []string{"pressure", "barostatInterval"},
		},
		{
			scenario: "nve with barostat interval",
			mutate: func(s *model.Snapshot) {
				*s = s.WithEnsemble(model.EnsembleNVE)
				s.BarostatInterval = "25"
			},
			fields: []string{"barostatInterval"},
		},
		{
			scenario: "nvt",
			mutate: func(s *model.Snapshot) {
				*s = s.WithEnsemble(model.EnsembleNVT)
				s.Friction = ""
			},
			fields: []string{"friction"},
		},
		{
			scenario: "gpu precision",
			mutate:   func(s *model.Snapshot) { s.Precision = "" },
			fields:   []string{"precision"},
		},
		{
			scenario: "cpu without precision",
			mutate: func(s *model.Snapshot) {
				*s = s.WithPlatform(model.PlatformCPU)
			},
		},
		{
			scenario: "cpu with precision",
			mutate:   func(s *model.Snapshot) { s.Platform = model.PlatformCPU },
			fields:   []string{"precision"},
		},
		{
			scenario: "reference with precision",
			mutate:   func(s *model.Snapshot) { s.Platform = model.PlatformReference },
			fields:   []string{"precision"},
		},
		{
			scenario: "bad precision",
			mutate:   func(s *model.Snapshot) { s.Precision = "quad" },
			fields:   []string{"precision"},
		},
		{
			scenario: "not a number",
			mutate:   func(s *model.Snapshot) { s.Dt = "two" },
			fields:   []string{"dt"},
		},
		{
			scenario: "steps integer",
			mutate:   func(s *model.Snapshot) { s.Steps = "1.5" },
			fields:   []string{"steps"},
		},
		{
			scenario: "scientific notation",
			mutate: func(s *model.Snapshot) {
				s.ConstraintTolerance = "1e-6"
				s.EwaldTolerance = "5E-4"
				s.Dt = ".002"
			},
		},
		{
			scenario: "negative time step",
			mutate:   func(s *model.Snapshot) { s.Dt = "-0.002" },
			fields:   []string{"dt"},
		},
		{
			scenario: "zero cutoff",
			mutate:   func(s *model.Snapshot) { s.Cutoff = "0" },
			fields:   []string{"cutoff"},
		},
		{
			scenario: "not a python literal",
			mutate: func(s *model.Snapshot) {
				s.Temperature = "inf"
				s.Pressure = "0x1p-2"
			},
			fields: []string{"temperature", "pressure"},
		},
		{
			scenario: "zero friction",
			mutate:   func(s *model.Snapshot) { s.Friction = "0" },
		},
		{
			scenario: "negative friction",
			mutate:   func(s *model.Snapshot) { s.Friction = "-1" },
			fields:   []string{"friction"},
		},
		{
			scenario: "zero interval",
			mutate:   func(s *model.Snapshot) { s.DataInterval = "0" },
			fields:   []string{"dataInterval"},
		},
		{
			scenario: "dcd",
			mutate:   func(s *model.Snapshot) { s.DCDFilename = "" },
			fields:   []string{"dcdFilename"},
		},
		{
			scenario: "dcd disabled",
			mutate: func(s *model.Snapshot) {
				s.WriteDCD = false
				s.DCDFilename = ""
				s.DCDInterval = ""
			},
		},
		{
			scenario: "data",
			mutate:   func(s *model.Snapshot) { s.DataInterval = "" },
			fields:   []string{"dataInterval"},
		},
		{
			scenario: "unknown field",
			mutate:   func(s *model.Snapshot) { s.DataFields = append(s.DataFields, "pressure") },
			fields:   []string{"dataFields[5]"},
		},
		{
			scenario: "unknown ensemble",
			mutate:   func(s *model.Snapshot) { s.Ensemble = "nph" },
			fields:   []string{"ensemble"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			s := model.DefaultSnapshot(model.FileTypePDB, "amber14-all.xml")
			tc.mutate(&s)
			err := s.Validate()
			if len(tc.fields) == 0 {
				require.NoError(t, err)
				return
			}
			var cerr *model.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			for _, f := range tc.fields {
				require.Truef(t, cerr.Has(f), "expected violation of %s, got %s", f, cerr)
			}
		})
	}
}

func TestWithEnsemble(t *testing.T) {
	t.Parallel()
	s := model.DefaultSnapshot(model.FileTypePDB, "amber14-all.xml")

	nve := s.WithEnsemble(model.EnsembleNVE)
	require.Empty(t, nve.Temperature)
	require.Empty(t, nve.Friction)
	require.Empty(t, nve.Pressure)
	require.Empty(t, nve.BarostatInterval)
	require.NoError(t, nve.Validate())

	npt := nve.WithEnsemble(model.EnsembleNPT)
	require.Equal(t, s.Temperature, npt.Temperature)
	require.Equal(t, s.Friction, npt.Friction)
	require.Equal(t, s.Pressure, npt.Pressure)
	require.Equal(t, s.BarostatInterval, npt.BarostatInterval)
	require.NoError(t, npt.Validate())

	nvt := s.WithEnsemble(model.EnsembleNVT)
	require.Equal(t, "300", nvt.Temperature)
	require.Empty(t, nvt.Pressure)
	require.NoError(t, nvt.Validate())
}

func TestWithPlatform(t *testing.T) {
	t.Parallel()
	s := model.DefaultSnapshot(model.FileTypePDB, "amber14-all.xml")
	s.Precision = model.PrecisionMixed

	cpu := s.WithPlatform(model.PlatformCPU)
	require.Empty(t, cpu.Precision)
	require.NoError(t, cpu.Validate())

	opencl := cpu.WithPlatform(model.PlatformOpenCL)
	require.Equal(t, model.PrecisionSingle, opencl.Precision)
	require.NoError(t, opencl.Validate())
	require.Equal(t, model.PrecisionMixed, s.WithPlatform(model.PlatformCUDA).Precision)
}

func TestValidateUnknownPlatform(t *testing.T) {
	t.Parallel()
	s := model.DefaultSnapshot(model.FileTypePDB, "amber14-all.xml")
	s.Platform = "Metal"
	err := s.Validate()

	var perr *model.UnknownPlatformError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "Metal", perr.Platform)

	var cerr *model.ConfigurationError
	require.False(t, errors.As(err, &cerr))
}

func TestCheckRoles(t *testing.T) {
	t.Parallel()

	require.NoError(t, model.CheckRoles(model.FileTypePDB, map[string]string{"file": "input.pdb"}))
	require.NoError(t, model.CheckRoles(model.FileTypeAmber, map[string]string{
		"prmtopFile": "a.prmtop",
		"inpcrdFile": "a.inpcrd",
	}))

	err := model.CheckRoles(model.FileTypeGromacs, map[string]string{"groFile": "a.gro"})
	require.ErrorIs(t, err, model.ErrMissingRole)
	var cerr *model.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.True(t, cerr.Has("topFile"))
	require.False(t, cerr.Has("groFile"))
}

func TestSelectedFields(t *testing.T) {
	t.Parallel()
	s := model.Snapshot{
		DataFields: []model.DataField{"temperature", "step", "speed", "step"},
	}
	require.Equal(t,
		[]model.DataField{model.FieldStep, model.FieldTemperature, model.FieldSpeed},
		s.SelectedFields())
}
