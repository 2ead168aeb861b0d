package script_test

import (
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/CZERTAINLY/mdsetup/internal/script"
	"github.com/stretchr/testify/require"
)

var date = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func pdbSnapshot() model.Snapshot {
	return model.DefaultSnapshot(model.FileTypePDB, "amber14-all.xml")
}

var pdbFiles = map[string]string{model.RoleFile: "input.pdb"}

func compile(t *testing.T, snap model.Snapshot, files map[string]string, internal bool) *script.Script {
	t.Helper()
	opts := script.Options{Date: date, Internal: internal}
	if internal {
		opts.WorkDir = "/tmp/job"
	}
	s, err := script.Compile(snap, files, opts)
	require.NoError(t, err)
	return s
}

// index returns the position of the first line starting with prefix.
func index(t *testing.T, lines []string, prefix string) int {
	t.Helper()
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	t.Fatalf("line %q not found in\n%s", prefix, strings.Join(lines, "\n"))
	return -1
}

func contains(s *script.Script, line string) bool {
	for _, l := range s.Lines() {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

func TestCompileDeterministic(t *testing.T) {
	t.Parallel()
	for _, internal := range []bool{false, true} {
		a := compile(t, pdbSnapshot(), pdbFiles, internal)
		b := compile(t, pdbSnapshot(), pdbFiles, internal)
		require.Equal(t, a.Bytes(), b.Bytes())
	}
}

func TestSectionOrder(t *testing.T) {
	t.Parallel()

	amber := model.DefaultSnapshot(model.FileTypeAmber, "")
	amber = amber.WithEnsemble(model.EnsembleNVE).WithPlatform(model.PlatformReference)
	amber.WriteDCD = false
	amber.WriteData = false

	gromacs := model.DefaultSnapshot(model.FileTypeGromacs, "")
	gromacs.NonbondedMethod = model.NoCutoff
	gromacs = gromacs.WithEnsemble(model.EnsembleNVT)
	gromacs.Constraints = model.ConstraintsNone

	var cases = []struct {
		scenario string
		snap     model.Snapshot
		files    map[string]string
	}{
		{"pdb", pdbSnapshot(), pdbFiles},
		{"amber", amber, map[string]string{model.RolePrmtopFile: "a.prmtop", model.RoleInpcrdFile: "a.inpcrd"}},
		{"gromacs", gromacs, map[string]string{model.RoleTopFile: "a.top", model.RoleGroFile: "a.gro"}},
	}

	markers := []string{
		"# This script was generated by OpenMM-Setup on 2026-10-19.",
		"# Input Files",
		"# System Configuration",
		"# Integration Options",
		"# Simulation Options",
		"# Prepare the Simulation",
		"# Minimize and Equilibrate",
		"# Simulate",
	}

	for _, tc := range cases {
		for _, internal := range []bool{false, true} {
			t.Run(tc.scenario, func(t *testing.T) {
				t.Parallel()
				lines := compile(t, tc.snap, tc.files, internal).Lines()
				last := -1
				for _, m := range markers {
					i := index(t, lines, m)
					require.Greater(t, i, last, m)
					last = i
				}
			})
		}
	}
}

func TestInternalPreamble(t *testing.T) {
	t.Parallel()

	external := compile(t, pdbSnapshot(), pdbFiles, false)
	require.Empty(t, external.Preamble())
	require.True(t, strings.HasPrefix(external.String(), "# This script was generated"))
	require.False(t, contains(external, "os.chdir('/tmp/job')"))
	_, ok := external.Find(script.SectionSimulation, "consoleReporter")
	require.False(t, ok)

	internal := compile(t, pdbSnapshot(), pdbFiles, true)
	require.NotEmpty(t, internal.Preamble())
	require.True(t, contains(internal, "os.chdir('/tmp/job')"))
	require.True(t, contains(internal, "sys.stderr = sys.stdout"))

	data, ok := internal.Find(script.SectionSimulation, "dataReporter")
	require.True(t, ok)
	console, ok := internal.Find(script.SectionSimulation, "consoleReporter")
	require.True(t, ok)
	require.Equal(t,
		strings.Replace(data.Text, "'log.txt'", "sys.stdout", 1),
		console.Text)
	require.True(t, contains(internal, "simulation.reporters.append(consoleReporter)"))

	lines := internal.Lines()
	require.Less(t, index(t, lines, "os.chdir("), index(t, lines, "# This script was generated"))
}

func TestInternalRequiresWorkDir(t *testing.T) {
	t.Parallel()
	_, err := script.Compile(pdbSnapshot(), pdbFiles, script.Options{Internal: true, Date: date})
	var cerr *model.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.True(t, cerr.Has("workDir"))
}

func TestReservedFileName(t *testing.T) {
	t.Parallel()
	_, err := script.Compile(pdbSnapshot(), map[string]string{model.RoleFile: script.FileName}, script.Options{Date: date})
	var cerr *model.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.True(t, cerr.Has(model.RoleFile))
	require.Equal(t, model.CodeConflict, cerr.Violations[0].Code)

	// a similar name is fine
	_, err = script.Compile(pdbSnapshot(), map[string]string{model.RoleFile: "run_openmm_simulation.pdb"}, script.Options{Date: date})
	require.NoError(t, err)
}

func TestEnsemble(t *testing.T) {
	t.Parallel()

	t.Run("nve", func(t *testing.T) {
		t.Parallel()
		snap := pdbSnapshot().WithEnsemble(model.EnsembleNVE)
		s := compile(t, snap, pdbFiles, false)

		require.True(t, contains(s, "integrator = VerletIntegrator(dt)"))
		_, ok := s.Find(script.SectionIntegration, "friction")
		require.False(t, ok)
		_, ok = s.Find(script.SectionIntegration, "temperature")
		require.False(t, ok)
		require.False(t, contains(s, "system.addForce(MonteCarloBarostat(pressure, temperature, barostatInterval))"))
		require.False(t, contains(s, "simulation.context.setVelocitiesToTemperature(temperature)"))
	})

	t.Run("nvt", func(t *testing.T) {
		t.Parallel()
		snap := pdbSnapshot().WithEnsemble(model.EnsembleNVT)
		s := compile(t, snap, pdbFiles, false)

		require.True(t, contains(s, "integrator = LangevinIntegrator(temperature, friction, dt)"))
		require.True(t, contains(s, "friction = 1.0/picosecond"))
		_, ok := s.Find(script.SectionIntegration, "pressure")
		require.False(t, ok)
		require.False(t, contains(s, "system.addForce(MonteCarloBarostat(pressure, temperature, barostatInterval))"))
	})

	t.Run("npt", func(t *testing.T) {
		t.Parallel()
		s := compile(t, pdbSnapshot(), pdbFiles, false)
		lines := s.Lines()

		pressure := index(t, lines, "pressure = 1.0*atmospheres")
		barostat := index(t, lines, "system.addForce(MonteCarloBarostat(pressure, temperature, barostatInterval))")
		integrator := index(t, lines, "integrator = LangevinIntegrator(temperature, friction, dt)")
		require.Less(t, pressure, barostat)
		require.Less(t, barostat, integrator)
	})
}

func TestConstraints(t *testing.T) {
	t.Parallel()
	var cases = []struct {
		given     model.Constraints
		name      string
		rigid     string
		tolerance bool
	}{
		{model.ConstraintsNone, "None", "False", false},
		{model.ConstraintsWater, "None", "True", true},
		{model.ConstraintsHBonds, "HBonds", "True", true},
		{model.ConstraintsAllBonds, "AllBonds", "True", true},
	}
	for _, tc := range cases {
		t.Run(string(tc.given), func(t *testing.T) {
			t.Parallel()
			snap := pdbSnapshot()
			snap.Constraints = tc.given
			s := compile(t, snap, pdbFiles, false)

			st, ok := s.Find(script.SectionSystem, "constraints")
			require.True(t, ok)
			require.Equal(t, tc.name, st.Text)
			st, ok = s.Find(script.SectionSystem, "rigidWater")
			require.True(t, ok)
			require.Equal(t, tc.rigid, st.Text)

			_, ok = s.Find(script.SectionSystem, "constraintTolerance")
			require.Equal(t, tc.tolerance, ok)
			require.Equal(t, tc.tolerance, contains(s, "integrator.setConstraintTolerance(constraintTolerance)"))
		})
	}
}

func TestNonbonded(t *testing.T) {
	t.Parallel()

	snap := pdbSnapshot().WithEnsemble(model.EnsembleNVT)
	snap.NonbondedMethod = model.NoCutoff
	s := compile(t, snap, pdbFiles, false)
	_, ok := s.Find(script.SectionSystem, "nonbondedCutoff")
	require.False(t, ok)
	_, ok = s.Find(script.SectionSystem, "ewaldErrorTolerance")
	require.False(t, ok)
	require.True(t, contains(s, "system = forcefield.createSystem(topology, nonbondedMethod=nonbondedMethod, constraints=constraints, rigidWater=rigidWater)"))

	s = compile(t, pdbSnapshot(), pdbFiles, false)
	st, ok := s.Find(script.SectionSystem, "nonbondedCutoff")
	require.True(t, ok)
	require.Equal(t, "1.0*nanometers", st.Text)
	require.True(t, contains(s, "system = forcefield.createSystem(topology, nonbondedMethod=nonbondedMethod, nonbondedCutoff=nonbondedCutoff, constraints=constraints, rigidWater=rigidWater, ewaldErrorTolerance=ewaldErrorTolerance)"))
}

func TestPlatform(t *testing.T) {
	t.Parallel()

	s := compile(t, pdbSnapshot(), pdbFiles, false)
	st, ok := s.Find(script.SectionSimulation, "platformProperties")
	require.True(t, ok)
	require.Equal(t, "{'Precision': 'single'}", st.Text)
	require.True(t, contains(s, "simulation = Simulation(topology, system, integrator, platform, platformProperties)"))

	snap := pdbSnapshot().WithPlatform(model.PlatformCPU)
	s = compile(t, snap, pdbFiles, false)
	_, ok = s.Find(script.SectionSimulation, "platformProperties")
	require.False(t, ok)
	require.True(t, contains(s, "platform = Platform.getPlatformByName('CPU')"))
	require.True(t, contains(s, "simulation = Simulation(topology, system, integrator, platform)"))

	snap.Platform = "Vulkan"
	_, err := script.Compile(snap, pdbFiles, script.Options{Date: date})
	var perr *model.UnknownPlatformError
	require.ErrorAs(t, err, &perr)
}

func TestReporters(t *testing.T) {
	t.Parallel()

	snap := pdbSnapshot()
	snap.DataFields = []model.DataField{model.FieldTemperature, model.FieldStep}
	s := compile(t, snap, pdbFiles, false)
	st, ok := s.Find(script.SectionSimulation, "dataReporter")
	require.True(t, ok)
	require.Equal(t, `StateDataReporter('log.txt', 1000, totalSteps=1000000, step=True, temperature=True, separator='\t')`, st.Text)
	st, ok = s.Find(script.SectionSimulation, "dcdReporter")
	require.True(t, ok)
	require.Equal(t, "DCDReporter('trajectory.dcd', 10000)", st.Text)

	snap.WriteDCD = false
	snap.WriteData = false
	s = compile(t, snap, pdbFiles, true)
	for _, target := range []string{"dcdReporter", "dataReporter", "consoleReporter"} {
		_, ok := s.Find(script.SectionSimulation, target)
		require.False(t, ok, target)
	}
	require.Equal(t, []string{
		"print('Simulating...')",
		"simulation.currentStep = 0",
		"simulation.step(steps)",
	}, render(s.Section(script.SectionSimulate)))
}

func TestWaterModel(t *testing.T) {
	t.Parallel()
	var cases = []struct {
		scenario   string
		forceField string
		water      string
		then       string
	}{
		{"implicit amber99sb", "amber99sb.xml", "implicit", "ForceField('amber99sb.xml', 'amber99_obc.xml')"},
		{"implicit amber99sbildn", "amber99sbildn.xml", "implicit", "ForceField('amber99sbildn.xml', 'amber99_obc.xml')"},
		{"implicit amber03", "amber03.xml", "implicit", "ForceField('amber03.xml', 'amber03_obc.xml')"},
		{"implicit amber10", "amber10.xml", "implicit", "ForceField('amber10.xml', 'amber10_obc.xml')"},
		{"explicit", "amber14-all.xml", "amber14/tip3pfb.xml", "ForceField('amber14-all.xml', 'amber14/tip3pfb.xml')"},
		{"amoeba implicit", "amoeba2013.xml", "implicit", "ForceField('amoeba2013.xml', 'amoeba2013_gk.xml')"},
		{"amoeba explicit", "amoeba2013.xml", "explicit", "ForceField('amoeba2013.xml')"},
		{"charmm polar", "charmm_polar_2013.xml", "tip3p.xml", "ForceField('charmm_polar_2013.xml')"},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			snap := model.DefaultSnapshot(model.FileTypePDB, tc.forceField)
			snap.WaterModel = tc.water
			s := compile(t, snap, pdbFiles, false)
			st, ok := s.Find(script.SectionInputFiles, "forcefield")
			require.True(t, ok)
			require.Equal(t, tc.then, st.Text)
		})
	}

	t.Run("no implicit solvent", func(t *testing.T) {
		t.Parallel()
		snap := model.DefaultSnapshot(model.FileTypePDB, "amber14-all.xml")
		snap.WaterModel = "implicit"
		s, err := script.Compile(snap, pdbFiles, script.Options{Date: date})
		require.Nil(t, s)
		var cerr *model.ConfigurationError
		require.ErrorAs(t, err, &cerr)
		require.True(t, cerr.Has("waterModel"))
	})
}

func TestExtraParticles(t *testing.T) {
	t.Parallel()
	var cases = []struct {
		forceField string
		water      string
		then       bool
	}{
		{"amber14-all.xml", "tip4pew.xml", true},
		{"amber14-all.xml", "tip5p.xml", true},
		{"amber14-all.xml", "tip4pfb.xml", true},
		{"charmm_polar_2013.xml", "", true},
		{"amber14-all.xml", "tip3p.xml", false},
	}
	for _, tc := range cases {
		t.Run(tc.forceField+"+"+tc.water, func(t *testing.T) {
			t.Parallel()
			snap := model.DefaultSnapshot(model.FileTypePDB, tc.forceField)
			snap.WaterModel = tc.water
			s := compile(t, snap, pdbFiles, false)
			require.Equal(t, tc.then, contains(s, "modeller.addExtraParticles(forcefield)"))
			if tc.then {
				lines := s.Lines()
				require.Less(t, index(t, lines, "modeller.addExtraParticles(forcefield)"), index(t, lines, "system = "))
			}
		})
	}
}

func TestInputFiles(t *testing.T) {
	t.Parallel()

	t.Run("pdb", func(t *testing.T) {
		t.Parallel()
		s := compile(t, pdbSnapshot(), pdbFiles, false)
		require.Equal(t, []string{
			"pdb = PDBFile('input.pdb')",
			"forcefield = ForceField('amber14-all.xml', 'tip3p.xml')",
		}, render(s.Section(script.SectionInputFiles)))
	})

	t.Run("pdbx", func(t *testing.T) {
		t.Parallel()
		snap := model.DefaultSnapshot(model.FileTypePDBx, "amber14-all.xml")
		s := compile(t, snap, map[string]string{model.RoleFile: "1ubq.cif"}, false)
		require.True(t, contains(s, "pdbx = PDBxFile('1ubq.cif')"))
		require.True(t, contains(s, "topology = pdbx.topology"))
	})

	t.Run("quoting", func(t *testing.T) {
		t.Parallel()
		s := compile(t, pdbSnapshot(), map[string]string{model.RoleFile: `it's.pdb`}, false)
		require.True(t, contains(s, `pdb = PDBFile('it\'s.pdb')`))
	})

	t.Run("gromacs", func(t *testing.T) {
		t.Parallel()
		snap := model.DefaultSnapshot(model.FileTypeGromacs, "")
		snap.GromacsIncludeDir = "/usr/local/gromacs/share/gromacs/top"
		s := compile(t, snap, map[string]string{model.RoleTopFile: "a.top", model.RoleGroFile: "a.gro"}, false)
		require.Equal(t, []string{
			"gro = GromacsGroFile('a.gro')",
			"top = GromacsTopFile('a.top', includeDir='/usr/local/gromacs/share/gromacs/top', periodicBoxVectors=gro.getPeriodicBoxVectors())",
		}, render(s.Section(script.SectionInputFiles)))
		require.True(t, contains(s, "system = top.createSystem(nonbondedMethod=nonbondedMethod, nonbondedCutoff=nonbondedCutoff, constraints=constraints, rigidWater=rigidWater, ewaldErrorTolerance=ewaldErrorTolerance)"))
	})

	t.Run("missing role", func(t *testing.T) {
		t.Parallel()
		snap := model.DefaultSnapshot(model.FileTypeAmber, "")
		_, err := script.Compile(snap, map[string]string{model.RolePrmtopFile: "a.prmtop"}, script.Options{Date: date})
		require.ErrorIs(t, err, model.ErrMissingRole)
	})
}

func TestAmberBoxVectors(t *testing.T) {
	t.Parallel()
	snap := model.DefaultSnapshot(model.FileTypeAmber, "")
	s := compile(t, snap, map[string]string{model.RolePrmtopFile: "a.prmtop", model.RoleInpcrdFile: "a.inpcrd"}, false)

	lines := s.Lines()
	i := index(t, lines, "if inpcrd.boxVectors is not None:")
	require.Equal(t, "    simulation.context.setPeriodicBoxVectors(*inpcrd.boxVectors)", lines[i+1])
	require.Greater(t, i, index(t, lines, "simulation.context.setPositions(positions)"))
	require.Equal(t, strings.Count(lines[i+1], "("), strings.Count(lines[i+1], ")"))

	require.True(t, contains(s, "prmtop = AmberPrmtopFile('a.prmtop')"))
	require.True(t, contains(s, "inpcrd = AmberInpcrdFile('a.inpcrd')"))
	require.True(t, contains(s, "positions = inpcrd.positions"))

	pdb := compile(t, pdbSnapshot(), pdbFiles, false)
	require.False(t, contains(pdb, "if inpcrd.boxVectors is not None:"))
}

func TestResolveWater(t *testing.T) {
	t.Parallel()
	got, err := script.ResolveWater("amber99sb.xml", "implicit")
	require.NoError(t, err)
	require.Equal(t, "amber99_obc.xml", got)

	got, err = script.ResolveWater("amoeba2013.xml", "")
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = script.ResolveWater("charmm36.xml", "implicit")
	require.Error(t, err)
}

func render(sts []script.Statement) []string {
	ret := make([]string, 0, len(sts))
	for _, st := range sts {
		ret = append(ret, st.String())
	}
	return ret
}
