package script

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/CZERTAINLY/mdsetup/internal/model"
)

// Options control how the script is rendered.
type Options struct {
	// Internal renders the script for execution by the job supervisor:
	// it moves into WorkDir, sends stderr to stdout and adds a console
	// reporter.
	Internal bool
	// WorkDir is the directory as seen by the worker.
	WorkDir string
	// Date goes into the header, today if zero.
	Date time.Time
}

// Compile turns a snapshot and the names of the uploaded input files (keyed
// by role) into a script. It is a pure function of its arguments.
func Compile(snap model.Snapshot, files map[string]string, opts Options) (*Script, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if err := model.CheckRoles(snap.FileType, files); err != nil {
		return nil, err
	}
	for _, role := range slices.Sorted(maps.Keys(files)) {
		if files[role] == FileName {
			return nil, model.NewConfigurationError(role, model.CodeConflict, "%s is reserved for the generated script", FileName)
		}
	}
	if opts.Internal && opts.WorkDir == "" {
		return nil, model.NewConfigurationError("workDir", model.CodeMissingRequired, "is required for internal scripts")
	}

	c := compiler{snap: snap, files: files, opts: opts}
	if snap.FileType.IsPDB() {
		water, err := ResolveWater(snap.ForceField, snap.WaterModel)
		if err != nil {
			return nil, err
		}
		c.water = water
	}
	if c.opts.Date.IsZero() {
		c.opts.Date = time.Now()
	}

	s := &Script{}
	if opts.Internal {
		s.preamble = c.preamble()
	}
	s.sections[SectionHeader] = c.header()
	s.sections[SectionInputFiles] = c.inputFiles()
	s.sections[SectionSystem] = c.system()
	s.sections[SectionIntegration] = c.integration()
	s.sections[SectionSimulation] = c.simulation()
	s.sections[SectionPrepare] = c.prepare()
	s.sections[SectionEquilibrate] = c.equilibrate()
	s.sections[SectionSimulate] = c.simulate()
	return s, nil
}

type compiler struct {
	snap  model.Snapshot
	files map[string]string
	opts  Options
	water string // resolved water model file, empty for none
}

func (c compiler) preamble() []Statement {
	return []Statement{
		expr("import os"),
		expr("import sys"),
		blank(),
		expr("sys.stdout.reconfigure(line_buffering=True)"),
		assign("sys.stderr", "sys.stdout"),
		expr("os.chdir(" + quote(c.opts.WorkDir) + ")"),
		blank(),
	}
}

func (c compiler) header() []Statement {
	return []Statement{
		comment("This script was generated by OpenMM-Setup on " + c.opts.Date.Format(time.DateOnly) + "."),
		blank(),
		imports("openmm"),
		imports("openmm.app"),
		imports("openmm.unit"),
	}
}

func (c compiler) inputFiles() []Statement {
	var ret []Statement
	switch c.snap.FileType {
	case model.FileTypePDB:
		ret = append(ret, assign("pdb", "PDBFile("+quote(c.files[model.RoleFile])+")"))
	case model.FileTypePDBx:
		ret = append(ret, assign("pdbx", "PDBxFile("+quote(c.files[model.RoleFile])+")"))
	case model.FileTypeAmber:
		ret = append(ret,
			assign("prmtop", "AmberPrmtopFile("+quote(c.files[model.RolePrmtopFile])+")"),
			assign("inpcrd", "AmberInpcrdFile("+quote(c.files[model.RoleInpcrdFile])+")"),
		)
	case model.FileTypeGromacs:
		args := []string{quote(c.files[model.RoleTopFile])}
		if c.snap.GromacsIncludeDir != "" {
			args = append(args, "includeDir="+quote(c.snap.GromacsIncludeDir))
		}
		args = append(args, "periodicBoxVectors=gro.getPeriodicBoxVectors()")
		ret = append(ret,
			assign("gro", "GromacsGroFile("+quote(c.files[model.RoleGroFile])+")"),
			assign("top", "GromacsTopFile("+strings.Join(args, ", ")+")"),
		)
	}
	if c.snap.FileType.IsPDB() {
		args := []string{quote(c.snap.ForceField)}
		if c.water != "" {
			args = append(args, quote(c.water))
		}
		ret = append(ret, assign("forcefield", "ForceField("+strings.Join(args, ", ")+")"))
	}
	return ret
}

var constraintNames = map[model.Constraints]string{
	model.ConstraintsNone:     "None",
	model.ConstraintsWater:    "None",
	model.ConstraintsHBonds:   "HBonds",
	model.ConstraintsAllBonds: "AllBonds",
}

func (c compiler) system() []Statement {
	s := c.snap
	ret := []Statement{assign("nonbondedMethod", string(s.NonbondedMethod))}
	if s.NonbondedMethod != model.NoCutoff {
		ret = append(ret, assign("nonbondedCutoff", s.Cutoff+"*nanometers"))
	}
	if s.NonbondedMethod == model.PME {
		ret = append(ret, assign("ewaldErrorTolerance", s.EwaldTolerance))
	}
	ret = append(ret,
		assign("constraints", constraintNames[s.Constraints]),
		assign("rigidWater", pyBool(s.Constraints != model.ConstraintsNone)),
	)
	if s.Constraints != model.ConstraintsNone {
		ret = append(ret, assign("constraintTolerance", s.ConstraintTolerance))
	}
	return ret
}

func (c compiler) integration() []Statement {
	s := c.snap
	ret := []Statement{assign("dt", s.Dt+"*picoseconds")}
	if s.Ensemble.Thermostatted() {
		ret = append(ret,
			assign("temperature", s.Temperature+"*kelvin"),
			assign("friction", s.Friction+"/picosecond"),
		)
	}
	if s.Ensemble == model.EnsembleNPT {
		ret = append(ret,
			assign("pressure", s.Pressure+"*atmospheres"),
			assign("barostatInterval", s.BarostatInterval),
		)
	}
	return ret
}

func (c compiler) simulation() []Statement {
	s := c.snap
	ret := []Statement{
		assign("steps", s.Steps),
		assign("equilibrationSteps", s.EquilibrationSteps),
		assign("platform", "Platform.getPlatformByName("+quote(string(s.Platform))+")"),
	}
	if s.Platform.GPU() {
		ret = append(ret, assign("platformProperties", "{'Precision': "+quote(string(s.Precision))+"}"))
	}
	if s.WriteDCD {
		ret = append(ret, assign("dcdReporter", "DCDReporter("+quote(s.DCDFilename)+", "+s.DCDInterval+")"))
	}
	if s.WriteData {
		ret = append(ret, assign("dataReporter", c.dataReporter(quote(s.DataFilename))))
		if c.opts.Internal {
			ret = append(ret, assign("consoleReporter", c.dataReporter("sys.stdout")))
		}
	}
	return ret
}

func (c compiler) dataReporter(target string) string {
	args := []string{target, c.snap.DataInterval, "totalSteps=" + c.snap.Steps}
	for _, f := range c.snap.SelectedFields() {
		args = append(args, string(f)+"=True")
	}
	args = append(args, `separator='\t'`)
	return "StateDataReporter(" + strings.Join(args, ", ") + ")"
}

// source returns the python names of the objects holding the topology and
// the positions.
func (c compiler) source() (topology, positions string) {
	switch c.snap.FileType {
	case model.FileTypePDB:
		return "pdb", "pdb"
	case model.FileTypePDBx:
		return "pdbx", "pdbx"
	case model.FileTypeAmber:
		return "prmtop", "inpcrd"
	case model.FileTypeGromacs:
		return "top", "gro"
	}
	panic(fmt.Sprintf("unsupported file type %q", c.snap.FileType))
}

func (c compiler) prepare() []Statement {
	s := c.snap
	topology, positions := c.source()
	ret := []Statement{
		expr("print('Building system...')"),
		assign("topology", topology+".topology"),
		assign("positions", positions+".positions"),
	}
	if s.FileType.IsPDB() && NeedsExtraParticles(s.ForceField, c.water) {
		ret = append(ret,
			assign("modeller", "Modeller(topology, positions)"),
			expr("modeller.addExtraParticles(forcefield)"),
			assign("topology", "modeller.topology"),
			assign("positions", "modeller.positions"),
		)
	}

	var args []string
	if s.FileType.IsPDB() {
		args = append(args, "topology")
	}
	args = append(args, "nonbondedMethod=nonbondedMethod")
	if s.NonbondedMethod != model.NoCutoff {
		args = append(args, "nonbondedCutoff=nonbondedCutoff")
	}
	args = append(args, "constraints=constraints", "rigidWater=rigidWater")
	if s.NonbondedMethod == model.PME {
		args = append(args, "ewaldErrorTolerance=ewaldErrorTolerance")
	}
	factory := topology
	if s.FileType.IsPDB() {
		factory = "forcefield"
	}
	ret = append(ret, assign("system", factory+".createSystem("+strings.Join(args, ", ")+")"))

	if s.Ensemble == model.EnsembleNPT {
		ret = append(ret, expr("system.addForce(MonteCarloBarostat(pressure, temperature, barostatInterval))"))
	}
	if s.Ensemble == model.EnsembleNVE {
		ret = append(ret, assign("integrator", "VerletIntegrator(dt)"))
	} else {
		ret = append(ret, assign("integrator", "LangevinIntegrator(temperature, friction, dt)"))
	}
	if s.Constraints != model.ConstraintsNone {
		ret = append(ret, expr("integrator.setConstraintTolerance(constraintTolerance)"))
	}

	simArgs := "topology, system, integrator, platform"
	if s.Platform.GPU() {
		simArgs += ", platformProperties"
	}
	ret = append(ret,
		assign("simulation", "Simulation("+simArgs+")"),
		expr("simulation.context.setPositions(positions)"),
	)
	if s.FileType == model.FileTypeAmber {
		ret = append(ret,
			expr("if inpcrd.boxVectors is not None:"),
			expr("simulation.context.setPeriodicBoxVectors(*inpcrd.boxVectors)").indented(1),
		)
	}
	return ret
}

func (c compiler) equilibrate() []Statement {
	ret := []Statement{
		expr("print('Performing energy minimization...')"),
		expr("simulation.minimizeEnergy()"),
		expr("print('Equilibrating...')"),
	}
	if c.snap.Ensemble.Thermostatted() {
		ret = append(ret, expr("simulation.context.setVelocitiesToTemperature(temperature)"))
	}
	return append(ret, expr("simulation.step(equilibrationSteps)"))
}

func (c compiler) simulate() []Statement {
	ret := []Statement{expr("print('Simulating...')")}
	if c.snap.WriteDCD {
		ret = append(ret, expr("simulation.reporters.append(dcdReporter)"))
	}
	if c.snap.WriteData {
		ret = append(ret, expr("simulation.reporters.append(dataReporter)"))
		if c.opts.Internal {
			ret = append(ret, expr("simulation.reporters.append(consoleReporter)"))
		}
	}
	return append(ret,
		assign("simulation.currentStep", "0"),
		expr("simulation.step(steps)"),
	)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
