package model

import "slices"

type FileType string

const (
	FileTypePDB     FileType = "pdb"
	FileTypePDBx    FileType = "pdbx"
	FileTypeAmber   FileType = "amber"
	FileTypeGromacs FileType = "gromacs"
)

// IsPDB reports whether the input is a coordinate file parameterized by a force field.
func (t FileType) IsPDB() bool {
	return t == FileTypePDB || t == FileTypePDBx
}

// Logical roles of uploaded input files.
const (
	RoleFile       = "file"
	RolePrmtopFile = "prmtopFile"
	RoleInpcrdFile = "inpcrdFile"
	RoleTopFile    = "topFile"
	RoleGroFile    = "groFile"
)

// Roles returns the file roles a snapshot of the given type needs.
func (t FileType) Roles() []string {
	switch t {
	case FileTypePDB, FileTypePDBx:
		return []string{RoleFile}
	case FileTypeAmber:
		return []string{RolePrmtopFile, RoleInpcrdFile}
	case FileTypeGromacs:
		return []string{RoleTopFile, RoleGroFile}
	default:
		return nil
	}
}

type NonbondedMethod string

const (
	NoCutoff          NonbondedMethod = "NoCutoff"
	CutoffPeriodic    NonbondedMethod = "CutoffPeriodic"
	CutoffNonPeriodic NonbondedMethod = "CutoffNonPeriodic"
	Ewald             NonbondedMethod = "Ewald"
	PME               NonbondedMethod = "PME"
)

// Periodic reports whether the method applies periodic boundary conditions.
func (m NonbondedMethod) Periodic() bool {
	return m == CutoffPeriodic || m == Ewald || m == PME
}

// UsesEwald reports whether the method takes an Ewald error tolerance.
func (m NonbondedMethod) UsesEwald() bool {
	return m == Ewald || m == PME
}

type Constraints string

const (
	ConstraintsNone     Constraints = "none"
	ConstraintsWater    Constraints = "water"
	ConstraintsHBonds   Constraints = "hbonds"
	ConstraintsAllBonds Constraints = "allbonds"
)

type Ensemble string

const (
	EnsembleNVE Ensemble = "nve"
	EnsembleNVT Ensemble = "nvt"
	EnsembleNPT Ensemble = "npt"
)

// Thermostatted reports whether the ensemble couples to a heat bath.
func (e Ensemble) Thermostatted() bool {
	return e == EnsembleNVT || e == EnsembleNPT
}

type Platform string

const (
	PlatformReference Platform = "Reference"
	PlatformCPU       Platform = "CPU"
	PlatformCUDA      Platform = "CUDA"
	PlatformOpenCL    Platform = "OpenCL"
)

var platforms = []Platform{PlatformReference, PlatformCPU, PlatformCUDA, PlatformOpenCL}

func (p Platform) Known() bool {
	return slices.Contains(platforms, p)
}

// GPU reports whether the platform accepts a precision property.
func (p Platform) GPU() bool {
	return p == PlatformCUDA || p == PlatformOpenCL
}

type Precision string

const (
	PrecisionSingle Precision = "single"
	PrecisionMixed  Precision = "mixed"
	PrecisionDouble Precision = "double"
)

// DataField is a column of the state data reporter.
type DataField string

const (
	FieldStep            DataField = "step"
	FieldTime            DataField = "time"
	FieldPotentialEnergy DataField = "potentialEnergy"
	FieldKineticEnergy   DataField = "kineticEnergy"
	FieldTotalEnergy     DataField = "totalEnergy"
	FieldTemperature     DataField = "temperature"
	FieldVolume          DataField = "volume"
	FieldDensity         DataField = "density"
	FieldProgress        DataField = "progress"
	FieldRemainingTime   DataField = "remainingTime"
	FieldSpeed           DataField = "speed"
	FieldElapsedTime     DataField = "elapsedTime"
)

// DataFields lists every reporter column in the order the reporter prints them.
var DataFields = []DataField{
	FieldStep,
	FieldTime,
	FieldPotentialEnergy,
	FieldKineticEnergy,
	FieldTotalEnergy,
	FieldTemperature,
	FieldVolume,
	FieldDensity,
	FieldProgress,
	FieldRemainingTime,
	FieldSpeed,
	FieldElapsedTime,
}

// Snapshot is a fully populated set of options for one simulation job.
// Numeric options are kept as the strings the user entered, they are
// emitted verbatim into the generated script.
type Snapshot struct {
	FileType          FileType `json:"fileType" yaml:"fileType" validate:"required,oneof=pdb pdbx amber gromacs"`
	ForceField        string   `json:"forceField,omitempty" yaml:"forceField,omitempty"`
	WaterModel        string   `json:"waterModel,omitempty" yaml:"waterModel,omitempty"`
	GromacsIncludeDir string   `json:"gromacsIncludeDir,omitempty" yaml:"gromacsIncludeDir,omitempty"`

	NonbondedMethod     NonbondedMethod `json:"nonbondedMethod" yaml:"nonbondedMethod" validate:"required,oneof=NoCutoff CutoffPeriodic CutoffNonPeriodic Ewald PME"`
	Cutoff              string          `json:"cutoff,omitempty" yaml:"cutoff,omitempty" validate:"omitempty,positive"`
	EwaldTolerance      string          `json:"ewaldTolerance,omitempty" yaml:"ewaldTolerance,omitempty" validate:"omitempty,positive"`
	Constraints         Constraints     `json:"constraints" yaml:"constraints" validate:"required,oneof=none water hbonds allbonds"`
	ConstraintTolerance string          `json:"constraintTolerance,omitempty" yaml:"constraintTolerance,omitempty" validate:"omitempty,positive"`

	Ensemble         Ensemble `json:"ensemble" yaml:"ensemble" validate:"required,oneof=nve nvt npt"`
	Temperature      string   `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,positive"`
	Friction         string   `json:"friction,omitempty" yaml:"friction,omitempty" validate:"omitempty,nonnegative"`
	Pressure         string   `json:"pressure,omitempty" yaml:"pressure,omitempty" validate:"omitempty,positive"`
	BarostatInterval string   `json:"barostatInterval,omitempty" yaml:"barostatInterval,omitempty" validate:"omitempty,count"`

	Dt                 string    `json:"dt" yaml:"dt" validate:"required,positive"`
	Steps              string    `json:"steps" yaml:"steps" validate:"required,number"`
	EquilibrationSteps string    `json:"equilibrationSteps" yaml:"equilibrationSteps" validate:"required,number"`
	Platform           Platform  `json:"platform" yaml:"platform" validate:"required"`
	Precision          Precision `json:"precision,omitempty" yaml:"precision,omitempty" validate:"omitempty,oneof=single mixed double"`

	WriteDCD    bool   `json:"writeDCD" yaml:"writeDCD"`
	DCDFilename string `json:"dcdFilename,omitempty" yaml:"dcdFilename,omitempty"`
	DCDInterval string `json:"dcdInterval,omitempty" yaml:"dcdInterval,omitempty" validate:"omitempty,count"`

	WriteData    bool        `json:"writeData" yaml:"writeData"`
	DataFilename string      `json:"dataFilename,omitempty" yaml:"dataFilename,omitempty"`
	DataInterval string      `json:"dataInterval,omitempty" yaml:"dataInterval,omitempty" validate:"omitempty,count"`
	DataFields   []DataField `json:"dataFields,omitempty" yaml:"dataFields,omitempty" validate:"dive,oneof=step time potentialEnergy kineticEnergy totalEnergy temperature volume density progress remainingTime speed elapsedTime"`
}

// SelectedFields returns the chosen reporter columns in reporter order,
// without duplicates.
func (s Snapshot) SelectedFields() []DataField {
	ret := make([]DataField, 0, len(s.DataFields))
	for _, f := range DataFields {
		if slices.Contains(s.DataFields, f) {
			ret = append(ret, f)
		}
	}
	return ret
}
