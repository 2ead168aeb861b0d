package model

import "cmp"

// DefaultSnapshot returns the options offered for a new job of the given
// input type and force field.
func DefaultSnapshot(fileType FileType, forceField string) Snapshot {
	s := Snapshot{
		FileType:            fileType,
		NonbondedMethod:     PME,
		Cutoff:              "1.0",
		EwaldTolerance:      "0.0005",
		Constraints:         ConstraintsHBonds,
		ConstraintTolerance: "0.000001",
		Ensemble:            EnsembleNPT,
		Temperature:         "300",
		Friction:            "1.0",
		Pressure:            "1.0",
		BarostatInterval:    "25",
		Dt:                  "0.002",
		Steps:               "1000000",
		EquilibrationSteps:  "1000",
		Platform:            PlatformCUDA,
		Precision:           PrecisionSingle,
		WriteDCD:            true,
		DCDFilename:         "trajectory.dcd",
		DCDInterval:         "10000",
		WriteData:           true,
		DataFilename:        "log.txt",
		DataInterval:        "1000",
		DataFields:          []DataField{FieldStep, FieldSpeed, FieldProgress, FieldPotentialEnergy, FieldTemperature},
	}
	if fileType.IsPDB() {
		s.ForceField = forceField
		switch {
		case IsAmoeba(forceField):
			s.WaterModel = WaterImplicit
			s.Constraints = ConstraintsNone
		case forceField != CharmmPolar:
			s.WaterModel = "tip3p.xml"
		}
	}
	return s
}

// WithEnsemble switches the ensemble, dropping the thermostat and barostat
// options it does not use and filling the defaults of those it needs.
func (s Snapshot) WithEnsemble(e Ensemble) Snapshot {
	s.Ensemble = e
	if e.Thermostatted() {
		s.Temperature = cmp.Or(s.Temperature, "300")
		s.Friction = cmp.Or(s.Friction, "1.0")
	} else {
		s.Temperature = ""
		s.Friction = ""
	}
	if e == EnsembleNPT {
		s.Pressure = cmp.Or(s.Pressure, "1.0")
		s.BarostatInterval = cmp.Or(s.BarostatInterval, "25")
	} else {
		s.Pressure = ""
		s.BarostatInterval = ""
	}
	return s
}

// WithPlatform switches the platform, precision is kept for GPU platforms
// only.
func (s Snapshot) WithPlatform(p Platform) Snapshot {
	s.Platform = p
	if p.GPU() {
		s.Precision = cmp.Or(s.Precision, PrecisionSingle)
	} else {
		s.Precision = ""
	}
	return s
}
