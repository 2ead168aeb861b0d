package model

import "strings"

const (
	WaterImplicit = "implicit"
	WaterExplicit = "explicit"

	CharmmPolar = "charmm_polar_2013.xml"
)

// IsAmoeba reports whether the force field belongs to the AMOEBA family,
// which carries its own water description.
func IsAmoeba(forceField string) bool {
	return strings.HasPrefix(forceField, "amoeba")
}

// TakesNoWaterModel reports whether the force field works without a separate
// water model file.
func TakesNoWaterModel(forceField string) bool {
	return IsAmoeba(forceField) || forceField == CharmmPolar
}
