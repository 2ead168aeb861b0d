package script

import (
	"slices"

	"github.com/CZERTAINLY/mdsetup/internal/model"
)

const amoebaImplicit = "amoeba2013_gk.xml"

// implicitSolvent returns the implicit solvent file matching a force field.
func implicitSolvent(forceField string) (string, bool) {
	switch forceField {
	case "amber99sb.xml", "amber99sbildn.xml":
		return "amber99_obc.xml", true
	case "amber03.xml":
		return "amber03_obc.xml", true
	case "amber10.xml":
		return "amber10_obc.xml", true
	default:
		return "", false
	}
}

// ResolveWater returns the water model file to load next to the force field,
// or an empty string when none is loaded.
func ResolveWater(forceField, water string) (string, error) {
	switch {
	case model.IsAmoeba(forceField):
		switch water {
		case model.WaterImplicit:
			return amoebaImplicit, nil
		case "", model.WaterExplicit:
			return "", nil
		default:
			return water, nil
		}
	case forceField == model.CharmmPolar:
		return "", nil
	case water == model.WaterImplicit:
		file, ok := implicitSolvent(forceField)
		if !ok {
			return "", model.NewConfigurationError("waterModel", model.CodeUnsupported,
				"force field %s has no implicit solvent model", forceField)
		}
		return file, nil
	default:
		return water, nil
	}
}

var virtualSiteWater = []string{"tip4pew.xml", "tip4pfb.xml", "tip5p.xml"}

// NeedsExtraParticles reports whether the topology must be extended with
// virtual sites or Drude particles before the system is built.
func NeedsExtraParticles(forceField, water string) bool {
	return forceField == model.CharmmPolar || slices.Contains(virtualSiteWater, water)
}
