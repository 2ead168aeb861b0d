package model

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "positive", func(fl validator.FieldLevel) bool {
		f, ok := decimal(fl.Field().String())
		return ok && f > 0
	})
	mustRegister(v, "nonnegative", func(fl validator.FieldLevel) bool {
		f, ok := decimal(fl.Field().String())
		return ok && f >= 0
	})
	mustRegister(v, "count", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Field().String())
		return err == nil && n > 0
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// decimalRx accepts the float literals Python and the engine agree on:
// no hex floats, no inf or nan, no digit separators.
var decimalRx = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func decimal(s string) (float64, bool) {
	if !decimalRx.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Validate checks the snapshot is complete and internally consistent.
// An unknown platform is reported as *UnknownPlatformError, everything
// else as *ConfigurationError.
func (s Snapshot) Validate() error {
	if s.Platform != "" && !s.Platform.Known() {
		return &UnknownPlatformError{Platform: string(s.Platform)}
	}

	var violations []Violation
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating snapshot: %w", err)
		}
		for _, fe := range verrs {
			violations = append(violations, fromFieldError(fe))
		}
	}

	violations = append(violations, s.rules()...)
	if len(violations) == 0 {
		return nil
	}
	return &ConfigurationError{Violations: violations}
}

func fromFieldError(fe validator.FieldError) Violation {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return Violation{Field: field, Code: CodeMissingRequired, Message: "is required"}
	case "oneof":
		return Violation{Field: field, Code: CodeInvalidEnum, Message: fmt.Sprintf("possible values (%s): got %v", strings.ReplaceAll(fe.Param(), " ", ","), fe.Value())}
	case "positive":
		return Violation{Field: field, Code: CodeTypeMismatch, Message: fmt.Sprintf("expected a number greater than zero: got %q", fe.Value())}
	case "nonnegative":
		return Violation{Field: field, Code: CodeTypeMismatch, Message: fmt.Sprintf("expected a number not below zero: got %q", fe.Value())}
	case "number":
		return Violation{Field: field, Code: CodeTypeMismatch, Message: fmt.Sprintf("expected a non-negative integer: got %q", fe.Value())}
	case "count":
		return Violation{Field: field, Code: CodeTypeMismatch, Message: fmt.Sprintf("expected a positive integer: got %q", fe.Value())}
	default:
		return Violation{Field: field, Code: fe.Tag(), Message: fe.Error()}
	}
}

// rules holds the checks which depend on other options.
func (s Snapshot) rules() []Violation {
	var ret []Violation
	require := func(field, value, why string) {
		if strings.TrimSpace(value) == "" {
			ret = append(ret, Violation{Field: field, Code: CodeMissingRequired, Message: "is required " + why})
		}
	}
	forbid := func(field, value, why string) {
		if strings.TrimSpace(value) != "" {
			ret = append(ret, Violation{Field: field, Code: CodeConflict, Message: "must not be set " + why})
		}
	}

	if s.FileType.IsPDB() {
		require("forceField", s.ForceField, "for pdb and pdbx input")
		if !TakesNoWaterModel(s.ForceField) {
			require("waterModel", s.WaterModel, "for force field "+s.ForceField)
		}
	}

	if s.NonbondedMethod != "" && s.NonbondedMethod != NoCutoff {
		require("cutoff", s.Cutoff, "for nonbonded method "+string(s.NonbondedMethod))
	}
	if s.NonbondedMethod.UsesEwald() {
		require("ewaldTolerance", s.EwaldTolerance, "for nonbonded method "+string(s.NonbondedMethod))
	}
	if s.Constraints != "" && s.Constraints != ConstraintsNone {
		require("constraintTolerance", s.ConstraintTolerance, "when constraints are enabled")
	}

	if s.Ensemble.Thermostatted() {
		require("temperature", s.Temperature, "for ensemble "+string(s.Ensemble))
		require("friction", s.Friction, "for ensemble "+string(s.Ensemble))
	}
	if s.Ensemble == EnsembleNVE {
		forbid("temperature", s.Temperature, "for ensemble nve")
		forbid("friction", s.Friction, "for ensemble nve")
	}
	if s.Ensemble == EnsembleNVE || s.Ensemble == EnsembleNVT {
		forbid("pressure", s.Pressure, "for ensemble "+string(s.Ensemble))
		forbid("barostatInterval", s.BarostatInterval, "for ensemble "+string(s.Ensemble))
	}
	if s.Ensemble == EnsembleNPT {
		require("pressure", s.Pressure, "for ensemble npt")
		require("barostatInterval", s.BarostatInterval, "for ensemble npt")
		if s.NonbondedMethod != "" && !s.NonbondedMethod.Periodic() {
			ret = append(ret, Violation{
				Field:   "ensemble",
				Code:    CodeConflict,
				Message: "npt needs a periodic nonbonded method: got " + string(s.NonbondedMethod),
			})
		}
	}

	if s.Platform.GPU() {
		require("precision", string(s.Precision), "for platform "+string(s.Platform))
	} else if s.Platform != "" {
		forbid("precision", string(s.Precision), "for platform "+string(s.Platform))
	}
	if s.WriteDCD {
		require("dcdFilename", s.DCDFilename, "when writeDCD is set")
		require("dcdInterval", s.DCDInterval, "when writeDCD is set")
	}
	if s.WriteData {
		require("dataFilename", s.DataFilename, "when writeData is set")
		require("dataInterval", s.DataInterval, "when writeData is set")
	}
	return ret
}

// CheckRoles returns an error naming every role the file type needs but
// the given name mapping lacks.
func CheckRoles(t FileType, names map[string]string) error {
	var missing []string
	for _, role := range t.Roles() {
		if names[role] == "" {
			missing = append(missing, role)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	cerr := &ConfigurationError{}
	for _, role := range missing {
		cerr.Violations = append(cerr.Violations, Violation{
			Field:   role,
			Code:    CodeMissingRequired,
			Message: fmt.Sprintf("%s input needs a %s file", t, role),
		})
	}
	return errors.Join(ErrMissingRole, cerr)
}
