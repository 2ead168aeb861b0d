package model

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrUnknownFormat = errors.New("unknown snapshot format")
	ErrMissingRole   = errors.New("missing input file")
)

// Violation codes
const (
	CodeMissingRequired = "missing_required"
	CodeInvalidEnum     = "invalid_enum"
	CodeTypeMismatch    = "type_mismatch"
	CodeConflict        = "conflict"
	CodeUnsupported     = "unsupported"
)

type Violation struct {
	Field   string // json name of the option, eg. waterModel
	Code    string
	Message string
}

func (v Violation) Attr(name string) slog.Attr {
	return slog.Group(
		name,
		slog.String("field", v.Field),
		slog.String("code", v.Code),
		slog.String("message", v.Message),
	)
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ConfigurationError is returned for missing or inconsistent simulation
// options. It is raised before any file is written or worker spawned.
type ConfigurationError struct {
	Violations []Violation
}

func NewConfigurationError(field, code, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Violations: []Violation{{
			Field:   field,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		}},
	}
}

func (e *ConfigurationError) Error() string {
	if len(e.Violations) == 0 {
		return "invalid configuration"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Has reports whether any violation is reported for a field.
func (e *ConfigurationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

type UnknownPlatformError struct {
	Platform string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("unknown platform %q: possible values (Reference,CPU,CUDA,OpenCL)", e.Platform)
}
