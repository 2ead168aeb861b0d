package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

// FormatOf guesses the snapshot format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// LoadSnapshot reads a snapshot file. It does not validate it.
func LoadSnapshot(path string) (Snapshot, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Snapshot{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return DecodeSnapshot(raw, path, format)
}

// DecodeSnapshot decodes a snapshot from raw bytes, unknown keys are errors.
func DecodeSnapshot(raw []byte, filename string, format Format) (Snapshot, error) {
	var s Snapshot
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return Snapshot{}, fmt.Errorf("decoding %s: %w", filename, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Snapshot{}, fmt.Errorf("decoding %s: %w", filename, err)
		}
	case FormatHCL:
		return decodeHCL(raw, filename)
	default:
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return s, nil
}

// WriteSnapshot encodes s as YAML.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// hclSnapshot is the HCL shape of a snapshot, attributes use snake case.
type hclSnapshot struct {
	FileType          string `hcl:"file_type"`
	ForceField        string `hcl:"force_field,optional"`
	WaterModel        string `hcl:"water_model,optional"`
	GromacsIncludeDir string `hcl:"gromacs_include_dir,optional"`

	NonbondedMethod     string `hcl:"nonbonded_method"`
	Cutoff              string `hcl:"cutoff,optional"`
	EwaldTolerance      string `hcl:"ewald_tolerance,optional"`
	Constraints         string `hcl:"constraints"`
	ConstraintTolerance string `hcl:"constraint_tolerance,optional"`

	Ensemble         string `hcl:"ensemble"`
	Temperature      string `hcl:"temperature,optional"`
	Friction         string `hcl:"friction,optional"`
	Pressure         string `hcl:"pressure,optional"`
	BarostatInterval string `hcl:"barostat_interval,optional"`

	Dt                 string `hcl:"dt"`
	Steps              string `hcl:"steps"`
	EquilibrationSteps string `hcl:"equilibration_steps"`
	Platform           string `hcl:"platform"`
	Precision          string `hcl:"precision,optional"`

	Reporters *hclReporters `hcl:"reporters,block"`
}

type hclReporters struct {
	DCD  *hclDCD  `hcl:"dcd,block"`
	Data *hclData `hcl:"data,block"`
}

type hclDCD struct {
	Filename string `hcl:"filename"`
	Interval string `hcl:"interval"`
}

type hclData struct {
	Filename string   `hcl:"filename"`
	Interval string   `hcl:"interval"`
	Fields   []string `hcl:"fields,optional"`
}

func decodeHCL(raw []byte, filename string) (Snapshot, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(raw, filename)
	if diags.HasErrors() {
		return Snapshot{}, fmt.Errorf("parsing %s: %w", filename, diags)
	}
	var h hclSnapshot
	if diags := gohcl.DecodeBody(file.Body, nil, &h); diags.HasErrors() {
		return Snapshot{}, fmt.Errorf("decoding %s: %w", filename, diags)
	}

	s := Snapshot{
		FileType:            FileType(h.FileType),
		ForceField:          h.ForceField,
		WaterModel:          h.WaterModel,
		GromacsIncludeDir:   h.GromacsIncludeDir,
		NonbondedMethod:     NonbondedMethod(h.NonbondedMethod),
		Cutoff:              h.Cutoff,
		EwaldTolerance:      h.EwaldTolerance,
		Constraints:         Constraints(h.Constraints),
		ConstraintTolerance: h.ConstraintTolerance,
		Ensemble:            Ensemble(h.Ensemble),
		Temperature:         h.Temperature,
		Friction:            h.Friction,
		Pressure:            h.Pressure,
		BarostatInterval:    h.BarostatInterval,
		Dt:                  h.Dt,
		Steps:               h.Steps,
		EquilibrationSteps:  h.EquilibrationSteps,
		Platform:            Platform(h.Platform),
		Precision:           Precision(h.Precision),
	}
	if h.Reporters != nil {
		if dcd := h.Reporters.DCD; dcd != nil {
			s.WriteDCD = true
			s.DCDFilename = dcd.Filename
			s.DCDInterval = dcd.Interval
		}
		if data := h.Reporters.Data; data != nil {
			s.WriteData = true
			s.DataFilename = data.Filename
			s.DataInterval = data.Interval
			for _, f := range data.Fields {
				s.DataFields = append(s.DataFields, DataField(f))
			}
		}
	}
	return s, nil
}
