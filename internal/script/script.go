package script

import (
	"slices"
	"strings"
)

// FileName is the name of the generated script inside a job directory.
const FileName = "run_openmm_simulation.py"

// Section is one titled block of the generated script. Sections are always
// rendered in declaration order.
type Section int

const (
	SectionHeader Section = iota
	SectionInputFiles
	SectionSystem
	SectionIntegration
	SectionSimulation
	SectionPrepare
	SectionEquilibrate
	SectionSimulate
	numSections
)

var sectionTitles = [numSections]string{
	SectionHeader:      "Header",
	SectionInputFiles:  "Input Files",
	SectionSystem:      "System Configuration",
	SectionIntegration: "Integration Options",
	SectionSimulation:  "Simulation Options",
	SectionPrepare:     "Prepare the Simulation",
	SectionEquilibrate: "Minimize and Equilibrate",
	SectionSimulate:    "Simulate",
}

func (s Section) String() string {
	if s < 0 || s >= numSections {
		return "Unknown"
	}
	return sectionTitles[s]
}

// Sections returns all sections in render order.
func Sections() []Section {
	ret := make([]Section, numSections)
	for i := range ret {
		ret[i] = Section(i)
	}
	return ret
}

type Kind int

const (
	KindComment Kind = iota
	KindImport
	KindAssign
	KindExpr
	KindBlank
)

// Statement is a single line of the generated script.
type Statement struct {
	Kind   Kind
	Target string // assignment target, KindAssign only
	Text   string
	Indent int
}

func comment(text string) Statement {
	return Statement{Kind: KindComment, Text: text}
}

func imports(module string) Statement {
	return Statement{Kind: KindImport, Text: module}
}

func assign(target, expr string) Statement {
	return Statement{Kind: KindAssign, Target: target, Text: expr}
}

func expr(text string) Statement {
	return Statement{Kind: KindExpr, Text: text}
}

func blank() Statement {
	return Statement{Kind: KindBlank}
}

func (s Statement) indented(n int) Statement {
	s.Indent = n
	return s
}

func (s Statement) String() string {
	if s.Kind == KindBlank {
		return ""
	}
	pad := strings.Repeat("    ", s.Indent)
	switch s.Kind {
	case KindComment:
		return pad + "# " + s.Text
	case KindImport:
		return pad + "from " + s.Text + " import *"
	case KindAssign:
		return pad + s.Target + " = " + s.Text
	default:
		return pad + s.Text
	}
}

// Script is a compiled simulation script. It is immutable.
type Script struct {
	preamble []Statement
	sections [numSections][]Statement
}

// Preamble returns the statements preceding the header, empty unless the
// script was compiled for internal execution.
func (s *Script) Preamble() []Statement {
	return slices.Clone(s.preamble)
}

func (s *Script) Section(sec Section) []Statement {
	if sec < 0 || sec >= numSections {
		return nil
	}
	return slices.Clone(s.sections[sec])
}

// Find returns the first statement assigning target within a section.
func (s *Script) Find(sec Section, target string) (Statement, bool) {
	for _, st := range s.Section(sec) {
		if st.Kind == KindAssign && st.Target == target {
			return st, true
		}
	}
	return Statement{}, false
}

// Lines renders the script line by line.
func (s *Script) Lines() []string {
	var lines []string
	for _, st := range s.preamble {
		lines = append(lines, st.String())
	}
	for _, sec := range Sections() {
		if sec != SectionHeader {
			lines = append(lines, "", "# "+sec.String(), "")
		}
		for _, st := range s.sections[sec] {
			lines = append(lines, st.String())
		}
	}
	return lines
}

func (s *Script) String() string {
	return strings.Join(s.Lines(), "\n") + "\n"
}

func (s *Script) Bytes() []byte {
	return []byte(s.String())
}

var pyEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// quote renders s as a single quoted python string literal.
func quote(s string) string {
	return "'" + pyEscaper.Replace(s) + "'"
}
