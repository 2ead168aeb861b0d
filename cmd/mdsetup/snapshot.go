package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CZERTAINLY/mdsetup/internal/files"
	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/CZERTAINLY/mdsetup/internal/script"
	"github.com/spf13/cobra"
)

var (
	flagFiles      map[string]string // role=path
	flagScriptOut  string
	flagPackageOut string
	flagInitOut    string
	flagInternal   bool
	flagWorkDir    string
	flagForceField string
)

var compileCmd = &cobra.Command{
	Use:   "compile <snapshot.yaml|.json|.hcl>",
	Short: "compile prints the simulation script for a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  doCompile,
}

var packageCmd = &cobra.Command{
	Use:   "package <snapshot.yaml|.json|.hcl>",
	Short: "package writes a zip with the script and its input files",
	Args:  cobra.ExactArgs(1),
	RunE:  doPackage,
}

var initCmd = &cobra.Command{
	Use:       "init <pdb|pdbx|amber|gromacs>",
	Short:     "init writes a snapshot with the default simulation options",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"pdb", "pdbx", "amber", "gromacs"},
	RunE:      doInit,
}

func init() {
	for _, cmd := range []*cobra.Command{compileCmd, packageCmd, runCmd} {
		cmd.Flags().StringToStringVar(&flagFiles, "file", nil, "input file as role=path, eg. file=input.pdb or prmtopFile=sys.prmtop")
	}
	compileCmd.Flags().StringVarP(&flagScriptOut, "output", "o", "", "write the script to a file instead of stdout")
	compileCmd.Flags().BoolVar(&flagInternal, "internal", false, "emit the preamble used for supervised runs")
	compileCmd.Flags().StringVar(&flagWorkDir, "workdir", "", "job directory the internal preamble changes to")
	packageCmd.Flags().StringVarP(&flagPackageOut, "output", "o", "openmm_simulation.zip", "zip file to write")
	initCmd.Flags().StringVarP(&flagInitOut, "output", "o", "", "write the snapshot to a file instead of stdout")
	initCmd.Flags().StringVar(&flagForceField, "force-field", "amber14-all.xml", "force field of pdb and pdbx snapshots")
}

func doCompile(cmd *cobra.Command, args []string) error {
	snap, err := model.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	names := make(map[string]string, len(flagFiles))
	for role, path := range flagFiles {
		names[role] = files.SecureFilename(filepath.Base(path))
	}
	compiled, err := script.Compile(snap, names, script.Options{
		Internal: flagInternal,
		WorkDir:  flagWorkDir,
		Date:     time.Now(),
	})
	if err != nil {
		return err
	}
	if flagScriptOut != "" {
		return os.WriteFile(flagScriptOut, compiled.Bytes(), 0o644)
	}
	_, err = cmd.OutOrStdout().Write(compiled.Bytes())
	return err
}

func doPackage(_ *cobra.Command, args []string) error {
	snap, err := model.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	reg, err := readFiles(flagFiles)
	if err != nil {
		return err
	}
	compiled, err := script.Compile(snap, files.Names(reg), script.Options{Date: time.Now()})
	if err != nil {
		return err
	}

	f, err := os.Create(flagPackageOut)
	if err != nil {
		return fmt.Errorf("creating %s: %w", flagPackageOut, err)
	}
	err = files.Package(f, script.FileName, compiled.Bytes(), reg)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("packaging: %w", err)
	}
	return f.Close()
}

func doInit(cmd *cobra.Command, args []string) error {
	fileType := model.FileType(args[0])
	forceField := flagForceField
	if !fileType.IsPDB() {
		forceField = ""
	}
	snap := model.DefaultSnapshot(fileType, forceField)

	if flagInitOut == "" {
		return model.WriteSnapshot(cmd.OutOrStdout(), snap)
	}
	f, err := os.Create(flagInitOut)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", flagInitOut, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := model.WriteSnapshot(f, snap); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	return nil
}

// readFiles loads role=path pairs into a registry, files keep their base name.
func readFiles(paths map[string]string) (*files.Set, error) {
	reg := files.NewSet()
	for role, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		err = reg.AddReader(role, filepath.Base(path), f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}
