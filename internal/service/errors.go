package service

import (
	"errors"
	"fmt"
)

var ErrJobNotFound = errors.New("job not found")

// DirectoryCreationError means the job directory could not be created.
type DirectoryCreationError struct {
	Dir string
	Err error
}

func (e *DirectoryCreationError) Error() string {
	return fmt.Sprintf("An error occurred while creating the simulation directory %s: %v", e.Dir, e.Err)
}

func (e *DirectoryCreationError) Unwrap() error { return e.Err }

// FileCopyError means an input file or the script could not be written into
// the job directory.
type FileCopyError struct {
	Name string
	Err  error
}

func (e *FileCopyError) Error() string {
	return fmt.Sprintf("An error occurred while copying the input files (%s): %v", e.Name, e.Err)
}

func (e *FileCopyError) Unwrap() error { return e.Err }

// LaunchError means the worker could not be started.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("An error occurred while starting the simulation: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
