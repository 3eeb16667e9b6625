package service

import (
	"errors"
	"fmt"

	"sentinel-edge/models"
)

var (
	// ErrConfiguration is the root of every error detected before any I/O
	ErrConfiguration    = errors.New("configuration error")
	ErrUnknownMode      = fmt.Errorf("%w: unknown analysis mode", ErrConfiguration)
	ErrTemplateNotFound = fmt.Errorf("%w: instruction template not found", ErrConfiguration)

	ErrRetriesExhausted = errors.New("model failed to return a valid response")
	ErrJobNotFound      = errors.New("analysis job not found")
	ErrJobNotComplete   = errors.New("analysis job not complete")
	ErrUnsupportedFile  = errors.New("only PDF files are supported")
)

// ValidationError is a model response rejected by the schema gate
type ValidationError struct {
	Mode   models.AnalysisMode
	Reason string
	Raw    string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ExhaustedError is returned after every attempt failed
type ExhaustedError struct {
	Mode     models.AnalysisMode
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to return valid JSON after %d attempts. Last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// RunError is a terminal analysis failure with the stage and chunk it happened at.
// Chunk is -1 outside the per-chunk loop.
type RunError struct {
	Mode  models.AnalysisMode
	Stage models.AnalysisStage
	Chunk int
	Err   error
}

func (e *RunError) Error() string {
	if e.Chunk >= 0 {
		return fmt.Sprintf("%s analysis failed at %s (chunk %d): %v", e.Mode, e.Stage, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s analysis failed at %s: %v", e.Mode, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
