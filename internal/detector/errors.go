package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput reports a malformed buffer or an invalid stage parameter.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfig reports a configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInsufficientPoints is returned by FitEllipse for fewer than MinEllipsePoints points.
	// The classifier treats it as a silent rejection.
	ErrInsufficientPoints = errors.New("insufficient points for ellipse fit")
	// ErrDegenerateFit is returned when the conic fit does not describe an ellipse.
	ErrDegenerateFit = errors.New("degenerate ellipse fit")
)

// Stage names a step of the counting pipeline.
type Stage string

const (
	StageConfig    Stage = "config"
	StageGrayscale Stage = "grayscale"
	StageBlur      Stage = "blur"
	StageThreshold Stage = "threshold"
	StageMorph     Stage = "morphology"
	StageContours  Stage = "contours"
	StageClassify  Stage = "classify"
	StageAnnotate  Stage = "annotate"
)

// StageError identifies the pipeline stage that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
