package generator

import (
	"errors"
	"fmt"
)

const (
	StageDispatch = "dispatch"
	StageCommand  = "command"
	StageImage    = "stage1"
	StageVideo    = "stage2"
)

var (
	ErrEmptyResult       = errors.New("generation returned no media url")
	ErrUnknownGenType    = errors.New("unknown generation type")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrTaskFailed        = errors.New("generation task failed")
	ErrNoCommandEndpoint = errors.New("host command endpoint not configured")
)

// GenerationError is any failure of a generation attempt. Stage names the step that
// failed so callers can tell a Stage 1 failure from a Stage 2 one.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return &GenerationError{Stage: stage, Err: err}
}
