package decision

import (
	"errors"
	"fmt"
)

// Pipeline stages, used in errors and metrics.
const (
	StageSecurity = "security"
	StageRisk     = "risk"
	StageTier     = "tier"
)

// ErrModelInference is matched by every ModelInferenceError.
var ErrModelInference = errors.New("model inference error")

// ModelInferenceError reports a collaborator failure. It aborts the evaluation it
// occurred in and nothing else.
type ModelInferenceError struct {
	Stage string
	Err   error
}

func (e *ModelInferenceError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *ModelInferenceError) Unwrap() error { return e.Err }

func (e *ModelInferenceError) Is(target error) bool { return target == ErrModelInference }
