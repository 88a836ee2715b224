package capability

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrUnknownModel       = errors.New("unknown model")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrUnknownProvider    = errors.New("unknown provider")
)

// FeatureStructuredOutput names the schema-constrained output capability.
const FeatureStructuredOutput = "structured_output"

// UnknownModelError is returned when a model identifier is absent from the table.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

func (e *UnknownModelError) Is(target error) bool {
	return target == ErrUnknownModel
}

// UnsupportedFeatureError is returned when a directive asks a model for
// something it cannot do.
type UnsupportedFeatureError struct {
	Model   string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("model %q does not support %s", e.Model, e.Feature)
}

func (e *UnsupportedFeatureError) Is(target error) bool {
	return target == ErrUnsupportedFeature
}
