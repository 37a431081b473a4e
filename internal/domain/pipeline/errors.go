package pipeline

import (
	"errors"
	"fmt"
)

// Input errors. They are deterministic and never retried.
var (
	ErrCorruptArchive    = errors.New("corrupt archive")
	ErrEmptyArchive      = errors.New("archive contains no eligible source units")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrEmptyRecordSet    = errors.New("empty record set")
)

// ErrUnitTooLarge marks a source unit over the extraction size limit.
var ErrUnitTooLarge = errors.New("source unit exceeds size limit")

// ErrHandoffUnavailable is returned once the handoff retry budget is spent.
var ErrHandoffUnavailable = errors.New("handoff unavailable")

// Role names the kind of generation requested from the capability boundary.
type Role string

const (
	RoleDocumentation Role = "documentation"
	RoleBoilerplate   Role = "boilerplate"
	RoleTest          Role = "test"
	RoleArchitecture  Role = "architecture"
)

// GenerationError is a capability-level failure. It is isolated to the unit
// that triggered it and recorded as a failed status.
type GenerationError struct {
	Role Role
	Unit string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("%s generation failed: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("%s generation failed for %s: %v", e.Role, e.Unit, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError wraps err unless it already is a GenerationError.
func NewGenerationError(role Role, unit string, err error) error {
	if err == nil {
		return nil
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		if genErr.Unit == "" && unit != "" {
			return &GenerationError{Role: genErr.Role, Unit: unit, Err: genErr.Err}
		}
		return err
	}
	return &GenerationError{Role: role, Unit: unit, Err: err}
}

// IsInputError reports whether err belongs to the input error class.
func IsInputError(err error) bool {
	return errors.Is(err, ErrCorruptArchive) ||
		errors.Is(err, ErrEmptyArchive) ||
		errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrEmptyRecordSet)
}
