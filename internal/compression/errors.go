package compression

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrEmptyInput            = errors.New("empty input")
	ErrInvalidConfig         = errors.New("invalid config")
	ErrScoringUnavailable    = errors.New("scoring unavailable")
	ErrRunNotFound           = errors.New("run not found")
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// Stage names the operation that failed.
type Stage string

const (
	StageAnalyze  Stage = "analyze"
	StagePrune    Stage = "prune"
	StageHybrid   Stage = "hybrid"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageStore    Stage = "store"
	StageSections Stage = "sections"
)

// Error records which stage failed, the sentinel kind and the underlying cause.
type Error struct {
	Stage   Stage
	Err     error // sentinel, may be nil
	Message string
	Cause   error // may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, msg)
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Errorf builds a stage error. kind is one of the sentinels (or nil) and cause may be nil.
func Errorf(stage Stage, kind, cause error, format string, args ...any) error {
	return &Error{
		Stage:   stage,
		Err:     kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// StageOf returns the stage recorded in err, or "" if err carries none.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
