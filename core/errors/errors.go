package errors

import "errors"

type Category string

const (
	CategoryInvalidInput      Category = "invalid_input"
	CategoryInconsistentModel Category = "inconsistent_model"
	CategoryDependencyMissing Category = "dependency_missing"
	CategoryIOFailure         Category = "io_failure"
	CategorySolverFailed      Category = "solver_failed"
	CategoryInternalFailure   Category = "internal_failure"
)

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Hint() string {
	return e.hint
}

func (e *classifiedError) Retryable() bool {
	return e.retryable
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// Invalid classifies a validation failure of caller-provided model data. Such
// failures are never retryable: the same input fails the same way.
func Invalid(cause error, code, hint string) error {
	return Wrap(cause, CategoryInvalidInput, code, hint, false)
}

// Inconsistent classifies a failure where individually valid entries disagree
// with each other, such as a package reaching outside the grid.
func Inconsistent(cause error, code, hint string) error {
	return Wrap(cause, CategoryInconsistentModel, code, hint, false)
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}
