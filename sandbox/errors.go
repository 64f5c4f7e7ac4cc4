package sandbox

import "errors"

var (
	// ErrNotFound reports that the execution unit does not exist
	ErrNotFound = errors.New("execution unit not found")

	// ErrAlreadyExists reports a name collision on create
	ErrAlreadyExists = errors.New("execution unit already exists")

	// ErrUnsupportedLanguage reports a language outside the configured table
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// ValidationError is returned for requests rejected before any backend call
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: the backend rejected the call and
// repeating it cannot succeed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
