package manager

import "errors"

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct {
	model  string
	reason string
}

func (e tooBusyError) Error() string {
	if e.reason == "" {
		return "too busy: " + e.model
	}
	return "too busy: " + e.model + ": " + e.reason
}

// ErrTooBusy constructs a tooBusyError for model with a short reason.
func ErrTooBusy(model, reason string) error { return tooBusyError{model: model, reason: reason} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// BusyReason returns the backpressure reason carried by a too busy error,
// or "" for any other error.
func BusyReason(err error) string {
	var e tooBusyError
	if errors.As(err, &e) {
		return e.reason
	}
	return ""
}

type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound returns an error when a requested model is not present in the repository.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether the error indicates a missing model.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing external dependency (e.g. a
// runtime compiled out of the binary) so the HTTP layer can return 503
// Service Unavailable instead of 500.
type dependencyUnavailableError struct {
	msg string
	err error
}

func (e dependencyUnavailableError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e dependencyUnavailableError) Unwrap() error { return e.err }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// badRequestError marks a request that does not match the model
// configuration (return 400).
type badRequestError struct {
	msg string
	err error
}

func (e badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e badRequestError) Unwrap() error { return e.err }

// ErrBadRequest constructs a badRequestError.
func ErrBadRequest(msg string) error { return badRequestError{msg: msg} }

// IsBadRequest reports whether err was caused by the request itself.
func IsBadRequest(err error) bool {
	var e badRequestError
	return errors.As(err, &e)
}
