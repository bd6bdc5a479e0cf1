package backend

import (
	"errors"
	"fmt"
)

// ResolutionError reports that no artifact is available for an instance.
type ResolutionError struct {
	Model      string
	Instance   string
	Artifact   string
	Capability string
}

func (e *ResolutionError) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("unable to find model '%s' for compute capability %s of instance '%s' of '%s'", e.Artifact, e.Capability, e.Instance, e.Model)
	}
	return fmt.Sprintf("unable to find model '%s' for instance '%s' of '%s'", e.Artifact, e.Instance, e.Model)
}

// IsResolution reports whether err is a ResolutionError.
func IsResolution(err error) bool {
	var e *ResolutionError
	return errors.As(err, &e)
}

// DeviceBindingError reports that an instance could not be placed on its GPU.
type DeviceBindingError struct {
	Model    string
	Instance string
	Device   int
	Err      error
}

func (e *DeviceBindingError) Error() string {
	return fmt.Sprintf("unable to bind instance '%s' of '%s' to GPU %d: %v", e.Instance, e.Model, e.Device, e.Err)
}

func (e *DeviceBindingError) Unwrap() error { return e.Err }

// IsDeviceBinding reports whether err is a DeviceBindingError.
func IsDeviceBinding(err error) bool {
	var e *DeviceBindingError
	return errors.As(err, &e)
}

// LoadError reports a runtime failure while loading an artifact.
type LoadError struct {
	Model    string
	Instance string
	Artifact string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("unable to load '%s' for instance '%s' of '%s': %v", e.Artifact, e.Instance, e.Model, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoad reports whether err is a LoadError.
func IsLoad(err error) bool {
	var e *LoadError
	return errors.As(err, &e)
}

// SchemaMismatchError reports a declared input or output the loaded
// instance cannot serve.
type SchemaMismatchError struct {
	Model    string
	Instance string
	// Kind is "input" or "output".
	Kind   string
	Tensor string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s '%s' of instance '%s' of '%s': %s", e.Kind, e.Tensor, e.Instance, e.Model, e.Reason)
}

// IsSchemaMismatch reports whether err is a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var e *SchemaMismatchError
	return errors.As(err, &e)
}

// SizeMismatchError reports a request whose input bytes do not match its
// batch size and the declared shape. It fails the whole group.
type SizeMismatchError struct {
	Model    string
	Instance string
	Request  int
	Input    string
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("unexpected size %d for input '%s' of request %d on '%s' of '%s', expecting %d", e.Actual, e.Input, e.Request, e.Instance, e.Model, e.Expected)
}

// IsSizeMismatch reports whether err is a SizeMismatchError.
func IsSizeMismatch(err error) bool {
	var e *SizeMismatchError
	return errors.As(err, &e)
}

// OutputShapeError reports a batched output that cannot be split back.
type OutputShapeError struct {
	Model    string
	Instance string
	Output   string
	Msg      string
}

func (e *OutputShapeError) Error() string {
	return fmt.Sprintf("output '%s' of instance '%s' of '%s': %s", e.Output, e.Instance, e.Model, e.Msg)
}

// IsOutputShape reports whether err is an OutputShapeError.
func IsOutputShape(err error) bool {
	var e *OutputShapeError
	return errors.As(err, &e)
}

// RuntimeExecutionError wraps a failure reported by the runtime during a run.
type RuntimeExecutionError struct {
	Model    string
	Instance string
	Runtime  string
	Err      error
}

func (e *RuntimeExecutionError) Error() string {
	return fmt.Sprintf("%s error on instance '%s' of '%s': %v", e.Runtime, e.Instance, e.Model, e.Err)
}

func (e *RuntimeExecutionError) Unwrap() error { return e.Err }

// IsRuntimeExecution reports whether err is a RuntimeExecutionError.
func IsRuntimeExecution(err error) bool {
	var e *RuntimeExecutionError
	return errors.As(err, &e)
}

// InternalError signals a violated precondition: a caller bug, not bad data.
type InternalError struct {
	Model    string
	Instance string
	Msg      string
}

func (e *InternalError) Error() string {
	if e.Instance == "" {
		return fmt.Sprintf("internal error for '%s': %s", e.Model, e.Msg)
	}
	return fmt.Sprintf("internal error on instance '%s' of '%s': %s", e.Instance, e.Model, e.Msg)
}

// IsInternal reports whether err is an InternalError.
func IsInternal(err error) bool {
	var e *InternalError
	return errors.As(err, &e)
}
