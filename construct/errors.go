package construct

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three failure classes of a composition.
var (
	// ErrConfiguration is returned when unit props are invalid. No engine
	// call is made once it is raised.
	ErrConfiguration = errors.New("configuration error")

	// ErrPackaging is returned when handler code cannot be packaged.
	ErrPackaging = errors.New("packaging error")

	// ErrProvisioning is returned when an engine rejects a primitive.
	ErrProvisioning = errors.New("provisioning error")

	// ErrUnknownRef is the cause engines report for an edge on a ref they
	// did not create.
	ErrUnknownRef = errors.New("unknown reference")
)

// ConfigurationError describes an invalid unit parameter.
type ConfigurationError struct {
	Unit    string
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Unit != "" && e.Field != "":
		return fmt.Sprintf("configuration error: %s: %s: %s", e.Unit, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	case e.Unit != "":
		return fmt.Sprintf("configuration error: %s: %s", e.Unit, e.Message)
	}
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// PackagingError wraps a failure to produce deployable code.
type PackagingError struct {
	Unit string
	Path string
	Err  error
}

func (e *PackagingError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("packaging error: %s: %s: %v", e.Unit, e.Path, e.Err)
	}
	return fmt.Sprintf("packaging error: %s: %v", e.Path, e.Err)
}

func (e *PackagingError) Is(target error) bool {
	return target == ErrPackaging
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}

// ProvisioningError wraps an engine rejection.
type ProvisioningError struct {
	Op       string
	Resource string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning error: %s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *ProvisioningError) Is(target error) bool {
	return target == ErrProvisioning
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(unit, field, message string) error {
	return &ConfigurationError{Unit: unit, Field: field, Message: message}
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsPackagingError reports whether err is a packaging error.
func IsPackagingError(err error) bool {
	return errors.Is(err, ErrPackaging)
}

// IsProvisioningError reports whether err is a provisioning error.
func IsProvisioningError(err error) bool {
	return errors.Is(err, ErrProvisioning)
}

// provisioned classifies an engine error. Engine errors that are already
// ProvisioningErrors pass through untouched.
func provisioned(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProvisioning) {
		return err
	}
	return &ProvisioningError{Op: op, Resource: resource, Err: err}
}

// packaged attaches the unit to a packager error.
func packaged(unit string, spec CodeSpec, err error) error {
	var perr *PackagingError
	if errors.As(err, &perr) {
		if perr.Unit == "" {
			cp := *perr
			cp.Unit = unit
			return &cp
		}
		return perr
	}
	return &PackagingError{Unit: unit, Path: spec.Path, Err: err}
}
