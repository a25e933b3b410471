package cloud

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// The error taxonomy from spec.md §7. Callers use errors.As to distinguish
// kinds; the Provisioner's per-operation conventions (tolerate NotFound on
// terminate, treat IncorrectInstanceState as "already there", etc.) are
// built on top of these.

// ConfigError is raised for caller-input problems detected before any cloud
// side effect: missing required config keys, duplicate names, malformed
// arguments.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// NotFound indicates a cloud id (instance, EIP, snapshot, image) does not
// exist.
type NotFound struct {
	Resource string
	ID       string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func IsNotFound(err error) bool {
	var nf *NotFound
	return errors.As(err, &nf)
}

// Conflict wraps AWS errors such as IncorrectInstanceState or
// ParameterAlreadyExists: the request was well-formed but the resource is
// in a state the operation didn't expect.
type Conflict struct {
	Code string
	Msg  string
}

func (e *Conflict) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Msg) }

func IsConflict(err error) bool {
	var c *Conflict
	return errors.As(err, &c)
}

// Transient wraps any other cloud API error: throttling, transport
// failures, internal errors. It propagates unchanged to the caller.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return fmt.Sprintf("transient cloud error: %v", e.Err) }
func (e *Transient) Unwrap() error { return e.Err }

// RemoteFailure wraps an SSH or container-daemon error in a message naming
// the failing step, per spec.md §4.5/§7.
type RemoteFailure struct {
	Step string
	Err  error
}

func (e *RemoteFailure) Error() string { return fmt.Sprintf("remote step %q failed: %v", e.Step, e.Err) }
func (e *RemoteFailure) Unwrap() error { return e.Err }

// IntegrityError marks a reconciler-detected impossible state (e.g. a
// snapshot restore that discovers no tool-managed container). It is fatal
// to the operation and never auto-recovered.
type IntegrityError struct {
	Msg string
}

func (e *IntegrityError) Error() string { return e.Msg }

// notFoundCodes are the AWS EC2 error codes that mean "this id doesn't
// exist" rather than "something went wrong."
var notFoundCodes = map[string]bool{
	"InvalidInstanceID.NotFound":     true,
	"InvalidAddressID.NotFound":      true,
	"InvalidAllocationID.NotFound":   true,
	"InvalidSnapshot.NotFound":       true,
	"InvalidAMIID.NotFound":          true,
	"InvalidGroup.NotFound":          true,
	"InvalidKeyPair.NotFound":        true,
	"InvalidVolume.NotFound":         true,
}

var conflictCodes = map[string]bool{
	"IncorrectInstanceState":   true,
	"ParameterAlreadyExists":   true,
	"InvalidGroup.Duplicate":   true,
	"InvalidPermission.Duplicate": true,
	"InvalidIPAddress.InUse":   true,
	"ResourceAlreadyAssociated": true,
}

// Classify turns a raw AWS SDK v2 error into the spec.md §7 taxonomy by
// inspecting its smithy.APIError code. Non-API errors (context
// cancellation, network failures before a response was even parsed) are
// wrapped as Transient.
func Classify(resource, id string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case notFoundCodes[code]:
			return &NotFound{Resource: resource, ID: id}
		case conflictCodes[code]:
			return &Conflict{Code: code, Msg: apiErr.ErrorMessage()}
		}
	}
	return &Transient{Err: err}
}
