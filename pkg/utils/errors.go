package utils

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindConfig     ErrorKind = "config"
	KindConnection ErrorKind = "connection"
	KindExec       ErrorKind = "exec"
	KindStep       ErrorKind = "step"
)

// DeployError is the single error type surfaced by a failed invocation. Step,
// Command and Host are filled in for exec and step failures so an operator can
// diagnose a run without repeating it.
type DeployError struct {
	Kind       ErrorKind `json:"kind"`
	Code       int       `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Step       string    `json:"step,omitempty"`
	Command    string    `json:"command,omitempty"`
	Host       string    `json:"host,omitempty"`
	RemoteExit int       `json:"exitCode,omitempty"`
	Err        error     `json:"-"`
}

func (e *DeployError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// ExitCode is the process exit status the CLI reports for this error.
func (e *DeployError) ExitCode() int {
	switch e.Kind {
	case KindConfig:
		return 2
	case KindConnection:
		return 3
	case KindExec:
		return 4
	case KindStep:
		return 5
	default:
		return 1
	}
}

func NewConfigError(format string, args ...any) *DeployError {
	return &DeployError{
		Kind:    KindConfig,
		Code:    3001,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapConfigError prefixes a config error with the file it came from. Errors of
// other kinds are turned into config errors.
func WrapConfigError(source string, err error) *DeployError {
	var de *DeployError
	if errors.As(err, &de) && de.Kind == KindConfig {
		return &DeployError{
			Kind:    KindConfig,
			Code:    de.Code,
			Message: fmt.Sprintf("an error was encountered when processing %s", source),
			Details: de.Error(),
			Err:     de,
		}
	}
	return &DeployError{
		Kind:    KindConfig,
		Code:    3001,
		Message: fmt.Sprintf("an error was encountered when processing %s", source),
		Details: err.Error(),
		Err:     err,
	}
}

func NewConnectionError(host string, err error) *DeployError {
	return &DeployError{
		Kind:    KindConnection,
		Code:    1001,
		Message: fmt.Sprintf("a connection error was encountered with %s", host),
		Details: err.Error(),
		Host:    host,
		Err:     err,
	}
}

func NewExecError(step, command, host string, err error) *DeployError {
	return &DeployError{
		Kind:    KindExec,
		Code:    2002,
		Message: fmt.Sprintf("an error occurred while attempting to execute %s on %s", command, host),
		Details: fmt.Sprintf("%s could not be run: %v", step, err),
		Step:    step,
		Command: command,
		Host:    host,
		Err:     err,
	}
}

func NewStepFailure(step, command, host string, exitCode int) *DeployError {
	return &DeployError{
		Kind:       KindStep,
		Code:       2001,
		Message:    fmt.Sprintf("an error occurred while attempting to execute %s on %s", command, host),
		Details:    fmt.Sprintf("%s exited with code %d", step, exitCode),
		Step:       step,
		Command:    command,
		Host:       host,
		RemoteExit: exitCode,
	}
}

// IsKind reports whether err is a DeployError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DeployError
	return errors.As(err, &de) && de.Kind == kind
}
