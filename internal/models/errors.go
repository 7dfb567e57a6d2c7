package models

import (
	"errors"
	"fmt"
)

var (
	ErrConflict  = errors.New("webhook was modified concurrently")
	ErrNotFound  = errors.New("webhook not found")
	ErrOperation = errors.New("webhook store operation failed")
)

// ValidationError rejects a registration request. Component names the
// check that failed and is echoed to the client.
type ValidationError struct {
	Component string
	Message   string
	Err       error
}

func NewValidationError(component, format string, args ...any) *ValidationError {
	return &ValidationError{Component: component, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RegistrarError wraps a failure raised by a registration hook.
type RegistrarError struct {
	Registrar string
	Err       error
}

func (e *RegistrarError) Error() string {
	return fmt.Sprintf("registrar %q rejected the webhook: %v", e.Registrar, e.Err)
}

func (e *RegistrarError) Unwrap() error { return e.Err }

// DeliveryError describes a failed send. It never reaches Notify callers.
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("delivery failed with status %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
