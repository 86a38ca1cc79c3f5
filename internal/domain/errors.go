package domain

import (
	"errors"
	"fmt"
)

var (
	ErrHistoryNotFound  = errors.New("field history not found")
	ErrEntityNotFound   = errors.New("entity not found")
	ErrInvalidEntityID  = errors.New("invalid entity id")
	ErrUnregisteredType = errors.New("entity type is not registered for field history")
	ErrUntrackedField   = errors.New("field is not tracked")
	ErrInvalidRecord    = errors.New("invalid field history record")
)

// ConfigurationError reports a tracking setup problem. It is raised at
// registration or startup, never from a write.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return "field history configuration: " + e.Reason
	}
	return fmt.Sprintf("field history configuration: %s: %s", e.Op, e.Reason)
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(op, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
