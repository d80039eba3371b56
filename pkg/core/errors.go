package core

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every ConfigError.
var ErrConfig = errors.New("invalid configuration")

// ConfigError represents a configuration error
type ConfigError struct {
	msg string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfig, e.msg)
}

func (e ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// ErrInvalidConfig creates a new configuration error
func ErrInvalidConfig(msg string) error {
	return ConfigError{msg: msg}
}

// ErrInvalidConfigf creates a new formatted configuration error
func ErrInvalidConfigf(format string, args ...interface{}) error {
	return ConfigError{msg: fmt.Sprintf(format, args...)}
}
