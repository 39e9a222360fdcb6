package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "submit", "cancel")
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ExchangeError is a request the exchange received and refused.
type ExchangeError struct {
	Op      string
	Code    int64
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s: exchange rejected (code %d): %s", e.Op, e.Code, e.Message)
}

// IsRetriable is false: resending the same request gets the same answer.
func (e *ExchangeError) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// StartupError aborts the process before trading begins.
type StartupError struct {
	Stage string // "config", "journal", "market", "balances", "open_orders", "streams"
	Err   error
}

func (e *StartupError) Error() string {
	return "startup failed at " + e.Stage + ": " + e.Err.Error()
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

var (
	// ErrSymbolNotFound is returned when the exchange does not list the configured pair.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrNoEncodedExit is returned when a tagged client id carries no exit plan.
	ErrNoEncodedExit = errors.New("client id carries no exit plan")

	// ErrForeignOrder is returned for client ids without the bot's marker.
	ErrForeignOrder = errors.New("order not placed by this bot")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
