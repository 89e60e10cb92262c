package domain

import "errors"

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
	Op        string // Operation that failed (e.g., "dial", "subscribe", "read", "fetch")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
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

var (
	// ErrCatalogUnavailable is returned when the asset catalog could not be fetched
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrAssetNotFound is returned when an asset id is not in the loaded catalog
	ErrAssetNotFound = errors.New("asset not found")

	// ErrInvalidAmount is returned for negative or unparsable amounts
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotMounted is returned when a widget operation runs outside Mount/Unmount
	ErrNotMounted = errors.New("widget not mounted")

	// ErrNoPair is returned when an operation needs both assets selected
	ErrNoPair = errors.New("pair incomplete")

	// ErrPickerClosed is returned when a picker operation runs while no picker is open
	ErrPickerClosed = errors.New("picker closed")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
