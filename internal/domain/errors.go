package domain

import "errors"

// NetworkError represents a fetch or decode failure against the backend.
// It is terminal for the current refresh cycle; the next cycle is the only recovery path.
type NetworkError struct {
	Op  string // Operation that failed (e.g., "fetch_rates", "decode_flag")
	Err error  // Underlying error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// ConfigError represents an invalid or missing configuration field
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RateError reports a currency pair that could not be resolved against the anchor table
type RateError struct {
	From string
	To   string
	Err  error
}

func (e *RateError) Error() string {
	return "rate " + e.From + "->" + e.To + ": " + e.Err.Error()
}

func (e *RateError) Unwrap() error {
	return e.Err
}

var (
	// ErrRateUnavailable is returned when a currency is absent from the anchor table.
	ErrRateUnavailable = errors.New("rate unavailable")

	// ErrNoSnapshot is returned when no rate table has been installed yet.
	ErrNoSnapshot = errors.New("no rate snapshot")

	// ErrInvalidAmount is returned for negative conversion amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCurrency is returned when a currency code is malformed.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
