package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// Probe pipeline errors
	ErrEmptyConfiguration = errors.New("no raw configuration available")
	ErrConfigurationBuild = errors.New("failed to build configuration")
	ErrEncoding           = errors.New("encoding error")
	ErrFileWrite          = errors.New("failed to stage configuration file")
	ErrBase64Decode       = errors.New("invalid base64 response")
	ErrMalformedResponse  = errors.New("malformed probe response")
	ErrProbeUnsuccessful  = errors.New("probe unsuccessful")
	ErrEngineUnavailable  = errors.New("probe engine unavailable")
	ErrTunnelNotConnected = errors.New("tunnel is not connected")

	// Core errors
	ErrCoreNotRunning     = errors.New("core is not running")
	ErrCoreAlreadyRunning = errors.New("core is already running")
	ErrCoreNotFound       = errors.New("core binary not found")

	// Config errors
	ErrProtocolUnsupported = errors.New("protocol not supported")
	ErrURIInvalid          = errors.New("invalid URI")

	// Subscription errors
	ErrSubscriptionFetchFailed = errors.New("failed to fetch subscription")
	ErrSubscriptionEmpty       = errors.New("subscription is empty")

	// Storage errors
	ErrSettingNotFound = errors.New("setting not found")

	// Connection errors
	ErrNoActiveConnection = errors.New("no active connection")
)

// ProbeError ties a pipeline failure to the stage that produced it.
type ProbeError struct {
	Stage string
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Stage, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// UnsuccessfulError carries the engine's own explanation for a negative result.
type UnsuccessfulError struct {
	Reason string
}

func (e *UnsuccessfulError) Error() string {
	if e.Reason == "" {
		return ErrProbeUnsuccessful.Error()
	}
	return fmt.Sprintf("%v: %s", ErrProbeUnsuccessful, e.Reason)
}

func (e *UnsuccessfulError) Unwrap() error {
	return ErrProbeUnsuccessful
}

// SubscriptionError represents a subscription-related error
type SubscriptionError struct {
	URL string
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription '%s': %v", e.URL, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// CoreError represents a core-related error
type CoreError struct {
	CoreType string
	Err      error
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("%s core: %v", e.CoreType, e.Err)
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// IsNegativeResult reports whether err is a legitimate negative probe
// result rather than a pipeline fault.
func IsNegativeResult(err error) bool {
	return errors.Is(err, ErrProbeUnsuccessful)
}
