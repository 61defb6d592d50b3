package archive

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureClass partitions fetch failures by how the scheduler must
// treat them.
type FailureClass string

const (
	// FailureTransient marks timeouts and momentary network errors,
	// eligible for the single bounded retry.
	FailureTransient FailureClass = "transient"
	// FailurePermanent marks gone content and malformed pages,
	// reported immediately without retry.
	FailurePermanent FailureClass = "permanent"
	// FailureAuthRequired marks premium content without a usable
	// login session.
	FailureAuthRequired FailureClass = "auth_required"
)

// FetchError is a classified failure for one post URL.
type FetchError struct {
	URL   string
	Class FailureClass
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Class, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with a class for url.
func NewFetchError(url string, class FailureClass, err error) *FetchError {
	return &FetchError{URL: url, Class: class, Err: err}
}

// ClassOf extracts the failure class from err. Untyped errors are
// classified conservatively: network timeouts are transient, context
// cancellation is permanent (the run is ending), everything else is
// permanent.
func ClassOf(err error) FailureClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	if errors.Is(err, context.Canceled) {
		return FailurePermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	return FailurePermanent
}

// ConfigError is fatal before any fetching: a corrupt state file or an
// invalid option combination.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DiscoveryError isolates an unreachable or unparseable content index
// to its target; the run proceeds to other targets.
type DiscoveryError struct {
	Target string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Target, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
