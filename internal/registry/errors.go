package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// RegistryError classifies academic-registry call failures as
// transient/permanent. Transient errors are safe for an outer layer to
// retry; the batch orchestrator issues a single call per item either way.
type RegistryError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *RegistryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "registry error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *RegistryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a lookup failure could succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var registryErr *RegistryError
	if errors.As(err, &registryErr) {
		return registryErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
