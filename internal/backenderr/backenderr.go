// Package backenderr maps transport and HTTP failures of remote backends onto
// the core error taxonomy so retry and reporting can rely on errors.Is.
package backenderr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/hupe1980/agentcore/core"
)

// Classify wraps err with core.ErrBackendUnreachable when it represents a
// transient failure (network error, timeout, 429, 5xx). status is the HTTP
// status when known, 0 otherwise. Other errors are returned wrapped with
// base only.
func Classify(base error, status int, err error) error {
	if err == nil {
		return nil
	}
	if isTransient(status, err) {
		return fmt.Errorf("%w: %w: %v", base, core.ErrBackendUnreachable, err)
	}
	return fmt.Errorf("%w: %v", base, err)
}

func isTransient(status int, err error) bool {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500 && status < 600:
		return true
	case status != 0:
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"connection refused", "connection reset", "no such host", "network is unreachable", "i/o timeout", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
