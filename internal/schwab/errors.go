package schwab

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a dispatch is attempted for a session
// that has no TokenBundle. The relay maps it to HTTP 401.
var ErrNotConnected = errors.New("Schwab session not connected.")

// ConfigError indicates missing OAuth credentials. The relay maps it to
// HTTP 503: without credentials no network call is even attempted.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "Schwab OAuth is not configured. Missing SCHWAB_CLIENT_ID, SCHWAB_CLIENT_SECRET, or SCHWAB_REDIRECT_URI."
}

// UpstreamAuthError carries a non-2xx response from the OAuth token
// endpoint, preserving the upstream status and payload for diagnostics.
type UpstreamAuthError struct {
	Status  int
	Message string
	Payload json.RawMessage
}

func (e *UpstreamAuthError) Error() string {
	return e.Message
}

// TransportError wraps a network-level failure of an upstream call. Timeout
// distinguishes an exceeded deadline from other transport failures.
type TransportError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("Schwab %s timed out", e.Op)
	}
	return fmt.Sprintf("Schwab %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
