// Package modelclient provides the HTTP client for the external top-3
// probability service.
package modelclient

import "errors"

var (
	// ErrServiceUnavailable indicates the model service is unreachable
	ErrServiceUnavailable = errors.New("model service unavailable")

	// ErrCircuitOpen indicates calls are short-circuited after repeated failures
	ErrCircuitOpen = errors.New("model service circuit open")

	// ErrInvalidResponse indicates the prediction response is malformed
	ErrInvalidResponse = errors.New("invalid response from model service")
)
