package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the stream resolver
var (
	// ErrInvalidPlaylist is returned when fetched playlist content does
	// not start with the HLS header marker.
	ErrInvalidPlaylist = errors.New("invalid M3U8 playlist content")

	// ErrFetchExhausted is returned when a playlist fetch fails after
	// all retry attempts.
	ErrFetchExhausted = errors.New("fetch failed after all retry attempts")

	// ErrServiceUnavailable marks an upstream 503; the catalog client
	// matches on it to trigger the reduced-field fallback endpoint.
	ErrServiceUnavailable = errors.New("upstream service unavailable")
)

// PlanningError is fatal for a task: the curriculum was malformed or
// produced no downloadable items.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s", e.Reason)
}

// TransferError is a network or HTTP failure during byte copy. It is
// retried by the engine up to the configured bound.
type TransferError struct {
	URL      string
	Path     string
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed for %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ProtocolError is an unparseable upstream payload: invalid playlist
// content, missing resolution attributes, or an unknown curriculum
// shape. Fatal only for the element it describes.
type ProtocolError struct {
	What string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.What)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
