package muzmo

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed is wrapped by every FetchError.
	ErrFetchFailed = errors.New("muzmo: fetch failed")

	// ErrResolutionExhausted is returned when no attempt yielded a media link.
	// Callers should treat it as "not available now".
	ErrResolutionExhausted = errors.New("muzmo: media link not available")
)

// FetchKind tags the reason a request failed.
type FetchKind int

const (
	FetchTransport FetchKind = iota
	FetchTimeout
	FetchStatus
)

func (k FetchKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchStatus:
		return "status"
	default:
		return "transport"
	}
}

// FetchError describes a failed upstream request.
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("muzmo: fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("muzmo: fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("muzmo: fetch %s: %s", e.URL, e.Kind)
}

// Is lets errors.Is match ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ResolutionError reports an exhausted resolution run.
type ResolutionError struct {
	ItemID   string
	Attempts int
	Last     error
}

func (e *ResolutionError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("muzmo: item %s: no media link after %d attempts: %v", e.ItemID, e.Attempts, e.Last)
	}
	return fmt.Sprintf("muzmo: item %s: no media link after %d attempts", e.ItemID, e.Attempts)
}

func (e *ResolutionError) Unwrap() []error {
	if e.Last != nil {
		return []error{ErrResolutionExhausted, e.Last}
	}
	return []error{ErrResolutionExhausted}
}
