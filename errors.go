package tiercache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBackendUnavailable matches every *BackendError.
	ErrBackendUnavailable = errors.New("tiercache: backend unavailable")
	// ErrOversizedEntry matches every *OversizedError.
	ErrOversizedEntry = errors.New("tiercache: oversized entry")
	// ErrLoaderPanic wraps a panic recovered from a Loader.
	ErrLoaderPanic = errors.New("tiercache: loader panicked")
	// ErrWriteDropped reports a Local write that ristretto did not accept (set buffer
	// full, or the tier is closed). The key keeps its previous state.
	ErrWriteDropped = errors.New("tiercache: local write dropped")
)

// BackendError reports a failed round trip to a tier's backing service.
type BackendError struct {
	Tier Tier
	Op   string
	Key  string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("tiercache: %s %s %q: %v", e.Tier, e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error        { return e.Err }
func (e *BackendError) Is(target error) bool { return target == ErrBackendUnavailable }

// OversizedError reports a key or payload over the configured limit.
// Field is "key" or "payload".
type OversizedError struct {
	Key   string
	Field string
	Size  int
	Limit int
}

func (e *OversizedError) Error() string {
	return fmt.Sprintf("tiercache: %s too large for %q: %d > %d", e.Field, truncate(e.Key, 64), e.Size, e.Limit)
}

func (e *OversizedError) Is(target error) bool { return target == ErrOversizedEntry }

// TierResult is the outcome of removing one key from one tier.
type TierResult struct {
	Tier Tier
	Err  error
}

// InvalidateError reports an invalidation where at least one tier failed.
// Results holds every tier's outcome, including the successful ones.
type InvalidateError struct {
	Key     string
	Results []TierResult
}

func (e *InvalidateError) Failed() []TierResult {
	var out []TierResult
	for _, r := range e.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

func (e *InvalidateError) Error() string {
	failed := e.Failed()
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %v", r.Tier, r.Err))
	}
	return fmt.Sprintf("tiercache: invalidate %q failed on %d of %d tiers: %s",
		e.Key, len(failed), len(e.Results), strings.Join(parts, "; "))
}

func (e *InvalidateError) Unwrap() []error {
	var errs []error
	for _, r := range e.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
