package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Sentinel errors for classifying provider failures. Callers use errors.Is
// against these to decide fallback behavior.
var (
	ErrNoAPIKey        = errors.New("API key not configured")
	ErrTimeout         = errors.New("request timed out")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrAuth            = errors.New("authentication failed")
	ErrEmptyCompletion = errors.New("no completion returned")
)

// classifyTransportError maps low-level transport failures onto sentinel
// errors so the pipeline can branch on them.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("request failed: %w", err)
}

// IsTimeout reports whether err represents a request timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsRateLimited reports whether err represents rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
