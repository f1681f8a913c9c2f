package fetch

import (
	"fmt"
	"time"
)

// RateLimitedError reports a 429 response after the single
// Retry-After-honoring retry was already spent.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

// AntiBotError reports a blocked response after all retries were
// exhausted.
type AntiBotError struct {
	Pattern string
	Status  int
}

func (e *AntiBotError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("anti-bot block detected (status %d, pattern %q)", e.Status, e.Pattern)
	}
	return fmt.Sprintf("anti-bot block detected (status %d)", e.Status)
}

// DecodeError reports a response body no codec could decode to text.
type DecodeError struct {
	Encoding string
	BodyLen  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode response body (encoding %q, %d bytes)", e.Encoding, e.BodyLen)
}
