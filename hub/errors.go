package hub

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited marks an HTTP 429 response. The client retries these
// transparently; the sentinel only surfaces once the attempts are spent.
var ErrRateLimited = errors.New("hub: too many requests")

// APIError is returned for any non-2xx response that is not retried away.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub: %s: %s", e.Status, e.Body)
}

// IsRateLimited reports whether err stems from an HTTP 429 response.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
