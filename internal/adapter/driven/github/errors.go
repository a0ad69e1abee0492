package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// APIError is a classified upstream failure. It matches one of the driven
// error sentinels via errors.Is and still unwraps to the go-github error.
type APIError struct {
	Op         string
	StatusCode int
	// ResetAt is when the upstream quota resets. Only set for quota errors.
	ResetAt time.Time

	kind error
	err  error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.kind, e.StatusCode, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.kind, e.err)
}

func (e *APIError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// classify maps a go-github or transport error onto the driven taxonomy.
// Context cancellation is returned unchanged.
func classify(ctx context.Context, op string, err error, now time.Time) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &APIError{
			Op:         op,
			StatusCode: statusOf(rateErr.Response),
			ResetAt:    rateErr.Rate.Reset.Time,
			kind:       driven.ErrQuotaExhausted,
			err:        err,
		}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &APIError{
			Op:         op,
			StatusCode: statusOf(abuseErr.Response),
			ResetAt:    now.Add(abuseErr.GetRetryAfter()),
			kind:       driven.ErrQuotaExhausted,
			err:        err,
		}
	}

	if isTimeout(err) {
		return &APIError{Op: op, kind: driven.ErrTimeout, err: err}
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		apiErr := &APIError{Op: op, StatusCode: status, err: err}

		switch status {
		case http.StatusNotFound:
			apiErr.kind = driven.ErrNotFound
		case http.StatusUnauthorized:
			apiErr.kind = driven.ErrUnauthorized
		case http.StatusForbidden, http.StatusTooManyRequests:
			if reset, ok := quotaReset(respErr.Response.Header, now); ok {
				apiErr.kind = driven.ErrQuotaExhausted
				apiErr.ResetAt = reset
			} else if status == http.StatusForbidden {
				apiErr.kind = driven.ErrForbidden
			} else {
				apiErr.kind = driven.ErrUpstream
			}
		default:
			apiErr.kind = driven.ErrUpstream
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", op, err)
}

// quotaReset reports whether the headers describe an exhausted quota and,
// if so, when it resets.
func quotaReset(h http.Header, now time.Time) (time.Time, bool) {
	if s := h.Get("Retry-After"); s != "" {
		if seconds, err := strconv.Atoi(s); err == nil && seconds >= 0 {
			return now.Add(time.Duration(seconds) * time.Second), true
		}
	}
	if h.Get("X-RateLimit-Remaining") != "0" {
		return time.Time{}, false
	}
	if s := h.Get("X-RateLimit-Reset"); s != "" {
		if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(unix, 0).UTC(), true
		}
	}
	return now, true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
