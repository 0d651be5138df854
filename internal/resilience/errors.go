package resilience

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class is the retry category of a failed call.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota
	// ClassPermanent errors are not worth retrying.
	ClassPermanent
	// ClassTransient errors may succeed on a plain retry.
	ClassTransient
	// ClassRateLimited errors signal provider or quota overload and call
	// for a longer backoff.
	ClassRateLimited
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "permanent"
	}
}

// TransientError marks an error as safe to retry. StatusCode is the HTTP
// status of the failed response, or 0. RetryAfter carries the server's
// requested wait, when it sent one.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RetryAfter returns the wait requested by the first TransientError in the
// chain, or 0.
func RetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// ParseRetryAfter reads a Retry-After header value given in seconds or as an
// HTTP date relative to now. Unparseable or past values yield 0.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// HTTPStatusError is implemented by client errors that carry the HTTP status
// of a failed response.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// Matched case-insensitively against error text when the chain carries no
// structured status.
var (
	rateLimitPhrases = []string{
		"rate limit",
		"429",
		"too many requests",
		"resource_exhausted",
	}
	transientPhrases = []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
)

// Classify sorts err into a retry category. Rate limiting wins over every
// other signal, so a 429 is never reported as merely transient.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	code := httpStatus(err)
	grpcCode := codes.OK
	if st, ok := status.FromError(err); ok {
		grpcCode = st.Code()
	}
	msg := strings.ToLower(err.Error())

	if code == http.StatusTooManyRequests || grpcCode == codes.ResourceExhausted || containsAny(msg, rateLimitPhrases) {
		return ClassRateLimited
	}

	var te *TransientError
	if errors.As(err, &te) || IsTransientHTTPStatus(code) || grpcCode == codes.Unavailable {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return ClassTransient
	}
	if containsAny(msg, transientPhrases) {
		return ClassTransient
	}
	return ClassPermanent
}

// IsTransient reports whether err is worth retrying at all. Rate-limited
// errors are transient too.
func IsTransient(err error) bool {
	c := Classify(err)
	return c == ClassTransient || c == ClassRateLimited
}

// IsRateLimited reports whether err signals provider overload: a gRPC
// RESOURCE_EXHAUSTED status, an HTTP 429 anywhere in the chain, or error
// text matching a known rate-limit phrase.
func IsRateLimited(err error) bool {
	return Classify(err) == ClassRateLimited
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// httpStatus returns the first HTTP status found in the chain, or 0.
func httpStatus(err error) int {
	var te *TransientError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return te.StatusCode
	}
	var he HTTPStatusError
	if errors.As(err, &he) {
		return he.HTTPStatus()
	}
	return 0
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
