package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type Kind int

const (
	KindTimeout Kind = iota + 1
	KindHTTP
	KindNetwork
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "http_error"
	case KindNetwork:
		return "network_error"
	case KindBlocked:
		return "blocked_content"
	default:
		return "unknown"
	}
}

// Error is the failure of a single fetch.
type Error struct {
	Kind      Kind
	Status    int    // KindHTTP only
	Signature string // KindBlocked only
	URL       string
	Strategy  Strategy
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Strategy, e.URL, e.Kind)
	switch e.Kind {
	case KindHTTP:
		fmt.Fprintf(&b, " %d", e.Status)
	case KindBlocked:
		fmt.Fprintf(&b, " (%s)", e.Signature)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ShouldFallback reports whether err warrants retrying the same URL with
// the other strategy. Client errors other than 403 and 429 are final.
func ShouldFallback(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	switch te.Kind {
	case KindBlocked, KindTimeout, KindNetwork:
		return true
	case KindHTTP:
		return te.Status >= 500 || te.Status == http.StatusForbidden || te.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// IsKind reports whether err is a transport error of kind k.
func IsKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}

func httpError(url string, s Strategy, status int) *Error {
	return &Error{Kind: KindHTTP, Status: status, URL: url, Strategy: s}
}

func blockedError(url string, s Strategy, signature string) *Error {
	return &Error{Kind: KindBlocked, Signature: signature, URL: url, Strategy: s}
}

// classify turns a client-side failure into a Timeout or NetworkError.
func classify(url string, s Strategy, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, URL: url, Strategy: s, Err: err}
	}
	return &Error{Kind: KindNetwork, URL: url, Strategy: s, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
