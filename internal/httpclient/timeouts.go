package httpclient

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
)

const DefaultDownloadTimeout = 5 * time.Minute

type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return i18n.T("error.network_timeout")
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// WrapTimeoutError returns err unchanged unless it is a timeout, in which case the
// (possibly existing) TimeoutError is returned.
func WrapTimeoutError(err error) error {
	if !IsTimeoutError(err) {
		return err
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr
	}
	return &TimeoutError{Err: err}
}

func withDownloadTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
