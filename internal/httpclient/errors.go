package httpclient

import (
	"fmt"
)

// NetworkError is a transport failure or a final response status other than 200.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.Status)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// InvalidPayloadError means an archive was requested but the server answered with an HTML page.
type InvalidPayloadError struct {
	URL    string
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload from %s: %s", e.URL, e.Reason)
}

type TooManyRedirectsError struct {
	URL   string
	Limit int
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("too many redirects fetching %s (limit %d)", e.URL, e.Limit)
}
