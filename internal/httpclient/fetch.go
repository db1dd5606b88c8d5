package httpclient

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"go.opentelemetry.io/otel/attribute"
)

type Kind int

const (
	KindArchive Kind = iota
	KindBinary
)

func (kind Kind) String() string {
	if kind == KindArchive {
		return "archive"
	}
	return "binary"
}

type RemoteResource struct {
	URL  string
	Kind Kind
}

const DefaultMaxRedirects = 10

// Fetcher retrieves the full body of a remote resource, following redirects itself.
type Fetcher struct {
	client       Doer
	maxRedirects int
	timeout      time.Duration
	userAgent    string
}

type FetcherOption func(*Fetcher)

func WithMaxRedirects(limit int) FetcherOption {
	return func(fetcher *Fetcher) {
		if limit >= 0 {
			fetcher.maxRedirects = limit
		}
	}
}

func WithTimeout(timeout time.Duration) FetcherOption {
	return func(fetcher *Fetcher) {
		fetcher.timeout = timeout
	}
}

func WithUserAgent(userAgent string) FetcherOption {
	return func(fetcher *Fetcher) {
		fetcher.userAgent = userAgent
	}
}

func NewFetcher(client Doer, opts ...FetcherOption) *Fetcher {
	fetcher := &Fetcher{
		client:       client,
		maxRedirects: DefaultMaxRedirects,
		timeout:      DefaultDownloadTimeout,
	}
	for _, opt := range opts {
		opt(fetcher)
	}
	return fetcher
}

func (fetcher *Fetcher) Fetch(ctx context.Context, resource RemoteResource) ([]byte, error) {
	ctx, span := perf.StartSpan(ctx, "net.fetch",
		perf.WithAttributes(
			attribute.String("url", resource.URL),
			attribute.String("kind", resource.Kind.String()),
		),
	)
	defer span.End()

	ctx, cancel := withDownloadTimeout(ctx, fetcher.timeout)
	defer cancel()

	data, hops, err := fetcher.follow(ctx, resource)
	span.SetAttributes(attribute.Int("redirects", hops))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("bytes", len(data)), attribute.Bool("success", true))
	return data, nil
}

func (fetcher *Fetcher) follow(ctx context.Context, resource RemoteResource) ([]byte, int, error) {
	current := resource.URL
	hops := 0
	for {
		response, err := fetcher.get(ctx, current)
		if err != nil {
			return nil, hops, err
		}

		if isRedirect(response.StatusCode) {
			location := response.Header.Get("Location")
			_ = drainAndClose(response.Body)
			if location == "" {
				return nil, hops, &NetworkError{URL: current, Status: response.StatusCode}
			}
			if hops >= fetcher.maxRedirects {
				return nil, hops, &TooManyRedirectsError{URL: resource.URL, Limit: fetcher.maxRedirects}
			}
			next, err := resolveLocation(current, location)
			if err != nil {
				return nil, hops, &NetworkError{URL: current, Status: response.StatusCode, Err: err}
			}
			current = next
			hops++
			continue
		}

		data, err := readResponse(current, response)
		if err != nil {
			return nil, hops, err
		}
		if resource.Kind == KindArchive {
			if reason, bad := htmlPayload(response.Header.Get("Content-Type"), data); bad {
				return nil, hops, &InvalidPayloadError{URL: current, Reason: reason}
			}
		}
		return data, hops, nil
	}
}

func (fetcher *Fetcher) get(ctx context.Context, target string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	if fetcher.userAgent != "" {
		request.Header.Set("User-Agent", fetcher.userAgent)
	}
	response, err := fetcher.client.Do(request)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: WrapTimeoutError(err)}
	}
	return response, nil
}

func readResponse(target string, response *http.Response) ([]byte, error) {
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil, &NetworkError{URL: target, Status: response.StatusCode}
	}
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &NetworkError{URL: target, Status: response.StatusCode, Err: WrapTimeoutError(err)}
	}
	return data, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(current string, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

var htmlPrefixes = [][]byte{[]byte("<!doctype html"), []byte("<html")}

func htmlPayload(contentType string, data []byte) (string, bool) {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "text/html" {
			return "content type " + mediaType, true
		}
	}
	head := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) > 64 {
		head = head[:64]
	}
	lowered := bytes.ToLower(head)
	for _, prefix := range htmlPrefixes {
		if bytes.HasPrefix(lowered, prefix) {
			return "body is an HTML document", true
		}
	}
	return "", false
}
