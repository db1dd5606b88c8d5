package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// Doer is the single HTTP seam every network caller depends on.
type Doer interface {
	Do(request *http.Request) (*http.Response, error)
}

type RetryConfig struct {
	MaxRetries int
	Interval   time.Duration
}

// RLHTTPClient waits on a rate limiter before each attempt and retries 5xx responses.
// Redirects are returned to the caller untouched.
type RLHTTPClient struct {
	client      *http.Client
	Ratelimiter *rate.Limiter
	RetryConfig *RetryConfig
}

type ClientOption func(*RLHTTPClient)

func WithRetries(maxRetries int, interval time.Duration) ClientOption {
	return func(client *RLHTTPClient) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		client.RetryConfig = &RetryConfig{MaxRetries: maxRetries, Interval: interval}
	}
}

func WithTransport(transport http.RoundTripper) ClientOption {
	return func(client *RLHTTPClient) {
		client.client.Transport = transport
	}
}

func NewRLClient(limiter *rate.Limiter, opts ...ClientOption) *RLHTTPClient {
	client := &RLHTTPClient{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Ratelimiter: limiter,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func NoRetries() *RetryConfig {
	return &RetryConfig{}
}

func (client *RLHTTPClient) Do(request *http.Request) (*http.Response, error) {
	ctx, requestSpan := perf.StartSpan(request.Context(), "net.http.request",
		perf.WithAttributes(
			attribute.String("url", request.URL.String()),
			attribute.String("method", request.Method),
			attribute.String("host", request.URL.Host),
		),
	)
	defer requestSpan.End()
	policy := client.retryConfig()

	var response *http.Response
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		var retry bool
		var err error
		response, retry, err = client.attempt(ctx, request, attempt, policy)
		if err != nil {
			requestSpan.SetAttributes(
				attribute.Bool("success", false),
				attribute.String("error_type", fmt.Sprintf("%T", err)),
			)
			return nil, err
		}
		if !retry {
			break
		}
	}

	requestSpan.SetAttributes(attribute.Bool("success", true))
	if response != nil {
		requestSpan.SetAttributes(attribute.Int("status", response.StatusCode))
	}
	return response, nil
}

func (client *RLHTTPClient) retryConfig() RetryConfig {
	if client.RetryConfig != nil {
		return *client.RetryConfig
	}
	return RetryConfig{
		MaxRetries: 3,
		Interval:   1 * time.Second,
	}
}

func (client *RLHTTPClient) attempt(
	ctx context.Context,
	request *http.Request,
	attempt int,
	policy RetryConfig,
) (*http.Response, bool, error) {
	attemptCtx, attemptSpan := perf.StartSpan(ctx, "net.http.request.attempt",
		perf.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("url", request.URL.String()),
		),
	)
	defer attemptSpan.End()

	if waitErr := client.waitForRateLimit(attemptCtx, attempt, request); waitErr != nil {
		attemptSpan.RecordError(waitErr)
		if IsTimeoutError(waitErr) {
			return nil, false, WrapTimeoutError(waitErr)
		}
		return nil, false, fmt.Errorf("rate limit burst exceeded %w", waitErr)
	}

	response, err := client.client.Do(request.WithContext(attemptCtx))
	if err != nil {
		attemptSpan.RecordError(err)
		return nil, false, WrapTimeoutError(err)
	}

	if shouldRetry(response, attempt, policy) {
		attemptSpan.SetAttributes(
			attribute.Bool("success", false),
			attribute.Int("status", response.StatusCode),
		)
		if drainErr := drainAndClose(response.Body); drainErr != nil {
			attemptSpan.SetAttributes(attribute.String("cleanup_error", drainErr.Error()))
		}
		if err := sleepContext(attemptCtx, policy.Interval); err != nil {
			return nil, false, WrapTimeoutError(err)
		}
		return nil, true, nil
	}

	attemptSpan.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("status", response.StatusCode),
	)
	return response, false, nil
}

func (client *RLHTTPClient) waitForRateLimit(ctx context.Context, attempt int, request *http.Request) error {
	if client.Ratelimiter == nil {
		return nil
	}
	_, waitSpan := perf.StartSpan(ctx, "net.http.ratelimit.wait",
		perf.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("url", request.URL.String()),
		),
	)
	defer waitSpan.End()
	return client.Ratelimiter.Wait(ctx)
}

func shouldRetry(response *http.Response, attempt int, policy RetryConfig) bool {
	return response.StatusCode >= 500 && response.StatusCode < 600 && attempt < policy.MaxRetries
}

func sleepContext(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainAndClose(body io.ReadCloser) error {
	if body == nil {
		return nil
	}

	_, readErr := io.Copy(io.Discard, body)
	closeErr := body.Close()
	return errors.Join(readErr, closeErr)
}
