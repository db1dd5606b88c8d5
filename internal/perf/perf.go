// Package perf records pipeline timing as OpenTelemetry spans kept in memory.
package perf

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/meza/minecraft-modpack-launcher"

var ErrNotInitialized = errors.New("perf: tracing is not initialized")

type Config struct {
	Enabled bool
}

var (
	stateMu  sync.RWMutex
	provider *sdktrace.TracerProvider
	exporter *spanExporter
)

// Init installs an in-memory tracer provider. Calling Init while a provider
// is active is a no-op.
func Init(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	if provider != nil {
		return nil
	}

	exporter = newSpanExporter()
	provider = sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return nil
}

func Enabled() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return provider != nil
}

// Reset drops the provider and every recorded span.
func Reset() {
	stateMu.Lock()
	current := provider
	provider = nil
	exporter = nil
	stateMu.Unlock()

	if current != nil {
		_ = current.Shutdown(context.Background())
	}
}

func Shutdown(ctx context.Context) error {
	stateMu.RLock()
	current := provider
	stateMu.RUnlock()
	if current == nil {
		return nil
	}
	return current.ForceFlush(ctx)
}

type Span struct {
	span trace.Span
}

type SpanOption func(*spanOptions)

type spanOptions struct {
	attributes []attribute.KeyValue
}

func WithAttributes(attributes ...attribute.KeyValue) SpanOption {
	return func(options *spanOptions) {
		options.attributes = append(options.attributes, attributes...)
	}
}

func WithEventAttributes(attributes ...attribute.KeyValue) trace.EventOption {
	return trace.WithAttributes(attributes...)
}

func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	options := spanOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer().Start(ctx, name, trace.WithAttributes(options.attributes...))
	return ctx, &Span{span: span}
}

func (span *Span) End() {
	if span == nil || span.span == nil {
		return
	}
	span.span.End()
}

func (span *Span) SetAttributes(attributes ...attribute.KeyValue) {
	if span == nil || span.span == nil {
		return
	}
	span.span.SetAttributes(attributes...)
}

func (span *Span) AddEvent(name string, opts ...trace.EventOption) {
	if span == nil || span.span == nil {
		return
	}
	span.span.AddEvent(name, opts...)
}

// RecordError marks the span failed and attaches the error type.
func (span *Span) RecordError(err error) {
	if span == nil || span.span == nil || err == nil {
		return
	}
	span.span.RecordError(err)
	span.span.SetStatus(codes.Error, err.Error())
	span.span.SetAttributes(attribute.Bool("success", false))
}

func SnapshotSpans() ([]sdktrace.ReadOnlySpan, error) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	if exporter == nil {
		return nil, ErrNotInitialized
	}
	return exporter.Snapshot(), nil
}

func tracer() trace.Tracer {
	stateMu.RLock()
	defer stateMu.RUnlock()
	if provider == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return provider.Tracer(tracerName)
}
