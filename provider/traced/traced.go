// Package traced decorates a provider.Backend so that every store operation
// runs inside an OpenTelemetry span named "twotier.store.<op>".
//
// Spans carry the tier label, the cache name and, for keyed operations, the
// key and whether it was a hit. Store errors are recorded on the span and
// returned unchanged.
package traced

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pr "github.com/unkn0wn-root/twotier/provider"
)

const instrumentation = "github.com/unkn0wn-root/twotier/provider/traced"

var (
	attrTier  = attribute.Key("twotier.tier")
	attrCache = attribute.Key("twotier.cache")
	attrKey   = attribute.Key("twotier.key")
	attrHit   = attribute.Key("twotier.hit")
	attrBytes = attribute.Key("twotier.bytes")
)

type Options struct {
	// Tier labels the spans ("shared" or "local").
	Tier string
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// OmitKeys drops the key attribute for callers whose keys carry user data.
	OmitKeys bool
}

type Backend struct {
	next   pr.Backend
	tracer trace.Tracer
	opts   Options
}

var _ pr.Backend = (*Backend)(nil)

// Wrap returns next instrumented with spans.
func Wrap(next pr.Backend, opts Options) *Backend {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Backend{next: next, tracer: tp.Tracer(instrumentation), opts: opts}
}

func (b *Backend) Open(name string) (pr.Store, error) {
	s, err := b.next.Open(name)
	if err != nil {
		return nil, err
	}
	return &Store{next: s, b: b}, nil
}

func (b *Backend) Names(ctx context.Context) ([]string, error) {
	ctx, span := b.start(ctx, "names", "")
	defer span.End()
	names, err := b.next.Names(ctx)
	return names, record(span, err)
}

func (b *Backend) Close(ctx context.Context) error {
	return b.next.Close(ctx)
}

// Unwrap returns the decorated backend.
func (b *Backend) Unwrap() pr.Backend { return b.next }

func (b *Backend) start(ctx context.Context, op, cache string) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, 2)
	if b.opts.Tier != "" {
		attrs = append(attrs, attrTier.String(b.opts.Tier))
	}
	if cache != "" {
		attrs = append(attrs, attrCache.String(cache))
	}
	return b.tracer.Start(ctx, "twotier.store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

type Store struct {
	next pr.Store
	b    *Backend
}

var (
	_ pr.Store   = (*Store)(nil)
	_ pr.Swapper = (*Store)(nil)
)

func (s *Store) Name() string { return s.next.Name() }
func (s *Store) Native() any  { return s.next.Native() }

// Unwrap returns the decorated store.
func (s *Store) Unwrap() pr.Store { return s.next }

func (s *Store) start(ctx context.Context, op, key string) (context.Context, trace.Span) {
	ctx, span := s.b.start(ctx, op, s.next.Name())
	if key != "" && !s.b.opts.OmitKeys {
		span.SetAttributes(attrKey.String(key))
	}
	return ctx, span
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := s.start(ctx, "get", key)
	defer span.End()
	v, ok, err := s.next.Get(ctx, key)
	span.SetAttributes(attrHit.Bool(ok), attrBytes.Int(len(v)))
	return v, ok, record(span, err)
}

func (s *Store) GetOrLoad(ctx context.Context, key string, load pr.LoadFunc) ([]byte, error) {
	ctx, span := s.start(ctx, "get_or_load", key)
	defer span.End()
	loaded := false
	v, err := s.next.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		loaded = true
		return load(ctx)
	})
	span.SetAttributes(attrHit.Bool(!loaded && err == nil), attrBytes.Int(len(v)))
	return v, record(span, err)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := s.start(ctx, "put", key)
	defer span.End()
	span.SetAttributes(attrBytes.Int(len(value)))
	return record(span, s.next.Put(ctx, key, value))
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	ctx, span := s.start(ctx, "put_if_absent", key)
	defer span.End()
	prev, loaded, err := s.next.PutIfAbsent(ctx, key, value)
	span.SetAttributes(attrHit.Bool(loaded))
	return prev, loaded, record(span, err)
}

func (s *Store) Evict(ctx context.Context, key string) error {
	ctx, span := s.start(ctx, "evict", key)
	defer span.End()
	return record(span, s.next.Evict(ctx, key))
}

func (s *Store) Clear(ctx context.Context) error {
	ctx, span := s.start(ctx, "clear", "")
	defer span.End()
	return record(span, s.next.Clear(ctx))
}

// CompareAndSwap forwards to the wrapped store. When it cannot swap, the
// call reports ErrNoSwap so callers can fall back.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old []byte, oldExists bool, next []byte) (bool, error) {
	sw, ok := s.next.(pr.Swapper)
	if !ok {
		return false, pr.ErrNoSwap
	}
	ctx, span := s.start(ctx, "compare_and_swap", key)
	defer span.End()
	swapped, err := sw.CompareAndSwap(ctx, key, old, oldExists, next)
	span.SetAttributes(attribute.Bool("twotier.swapped", swapped))
	return swapped, record(span, err)
}

func record(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
