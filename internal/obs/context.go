package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type routePatternKey struct{}

type annotationsKey struct{}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(routePatternKey{}).(string)
	return v
}

type annotations struct {
	mu     sync.Mutex
	keys   []string
	values map[string]string
}

// WithAnnotations installs a holder for request log fields set by handlers.
// An existing holder is kept.
func WithAnnotations(ctx context.Context) context.Context {
	if _, ok := ctx.Value(annotationsKey{}).(*annotations); ok {
		return ctx
	}
	return context.WithValue(ctx, annotationsKey{}, &annotations{values: map[string]string{}})
}

// Annotate attaches a field to the request log line and the active span.
func Annotate(ctx context.Context, key, value string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("quote."+key, value))
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok || key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, seen := a.values[key]; !seen {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Annotations returns the fields recorded on ctx in insertion order.
func Annotations(ctx context.Context) [][2]string {
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][2]string, 0, len(a.keys))
	for _, k := range a.keys {
		out = append(out, [2]string{k, a.values[k]})
	}
	return out
}
