package obs

import "context"

// routePatternKey is the context key storing matched route pattern.
type routePatternKey struct{}

type bundleIDKey struct{}

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
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

// WithBundleID tags the context with the bundle a request operates on so
// request logs and spans can carry it.
func WithBundleID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bundleIDKey{}, id)
}

// BundleIDFromContext returns the bundle id stored by WithBundleID.
func BundleIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(bundleIDKey{}).(string); ok {
		return v
	}
	return ""
}
