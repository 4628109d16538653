// Package requestcontext holds request-scoped values that services read
// without importing net/http. Middleware sets them; tests set them directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	keyRequestID key = iota
	keyClientIP
	keyTime
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

func RequestID(ctx context.Context) string {
	id, _ := value[string](ctx, keyRequestID)
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// ClientIP is the caller address resolved by the client metadata middleware.
func ClientIP(ctx context.Context) string {
	ip, _ := value[string](ctx, keyClientIP)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// Now is the instant pinned on ctx, or the wall clock when none is. Detection
// scans pin one instant so every breach in a pass is measured against it.
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, keyTime); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyTime, t)
}
