package common

import (
	"context"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the caller-supplied request token.
const IdempotencyHeader = "Idempotency-Key"

// CodeIdempotentReplay is returned for a repeated Idempotency-Key.
const CodeIdempotentReplay = "IDEMPOTENT_REPLAY"

type idemCtxKey struct{}

// Idem provides an Idempotency-Key middleware backed by Redis. Keys are
// scoped by Prefix and the X-Shop-Domain header.
type Idem struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

// IdempotencyKeyFromContext returns the key accepted by Idem, if any.
func IdempotencyKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(idemCtxKey{}).(string); ok {
		return v
	}
	return ""
}

func (i Idem) hashKey(shop, key string) string {
	return i.Prefix + "idem:" + Digest(strings.ToLower(shop), key)
}

// Middleware enforces idempotency semantics for write endpoints. A 4xx reply
// releases the key because nothing was mutated.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), idemCtxKey{}, header)
		if i.R == nil {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		key := i.hashKey(r.Header.Get("X-Shop-Domain"), header)
		ok, err := i.R.SetNX(ctx, key, "locked", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, CodeUnknownError, "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, CodeIdempotentReplay, "duplicate request", nil)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if rec.status >= 400 && rec.status < 500 {
				_ = i.R.Del(context.Background(), key).Err()
				return
			}
			// ensure the key expires even if handler panics
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
