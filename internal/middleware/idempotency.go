package middleware

import (
	"bytes"
	"context"
	"net/http"

	infraredis "github.com/burgl/checkout/internal/infrastructure/redis"
	"github.com/rs/zerolog/log"
)

const maxIdempotencyBodySize = 1 << 20

// ResponseStore persists responses for replay; implemented by the Redis
// idempotency store.
type ResponseStore interface {
	Get(ctx context.Context, key string) (*infraredis.StoredResponse, error)
	Set(ctx context.Context, key string, resp *infraredis.StoredResponse) error
}

// Idempotency replays the stored response when the storefront retries a
// create with the same Idempotency-Key, so one checkout click cannot mint
// two gateway transactions. Requests without the header pass through.
func Idempotency(store ResponseStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			entry, err := store.Get(r.Context(), key)
			if err == nil && entry != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(entry.Status)
				w.Write(entry.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server-side failures are not replayed; the storefront may retry
			// those for real.
			if rec.statusCode >= 200 && rec.statusCode < 500 && rec.body.Len() <= maxIdempotencyBodySize {
				err := store.Set(r.Context(), key, &infraredis.StoredResponse{
					Status: rec.statusCode,
					Body:   rec.body.Bytes(),
				})
				if err != nil {
					// The response already went out; a retry simply will not
					// replay.
					log.Warn().Err(err).Msg("failed to store idempotency entry")
				}
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
