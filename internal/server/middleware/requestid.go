package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID is the header a caller or upstream proxy may use to
// supply its own correlation id; the same header echoes the id back on
// every response.
const HeaderRequestID = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID tags each request with a correlation id and makes it available
// to the rest of the chain through the context. A client-supplied id is
// kept as-is so traces spanning a proxy stay stitched together; when the
// header is absent a UUIDv7 is minted, which keeps ids ordered by arrival.
func RequestID(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	}
	return http.HandlerFunc(fn)
}

// GetRequestID returns the id RequestID stored on the context, or an empty
// string outside the middleware chain.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
