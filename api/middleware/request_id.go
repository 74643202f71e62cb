package middleware

import (
	"context"
	"maps"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 64
)

type scopeKey struct{}

// requestScope collects identifiers learned while a request is handled, such
// as the order or Stripe event it touched, so the outer middleware can log them.
type requestScope struct {
	mu     sync.Mutex
	fields logger.Fields
}

// Annotate records key on the request's scope. The access log and the
// recoverer include every annotation. Outside a scoped request it is a no-op.
func Annotate(ctx context.Context, key string, value any) {
	scope, ok := ctx.Value(scopeKey{}).(*requestScope)
	if !ok {
		return
	}
	scope.mu.Lock()
	scope.fields[key] = value
	scope.mu.Unlock()
}

func scopeFields(ctx context.Context) logger.Fields {
	out := logger.Fields{}
	scope, ok := ctx.Value(scopeKey{}).(*requestScope)
	if !ok {
		return out
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	maps.Copy(out, scope.fields)
	return out
}

// RequestID tags the request with an id, echoing a well-formed client id and
// minting one otherwise, and opens the request scope used by Annotate.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := context.WithValue(r.Context(), scopeKey{}, &requestScope{fields: logger.Fields{}})
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
