package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/flowdesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500, which Stripe retries, and logs
// it with whatever order or event the request had annotated.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					fields := scopeFields(ctx)
					fields["method"], fields["path"] = r.Method, r.URL.Path
					logg.Error(logg.WithFields(ctx, fields), "http.panic", err)
				}
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
