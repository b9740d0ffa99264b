package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 response and logs it with a stack
// trace. http.ErrAbortHandler is re-raised so the server aborts the response.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zctx.From(r.Context()).Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)
				w.Header().Set("Connection", "close")
				WriteError(w, http.StatusInternalServerError, "internal error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
