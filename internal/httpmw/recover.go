package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/civiclab/ordinance-api/internal/log"
	"github.com/civiclab/ordinance-api/internal/xerrors"
)

// Recover returns middleware that logs panics with a stack and serves a 500
// instead of killing the connection. onPanic, if set, is called after logging
// (e.g. to increment a prometheus counter).
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// http.ErrAbortHandler is the sanctioned way to abort a
				// response; let the server handle it
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = xerrors.Newf("panic: %v", rec)
				}

				base.Error(r.Context(), err, "panic recovered",
					"url.path", r.URL.Path,
					"http.request.method", r.Method,
					"stack", string(debug.Stack()),
				)

				if onPanic != nil {
					onPanic()
				}

				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
