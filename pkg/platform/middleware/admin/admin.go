// Package admin guards operator routes: basket registration, reconciliation
// and the mock bank's reserve update.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/httputil"
	request "bskt/pkg/platform/middleware/request"
)

// Header carries the operator token.
const Header = "X-Admin-Token"

var errTokenRequired = dErrors.New(dErrors.CodeUnauthorized, "admin token required")

// RequireAdminToken rejects requests whose Header does not match expected.
// An empty expected token rejects every request.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(Header)
			if len(want) > 0 && subtle.ConstantTimeCompare([]byte(got), want) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			logger.WarnContext(ctx, "admin request rejected",
				"request_id", request.GetRequestID(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"token_present", got != "",
			)
			httputil.WriteError(w, errTokenRequired)
		})
	}
}
