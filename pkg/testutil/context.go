package testutil

import (
	"net/http"

	"bskt/pkg/requestcontext"
)

// WithRequestID stamps a request id on the request context the way the
// request middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
