// Package testutil holds helpers shared by handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bskt/pkg/platform/middleware/admin"
)

// JSONRequest builds a request with v encoded as the body. A string is sent
// verbatim so tests can post malformed JSON; nil sends no body.
func JSONRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	var body io.Reader
	switch b := v.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err, "marshal request body")
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WithAdminToken sets the operator header.
func WithAdminToken(req *http.Request, token string) *http.Request {
	req.Header.Set(admin.Header, token)
	return req
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals the recorded body into T.
func Decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "decode body: %s", rec.Body.String())
	return out
}

// ErrorBody is the envelope written for every failed request.
type ErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// AssertError checks the status and the error code of a failed response.
func AssertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, "status; body: %s", rec.Body.String())
	assert.Equal(t, code, Decode[ErrorBody](t, rec).Error)
}
