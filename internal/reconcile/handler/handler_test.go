package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"bskt/internal/reconcile"
	"bskt/internal/reconcile/handler"
	"bskt/internal/reconcile/store"
	"bskt/pkg/testutil"
)

const token = "op-token"

type listResponse struct {
	Entries []reconcile.Entry `json:"entries"`
}

type HandlerSuite struct {
	suite.Suite
	store  *store.InMemoryStore
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.Require().NoError(s.store.Record(context.Background(), &reconcile.Entry{
		TransactionID: "TX-1",
		Kind:          reconcile.KindBridgeIncomplete,
		Stage:         "bridge",
		Detail:        "bridge reverted",
		CreatedAt:     time.Now(),
	}))
	s.router = chi.NewRouter()
	handler.New(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)), token).Register(s.router)
}

func (s *HandlerSuite) list(query string) listResponse {
	req := testutil.WithAdminToken(testutil.JSONRequest(s.T(), http.MethodGet, "/reconciliation"+query, nil), token)
	rec := testutil.Serve(s.router, req)
	s.Require().Equal(http.StatusOK, rec.Code)
	return testutil.Decode[listResponse](s.T(), rec)
}

func (s *HandlerSuite) resolve(txID string, body any) *http.Request {
	req := testutil.JSONRequest(s.T(), http.MethodPost, "/reconciliation/"+txID+"/resolve", body)
	return testutil.WithRequestID(testutil.WithAdminToken(req, token), "req-"+txID)
}

// =============================================================================
// Access
// =============================================================================

func (s *HandlerSuite) TestListRequiresToken() {
	rec := testutil.Serve(s.router, testutil.JSONRequest(s.T(), http.MethodGet, "/reconciliation", nil))
	testutil.AssertError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
}

// =============================================================================
// List and resolve
// =============================================================================

func (s *HandlerSuite) TestListAndResolve() {
	s.Require().Len(s.list("").Entries, 1)

	rec := testutil.Serve(s.router, s.resolve("TX-1", map[string]string{"resolution": "refunded"}))
	s.Require().Equal(http.StatusOK, rec.Code)
	entry := testutil.Decode[reconcile.Entry](s.T(), rec)
	s.Equal("refunded", entry.Resolution)
	s.True(entry.Resolved())

	rec = testutil.Serve(s.router, s.resolve("TX-1", map[string]string{"resolution": "again"}))
	testutil.AssertError(s.T(), rec, http.StatusConflict, "conflict")

	s.Empty(s.list("").Entries)
	s.Len(s.list("?all=true").Entries, 1)
}

func (s *HandlerSuite) TestResolveErrors() {
	s.Run("unknown transaction", func() {
		rec := testutil.Serve(s.router, s.resolve("TX-404", map[string]string{"resolution": "x"}))
		testutil.AssertError(s.T(), rec, http.StatusNotFound, "not_found")
	})
	s.Run("blank resolution", func() {
		rec := testutil.Serve(s.router, s.resolve("TX-1", map[string]string{"resolution": "  "}))
		testutil.AssertError(s.T(), rec, http.StatusBadRequest, "validation_error")
	})
	s.Run("malformed body", func() {
		rec := testutil.Serve(s.router, s.resolve("TX-1", `{"resolution":`))
		testutil.AssertError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})
}
