package handler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"bskt/internal/basket"
	"bskt/internal/basket/handler"
	"bskt/internal/basket/store"
	"bskt/pkg/testutil"
)

const token = "op-token"

type failingRegistry struct{}

func (failingRegistry) Save(context.Context, *basket.Record) error { return errors.New("db down") }
func (failingRegistry) List(context.Context) ([]*basket.Record, error) {
	return nil, errors.New("db down")
}

type HandlerSuite struct {
	suite.Suite
	registry *store.InMemoryRegistry
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.registry = store.NewInMemory()
	s.router = newRouter(s.registry)
}

func newRouter(reg handler.Registry) chi.Router {
	r := chi.NewRouter()
	handler.New(reg, slog.New(slog.NewTextHandler(io.Discard, nil)), token).Register(r)
	return r
}

func (s *HandlerSuite) post(body string, withToken bool) *httptest.ResponseRecorder {
	req := testutil.JSONRequest(s.T(), http.MethodPost, "/baskets", body)
	if withToken {
		req = testutil.WithAdminToken(req, token)
	}
	return testutil.Serve(s.router, req)
}

func (s *HandlerSuite) get(router http.Handler) *httptest.ResponseRecorder {
	return testutil.Serve(router, testutil.JSONRequest(s.T(), http.MethodGet, "/baskets", nil))
}

const validBody = `{
	"name": "Euro Basket",
	"symbol": "EURB",
	"stablecoin": "0x00000000000000000000000000000000000000c2",
	"mintingConsumer": "0x00000000000000000000000000000000000000c1",
	"admin": "0x00000000000000000000000000000000000000aa"
}`

// =============================================================================
// Registration
// =============================================================================

func (s *HandlerSuite) TestRegisterAndList() {
	rec := s.post(validBody, true)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	list := s.get(s.router)
	s.Require().Equal(http.StatusOK, list.Code)

	body := testutil.Decode[struct {
		Baskets []basket.Record `json:"baskets"`
	}](s.T(), list)
	s.Require().Len(body.Baskets, 1)
	s.Equal("EURB", body.Baskets[0].Symbol)
}

func (s *HandlerSuite) TestRegisterRequiresToken() {
	testutil.AssertError(s.T(), s.post(validBody, false), http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestDuplicateSymbolConflicts() {
	s.Require().Equal(http.StatusCreated, s.post(validBody, true).Code)
	testutil.AssertError(s.T(), s.post(validBody, true), http.StatusConflict, "conflict")
}

func (s *HandlerSuite) TestValidation() {
	cases := map[string]string{
		"missing symbol": strings.Replace(validBody, `"EURB"`, `""`, 1),
		"bad address":    strings.Replace(validBody, "0x00000000000000000000000000000000000000c2", "0x12", 1),
		"zero admin":     strings.Replace(validBody, "0x00000000000000000000000000000000000000aa", "0x0000000000000000000000000000000000000000", 1),
		"not json":       "{",
	}
	for name, body := range cases {
		s.Run(name, func() {
			rec := s.post(body, true)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestEmptyListIsArray() {
	rec := s.get(s.router)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"baskets":[]}`, rec.Body.String())
}

func (s *HandlerSuite) TestRegistryFailure() {
	testutil.AssertError(s.T(), s.get(newRouter(failingRegistry{})), http.StatusBadGateway, "unavailable")
}
