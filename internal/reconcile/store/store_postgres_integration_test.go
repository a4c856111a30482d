//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bskt/internal/platform/postgres"
	"bskt/internal/reconcile"
	"bskt/internal/reconcile/store"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
	"bskt/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	pool, err := postgres.OpenPool(ctx, s.postgres.DSN)
	s.Require().NoError(err)
	s.T().Cleanup(pool.Close)
	s.store = store.NewPostgres(pool)
	s.Require().NoError(s.store.Migrate(ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "reconciliation_entries"))
}

func (s *PostgresStoreSuite) TestLifecycle() {
	ctx := context.Background()
	e := &reconcile.Entry{
		TransactionID: "TX-1",
		Kind:          reconcile.KindBridgeIncomplete,
		Stage:         "bridge",
		Detail:        "PolicyRunRejected",
		MintTx:        id.TxHash("0xabc"),
		Amount:        "50000",
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.store.Record(ctx, e))
	s.ErrorIs(s.store.Record(ctx, e), sentinel.ErrConflict)

	open, err := s.store.List(ctx, false)
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(id.TxHash("0xabc"), open[0].MintTx)
	s.False(open[0].Resolved())

	resolved, err := s.store.Resolve(ctx, "TX-1", "refunded", time.Now().UTC())
	s.Require().NoError(err)
	s.True(resolved.Resolved())
	s.Equal("refunded", resolved.Resolution)

	_, err = s.store.Resolve(ctx, "TX-1", "again", time.Now().UTC())
	s.ErrorIs(err, sentinel.ErrConflict)
	_, err = s.store.Resolve(ctx, "TX-missing", "", time.Now().UTC())
	s.ErrorIs(err, sentinel.ErrNotFound)

	open, err = s.store.List(ctx, false)
	s.Require().NoError(err)
	s.Empty(open)
}
