package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bskt/internal/basket"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
)

type InMemoryRegistrySuite struct {
	suite.Suite
	registry *InMemoryRegistry
	ctx      context.Context
}

func TestInMemoryRegistrySuite(t *testing.T) {
	suite.Run(t, new(InMemoryRegistrySuite))
}

func (s *InMemoryRegistrySuite) SetupTest() {
	s.registry = NewInMemory()
	s.ctx = context.Background()
}

func newRecord(symbol string) *basket.Record {
	return &basket.Record{
		Name:                symbol + " basket",
		Symbol:              symbol,
		AssetContract:       id.MustParseAddress("0x00000000000000000000000000000000000000a1"),
		EnforcementConsumer: id.MustParseAddress("0x00000000000000000000000000000000000000a2"),
		Admin:               id.MustParseAddress("0x00000000000000000000000000000000000000a3"),
		CreationTxHash:      id.TxHash("0x01"),
		CreatedAt:           time.Now(),
	}
}

func (s *InMemoryRegistrySuite) TestSaveAndFind() {
	s.Require().NoError(s.registry.Save(s.ctx, newRecord("EURB")))

	rec, err := s.registry.FindBySymbol(s.ctx, "eurb")
	s.Require().NoError(err)
	s.Equal("EURB", rec.Symbol)

	_, err = s.registry.FindBySymbol(s.ctx, "GBPB")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryRegistrySuite) TestDuplicateSymbolConflicts() {
	s.Require().NoError(s.registry.Save(s.ctx, newRecord("EURB")))
	err := s.registry.Save(s.ctx, newRecord("eurb"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryRegistrySuite) TestListPreservesOrderAndCopies() {
	s.Require().NoError(s.registry.Save(s.ctx, newRecord("AAA")))
	s.Require().NoError(s.registry.Save(s.ctx, newRecord("BBB")))

	list, err := s.registry.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("AAA", list[0].Symbol)
	s.Equal("BBB", list[1].Symbol)

	list[0].Name = "mutated"
	again, err := s.registry.List(s.ctx)
	s.Require().NoError(err)
	s.Equal("AAA basket", again[0].Name)
}

func (s *InMemoryRegistrySuite) TestSaveNil() {
	s.Error(s.registry.Save(s.ctx, nil))
}
