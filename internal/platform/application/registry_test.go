package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/application"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

func namedHandler(name string) domain.Handler {
	return domain.HandlerFunc{
		HandlerName: name,
		Fn: func(ctx context.Context, tenantID types.TenantID, payload any, q domain.Querier) error {
			return nil
		},
	}
}

type RegistrySuite struct {
	suite.Suite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) TestRegisterAndLookup() {
	r := application.NewRegistry()

	s.Require().NoError(r.Register(domain.KindSaleRecorded, namedHandler("stock")))
	s.Require().NoError(r.Register(domain.KindSaleRecorded, namedHandler("sales")))
	s.Require().NoError(r.Register(domain.KindQuoteConverted, namedHandler("sales")))

	s.Run("handlers keep registration order", func() {
		handlers := r.HandlersFor(domain.KindSaleRecorded)
		s.Require().Len(handlers, 2)
		s.Equal("stock", handlers[0].Name())
		s.Equal("sales", handlers[1].Name())
	})

	s.Run("kinds are sorted", func() {
		s.Equal([]domain.EventKind{domain.KindQuoteConverted, domain.KindSaleRecorded}, r.Kinds())
	})

	s.Run("unregistered kind has no handlers", func() {
		s.Empty(r.HandlersFor(domain.KindQuoteCreated))
	})
}

func (s *RegistrySuite) TestRegisterRejections() {
	r := application.NewRegistry()
	s.Require().NoError(r.Register(domain.KindSaleRecorded, namedHandler("stock")))

	s.Run("duplicate name for one kind", func() {
		err := r.Register(domain.KindSaleRecorded, namedHandler("stock"))
		s.Error(err)
	})

	s.Run("same name on another kind is fine", func() {
		s.NoError(r.Register(domain.KindQuoteConverted, namedHandler("stock")))
	})

	s.Run("unknown kind", func() {
		err := r.Register(domain.EventKind("warehouse_moved"), namedHandler("x"))
		s.ErrorIs(err, domain.ErrUnknownKind)
	})

	s.Run("frozen registry rejects registration", func() {
		r.Freeze()
		err := r.Register(domain.KindQuoteCreated, namedHandler("late"))
		s.ErrorIs(err, domain.ErrRegistryFrozen)
	})
}
