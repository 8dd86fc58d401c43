package postgres

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Verify that both pgxpool.Pool and pgx.Tx satisfy the platform Querier, so
// every store in this package can run against the pool or inside the
// dispatch transaction.
var (
	_ domain.Querier = (*pgxpool.Pool)(nil)
	_ domain.Querier = (pgx.Tx)(nil)
)
