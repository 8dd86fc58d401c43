// Package stock maintains per-tenant stock levels from delivered sales.
package stock

import (
	"context"
	"fmt"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Projector applies sale_recorded events to the stock_facts table. Selling a
// product this engine has never seen creates its row; quantities never go
// below zero.
type Projector struct{}

// NewProjector creates a stock Projector.
func NewProjector() *Projector {
	return &Projector{}
}

// Name implements domain.Handler.
func (p *Projector) Name() string { return "stock_projector" }

// Apply decrements stock for every line item of a delivered sale.
func (p *Projector) Apply(ctx context.Context, tenantID types.TenantID, payload any, q domain.Querier) error {
	sale, ok := payload.(domain.SaleRecordedPayload)
	if !ok {
		return fmt.Errorf("%w: stock projector received %T", domain.ErrCorruptData, payload)
	}

	for _, item := range sale.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO stock_facts (tenant_id, product_id, quantity, updated_at)
			VALUES ($1, $2, 0, now())
			ON CONFLICT (tenant_id, product_id)
			DO UPDATE SET quantity = GREATEST(stock_facts.quantity - $3::numeric, 0),
			              updated_at = now()`,
			tenantID.String(), item.ProductID, item.Quantity.String(),
		)
		if err != nil {
			return fmt.Errorf("decrementing stock for product %s: %w", item.ProductID, err)
		}
	}
	return nil
}

var _ domain.Handler = (*Projector)(nil)
