// Package sales maintains per-tenant sales facts and product association
// counts from quote conversions and delivered sales.
package sales

import (
	"context"
	"fmt"
	"sort"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Projector applies quote_converted and sale_recorded events to the
// sales_facts and product_associations tables.
type Projector struct{}

// NewProjector creates a sales Projector.
func NewProjector() *Projector {
	return &Projector{}
}

// Name implements domain.Handler.
func (p *Projector) Name() string { return "sales_projector" }

// Apply routes by payload type: a conversion creates the sales fact and
// updates product associations; a delivered sale stamps delivered_at.
func (p *Projector) Apply(ctx context.Context, tenantID types.TenantID, payload any, q domain.Querier) error {
	switch ev := payload.(type) {
	case domain.QuoteConvertedPayload:
		return p.applyConversion(ctx, tenantID, ev, q)
	case domain.SaleRecordedPayload:
		return p.applyDelivery(ctx, tenantID, ev, q)
	default:
		return fmt.Errorf("%w: sales projector received %T", domain.ErrCorruptData, payload)
	}
}

func (p *Projector) applyConversion(ctx context.Context, tenantID types.TenantID, ev domain.QuoteConvertedPayload, q domain.Querier) error {
	_, err := q.Exec(ctx, `
		INSERT INTO sales_facts (tenant_id, order_id, quote_id, client_id, total_value, converted_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (tenant_id, order_id)
		DO UPDATE SET quote_id = excluded.quote_id,
		              client_id = excluded.client_id,
		              total_value = excluded.total_value,
		              converted_at = excluded.converted_at`,
		tenantID.String(), ev.OrderID, ev.QuoteID, ev.ClientID,
		ev.TotalValue.String(), ev.ConvertedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting sales fact for order %s: %w", ev.OrderID, err)
	}
	return p.countAssociations(ctx, tenantID, ev.Items, q)
}

func (p *Projector) applyDelivery(ctx context.Context, tenantID types.TenantID, ev domain.SaleRecordedPayload, q domain.Querier) error {
	_, err := q.Exec(ctx, `
		INSERT INTO sales_facts (tenant_id, order_id, quote_id, client_id, total_value, delivered_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (tenant_id, order_id)
		DO UPDATE SET delivered_at = excluded.delivered_at,
		              total_value = excluded.total_value`,
		tenantID.String(), ev.OrderID, ev.QuoteID, ev.ClientID,
		ev.TotalValue.String(), ev.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("stamping delivery for order %s: %w", ev.OrderID, err)
	}
	return nil
}

// countAssociations increments the bought-together counter for every distinct
// product pair on the order. Pairs are stored with product_a < product_b so
// (a, b) and (b, a) land on one row.
func (p *Projector) countAssociations(ctx context.Context, tenantID types.TenantID, items []domain.LineItem, q domain.Querier) error {
	products := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		products = append(products, item.ProductID)
	}
	sort.Strings(products)

	for i := 0; i < len(products); i++ {
		for j := i + 1; j < len(products); j++ {
			_, err := q.Exec(ctx, `
				INSERT INTO product_associations (tenant_id, product_a, product_b, occurrences)
				VALUES ($1, $2, $3, 1)
				ON CONFLICT (tenant_id, product_a, product_b)
				DO UPDATE SET occurrences = product_associations.occurrences + 1`,
				tenantID.String(), products[i], products[j],
			)
			if err != nil {
				return fmt.Errorf("counting association %s/%s: %w", products[i], products[j], err)
			}
		}
	}
	return nil
}

var _ domain.Handler = (*Projector)(nil)
