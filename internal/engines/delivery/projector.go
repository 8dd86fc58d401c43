// Package delivery tracks orders through fulfillment from conversion to the
// door.
package delivery

import (
	"context"
	"fmt"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// StatusOutForDelivery is the order status that marks an order as needing a
// route assignment.
const StatusOutForDelivery = "out_for_delivery"

// Projector applies quote_converted and order_status_changed events to the
// delivery_orders table.
type Projector struct{}

// NewProjector creates a delivery Projector.
func NewProjector() *Projector {
	return &Projector{}
}

// Name implements domain.Handler.
func (p *Projector) Name() string { return "delivery_projector" }

// Apply routes by payload type: a conversion plans the delivery, a status
// change moves it along.
func (p *Projector) Apply(ctx context.Context, tenantID types.TenantID, payload any, q domain.Querier) error {
	switch ev := payload.(type) {
	case domain.QuoteConvertedPayload:
		return p.planDelivery(ctx, tenantID, ev, q)
	case domain.OrderStatusChangedPayload:
		return p.applyStatusChange(ctx, tenantID, ev, q)
	default:
		return fmt.Errorf("%w: delivery projector received %T", domain.ErrCorruptData, payload)
	}
}

func (p *Projector) planDelivery(ctx context.Context, tenantID types.TenantID, ev domain.QuoteConvertedPayload, q domain.Querier) error {
	_, err := q.Exec(ctx, `
		INSERT INTO delivery_orders (tenant_id, order_id, client_id, status, route_pending, updated_at)
		VALUES ($1, $2, $3, 'planned', false, now())
		ON CONFLICT (tenant_id, order_id) DO NOTHING`,
		tenantID.String(), ev.OrderID, ev.ClientID,
	)
	if err != nil {
		return fmt.Errorf("planning delivery for order %s: %w", ev.OrderID, err)
	}
	return nil
}

// applyStatusChange records the order's new status. A status change for an
// order the engine never saw converted still creates the row, because events
// may arrive before this engine's projection caught up.
func (p *Projector) applyStatusChange(ctx context.Context, tenantID types.TenantID, ev domain.OrderStatusChangedPayload, q domain.Querier) error {
	routePending := ev.NewStatus == StatusOutForDelivery

	_, err := q.Exec(ctx, `
		INSERT INTO delivery_orders (tenant_id, order_id, status, route_pending, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, order_id)
		DO UPDATE SET status = excluded.status,
		              route_pending = excluded.route_pending,
		              updated_at = excluded.updated_at`,
		tenantID.String(), ev.OrderID, ev.NewStatus, routePending, ev.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("applying status change for order %s: %w", ev.OrderID, err)
	}
	return nil
}

var _ domain.Handler = (*Projector)(nil)
