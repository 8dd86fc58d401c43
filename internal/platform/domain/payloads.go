package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Typed payload schemas, version "1.0". Field names are the platform's wire
// contract with every vertical; decimals travel as strings. Known fields are
// parsed and validated before a handler runs; unknown fields survive in the
// envelope's raw payload.

// LineItem is one product line on a quote or order.
type LineItem struct {
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// QuoteCreatedPayload carries a freshly created quote.
type QuoteCreatedPayload struct {
	QuoteID    string          `json:"quote_id"`
	ClientID   string          `json:"client_id"`
	TotalValue decimal.Decimal `json:"total_value"`
	Items      []LineItem      `json:"items"`
}

// Validate checks the invariants of a quote_created payload.
func (p QuoteCreatedPayload) Validate() error {
	if p.QuoteID == "" {
		return fmt.Errorf("%w: quote_created without quote_id", ErrCorruptData)
	}
	return nil
}

// QuoteConvertedPayload carries a quote turned into an order.
type QuoteConvertedPayload struct {
	QuoteID     string          `json:"quote_id"`
	OrderID     string          `json:"order_id"`
	ClientID    string          `json:"client_id"`
	UserID      string          `json:"user_id"`
	WorkID      *string         `json:"work_id"`
	TotalValue  decimal.Decimal `json:"total_value"`
	ConvertedAt time.Time       `json:"converted_at"`
	Items       []LineItem      `json:"items"`
}

// Validate checks the invariants of a quote_converted payload.
func (p QuoteConvertedPayload) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: quote_converted without order_id", ErrCorruptData)
	}
	if p.QuoteID == "" {
		return fmt.Errorf("%w: quote_converted without quote_id", ErrCorruptData)
	}
	return nil
}

// SaleRecordedPayload carries a delivered, final sale.
type SaleRecordedPayload struct {
	OrderID     string          `json:"order_id"`
	QuoteID     *string         `json:"quote_id"`
	ClientID    string          `json:"client_id"`
	WorkID      *string         `json:"work_id"`
	DeliveredAt time.Time       `json:"delivered_at"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Items       []LineItem      `json:"items"`
}

// Validate checks the invariants of a sale_recorded payload.
func (p SaleRecordedPayload) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: sale_recorded without order_id", ErrCorruptData)
	}
	return nil
}

// OrderStatusChangedPayload carries an order status transition.
type OrderStatusChangedPayload struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy *string   `json:"changed_by"`
}

// Validate checks the invariants of an order_status_changed payload.
func (p OrderStatusChangedPayload) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: order_status_changed without order_id", ErrCorruptData)
	}
	if p.NewStatus == "" {
		return fmt.Errorf("%w: order_status_changed without new_status", ErrCorruptData)
	}
	return nil
}

// DecodePayload parses and validates the payload for a kind. Reserved kinds
// (product_price_updated, stock_updated) have no schema yet and pass through
// as raw bytes for the consuming engine to interpret.
func DecodePayload(kind EventKind, raw json.RawMessage) (any, error) {
	switch kind {
	case KindQuoteCreated:
		return decodeAndValidate[QuoteCreatedPayload](kind, raw)
	case KindQuoteConverted:
		return decodeAndValidate[QuoteConvertedPayload](kind, raw)
	case KindSaleRecorded:
		return decodeAndValidate[SaleRecordedPayload](kind, raw)
	case KindOrderStatusChanged:
		return decodeAndValidate[OrderStatusChangedPayload](kind, raw)
	case KindProductPriceUpdated, KindStockUpdated:
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

type validator interface {
	Validate() error
}

func decodeAndValidate[P validator](kind EventKind, raw json.RawMessage) (any, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
