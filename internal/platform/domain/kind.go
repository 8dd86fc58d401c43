package domain

import "fmt"

// EventKind names a business fact carried by the platform. The set is closed:
// new kinds are added here together with a payload schema and a handler; the
// transport itself is agnostic.
type EventKind string

const (
	KindQuoteCreated        EventKind = "quote_created"
	KindQuoteConverted      EventKind = "quote_converted"
	KindSaleRecorded        EventKind = "sale_recorded"
	KindOrderStatusChanged  EventKind = "order_status_changed"
	KindProductPriceUpdated EventKind = "product_price_updated"
	KindStockUpdated        EventKind = "stock_updated"
)

// Kinds lists every recognized event kind, one stream per entry.
func Kinds() []EventKind {
	return []EventKind{
		KindQuoteCreated,
		KindQuoteConverted,
		KindSaleRecorded,
		KindOrderStatusChanged,
		KindProductPriceUpdated,
		KindStockUpdated,
	}
}

// Valid reports whether the kind belongs to the enumerated set.
func (k EventKind) Valid() bool {
	switch k {
	case KindQuoteCreated, KindQuoteConverted, KindSaleRecorded,
		KindOrderStatusChanged, KindProductPriceUpdated, KindStockUpdated:
		return true
	}
	return false
}

// String returns the kind verbatim; it doubles as the stream name.
func (k EventKind) String() string {
	return string(k)
}

// ParseKind validates a string against the enumerated kind set.
func ParseKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}
