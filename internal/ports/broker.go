package ports

import "context"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the kind of order submitted to the execution venue.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus is the broker-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusExpired  OrderStatus = "EXPIRED"
)

// OrderSpec describes an order to be submitted.
type OrderSpec struct {
	Instrument string
	Side       OrderSide
	Type       OrderType
	Quantity   int64
	LimitPrice float64 // stop-limit orders only
	StopPrice  float64 // stop-limit orders only
}

// OrderHandle identifies a submitted order for cancel/status calls.
type OrderHandle struct {
	ID         string
	Instrument string
}

// OrderState is the broker's view of a submitted order.
type OrderState struct {
	Status       OrderStatus
	FilledQty    int64
	AvgFillPrice float64
}

// BrokerExecutionPort is the best-effort side channel for order transport.
// The orchestrator applies closes to the ledger optimistically and
// reconciles against QueryStatus on the next tick if the broker reports a
// rejection.
type BrokerExecutionPort interface {
	SubmitOrder(ctx context.Context, spec OrderSpec) (OrderHandle, error)
	CancelOrder(ctx context.Context, h OrderHandle) error
	QueryStatus(ctx context.Context, h OrderHandle) (OrderState, error)
}
