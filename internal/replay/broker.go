package replay

import (
	"context"
	"strconv"
	"sync"

	"tradegate/internal/domain"
	"tradegate/internal/ports"
)

// SimBroker simulates order execution against historical daily bars.
// Stop-limit entries rest until a later day's range crosses the trigger;
// market orders fill immediately at the current day's close. A gap open past
// the trigger fills at the open, modeling stop slippage.
type SimBroker struct {
	mu     sync.Mutex
	nextID int
	orders map[string]*simOrder
	day    map[string]domain.Candle
}

type simOrder struct {
	spec  ports.OrderSpec
	state ports.OrderState
}

func NewSimBroker() *SimBroker {
	return &SimBroker{
		orders: make(map[string]*simOrder),
		day:    make(map[string]domain.Candle),
	}
}

// SetDay advances the simulation to a new trading day and fills any resting
// stop orders the day's range triggered.
func (b *SimBroker) SetDay(candles map[string]domain.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.day = candles
	for _, o := range b.orders {
		if o.state.Status != ports.OrderStatusNew || o.spec.Type != ports.OrderTypeStopLimit {
			continue
		}
		candle, ok := candles[o.spec.Instrument]
		if !ok {
			continue
		}
		if fill, ok := stopTriggerFill(o.spec, candle); ok {
			o.state = ports.OrderState{
				Status:       ports.OrderStatusFilled,
				FilledQty:    o.spec.Quantity,
				AvgFillPrice: fill,
			}
		}
	}
}

func stopTriggerFill(spec ports.OrderSpec, candle domain.Candle) (float64, bool) {
	if spec.Side == ports.Buy {
		if candle.High < spec.StopPrice {
			return 0, false
		}
		if candle.Open > spec.StopPrice {
			return candle.Open, true
		}
		return spec.StopPrice, true
	}
	if candle.Low > spec.StopPrice {
		return 0, false
	}
	if candle.Open < spec.StopPrice {
		return candle.Open, true
	}
	return spec.StopPrice, true
}

func (b *SimBroker) SubmitOrder(ctx context.Context, spec ports.OrderSpec) (ports.OrderHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := strconv.Itoa(b.nextID)

	state := ports.OrderState{Status: ports.OrderStatusNew}
	if spec.Type == ports.OrderTypeMarket {
		state = ports.OrderState{
			Status:       ports.OrderStatusFilled,
			FilledQty:    spec.Quantity,
			AvgFillPrice: b.day[spec.Instrument].Close,
		}
	}
	b.orders[id] = &simOrder{spec: spec, state: state}
	return ports.OrderHandle{ID: id, Instrument: spec.Instrument}, nil
}

func (b *SimBroker) CancelOrder(ctx context.Context, h ports.OrderHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[h.ID]
	if !ok {
		return ports.ErrOrderNotFound
	}
	if o.state.Status == ports.OrderStatusNew {
		o.state.Status = ports.OrderStatusCanceled
	}
	return nil
}

func (b *SimBroker) QueryStatus(ctx context.Context, h ports.OrderHandle) (ports.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[h.ID]
	if !ok {
		return ports.OrderState{}, ports.ErrOrderNotFound
	}
	return o.state, nil
}
