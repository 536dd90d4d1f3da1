package domain

import "time"

// Candle is one OHLCV bar. In live mode it is assembled from an intraday
// snapshot (Open = the tick's opening reference, Close = latest price); in
// replay mode it is one historical trading day.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
