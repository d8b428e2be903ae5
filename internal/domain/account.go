package domain

import "time"

// Ticker is a top-of-book market snapshot for one symbol.
type Ticker struct {
	Symbol    string
	LastPrice float64
	Bid       float64
	Ask       float64
	Volume24h float64
	Change24h float64
	Timestamp time.Time
}

// AccountSnapshot is a read-only view of the account, fetched fresh per
// decision cycle. The core never mutates it; balance changes happen only
// through the execution sink.
type AccountSnapshot struct {
	TotalBalance     float64
	AvailableBalance float64
	UnrealizedPNL    float64
	MarginUsed       float64
	OpenPositions    []*Position
	Timestamp        time.Time
}
