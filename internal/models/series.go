package models

// PurchaseEvent is one purchase reported by the indexer.
// Price is a base-10 fixed-point integer with 6 decimals.
type PurchaseEvent struct {
	Price       string `json:"price"`
	BlockNumber int64  `json:"blockNumber"`
}

// CandlePoint is one plotted step of the price series.
type CandlePoint struct {
	X     int64   `json:"x"`
	Open  float64 `json:"open"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Close float64 `json:"close"`
}

// ChartSeries is the header row plus ordered candle points.
// A nil *ChartSeries means "not loaded"; an empty Points slice means "no purchases yet".
type ChartSeries struct {
	Header [5]string     `json:"header"`
	Points []CandlePoint `json:"points"`
}

// Len returns the number of rows including the header.
func (s *ChartSeries) Len() int {
	return 1 + len(s.Points)
}

// Empty reports whether the series has no data rows.
func (s *ChartSeries) Empty() bool {
	return len(s.Points) == 0
}

// Last returns the most recent candle.
func (s *ChartSeries) Last() (CandlePoint, bool) {
	if len(s.Points) == 0 {
		return CandlePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Rows renders the series as chart rows: the header followed by
// [x, open, low, high, close] for each point.
func (s *ChartSeries) Rows() [][]any {
	rows := make([][]any, 0, s.Len())
	header := make([]any, len(s.Header))
	for i, h := range s.Header {
		header[i] = h
	}
	rows = append(rows, header)
	for _, p := range s.Points {
		rows = append(rows, []any{p.X, p.Open, p.Low, p.High, p.Close})
	}
	return rows
}
