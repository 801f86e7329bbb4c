// Package series turns raw purchase events into a bounded, chart-ready
// candlestick series.
package series

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/partytap/internal/models"
)

// PriceDecimals is the fixed-point scale of on-chain prices.
const PriceDecimals = 6

// WindowHalfWidth is the distance from the median to each edge of the view window.
const WindowHalfWidth = 4.0

// Header is the label row prepended to every series.
var Header = [5]string{"Time", "", "", "", ""}

// FormatPrice converts a fixed-point price string to its display value.
func FormatPrice(price string) (float64, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", price, err)
	}
	f, _ := d.Shift(-PriceDecimals).Float64()
	return f, nil
}

// Aggregate builds the chart series for events ordered by block number.
// Each point steps from the previous purchase price to the current one:
// open and low carry the previous close, high and close carry the current price.
// The first point has no predecessor and uses its own price throughout.
func Aggregate(events []models.PurchaseEvent) (*models.ChartSeries, error) {
	s := &models.ChartSeries{
		Header: Header,
		Points: make([]models.CandlePoint, 0, len(events)),
	}

	var previous float64
	for i, ev := range events {
		price, err := FormatPrice(ev.Price)
		if err != nil {
			return nil, fmt.Errorf("event at block %d: %w", ev.BlockNumber, err)
		}
		if i == 0 {
			previous = price
		}
		s.Points = append(s.Points, models.CandlePoint{
			X:     ev.BlockNumber,
			Open:  previous,
			Low:   previous,
			High:  price,
			Close: price,
		})
		previous = price
	}
	return s, nil
}

// MedianOfAllValues returns the median over every open, low, high and close
// value in the series. It returns NaN when the series has no data rows.
func MedianOfAllValues(s *models.ChartSeries) float64 {
	if s == nil || len(s.Points) == 0 {
		return math.NaN()
	}
	values := make([]float64, 0, 4*len(s.Points))
	for _, p := range s.Points {
		values = append(values, p.Open, p.Low, p.High, p.Close)
	}
	return median(values)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 != 0 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Window is the vertical view range of the chart.
type Window struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// WindowAround centers a window on m, clamping the lower bound at zero.
func WindowAround(m float64) Window {
	return Window{
		Min: math.Max(m-WindowHalfWidth, 0),
		Max: m + WindowHalfWidth,
	}
}

// ViewWindow returns the median-centered window for s.
// ok is false for a nil or empty series, where no median exists.
func ViewWindow(s *models.ChartSeries) (Window, bool) {
	m := MedianOfAllValues(s)
	if math.IsNaN(m) {
		return Window{}, false
	}
	return WindowAround(m), true
}
