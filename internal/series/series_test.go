package series

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/models"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"1000000", 1, false},
		{"2500000", 2.5, false},
		{"1", 0.000001, false},
		{"0", 0, false},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := FormatPrice(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAggregate_TwoPurchases(t *testing.T) {
	events := []models.PurchaseEvent{
		{Price: "1000000", BlockNumber: 10},
		{Price: "2000000", BlockNumber: 11},
	}

	s, err := Aggregate(events)
	require.NoError(t, err)

	assert.Equal(t, Header, s.Header)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []models.CandlePoint{
		{X: 10, Open: 1, Low: 1, High: 1, Close: 1},
		{X: 11, Open: 1, Low: 1, High: 2, Close: 2},
	}, s.Points)
	assert.Equal(t, 1.0, MedianOfAllValues(s))
}

func TestAggregate_SingleEventIsFlat(t *testing.T) {
	s, err := Aggregate([]models.PurchaseEvent{{Price: "3500000", BlockNumber: 42}})
	require.NoError(t, err)
	require.Len(t, s.Points, 1)

	p := s.Points[0]
	assert.Equal(t, p.Open, p.Low)
	assert.Equal(t, p.Low, p.Close)
	assert.Equal(t, p.Close, p.High)
	assert.Equal(t, 3.5, p.Close)
}

func TestAggregate_StepsFromPreviousClose(t *testing.T) {
	events := []models.PurchaseEvent{
		{Price: "1000000", BlockNumber: 1},
		{Price: "3000000", BlockNumber: 2},
		{Price: "2000000", BlockNumber: 5},
	}
	s, err := Aggregate(events)
	require.NoError(t, err)

	for i := 1; i < len(s.Points); i++ {
		assert.Equal(t, s.Points[i-1].Close, s.Points[i].Open, "open of point %d", i)
		assert.Equal(t, s.Points[i-1].High, s.Points[i].Low, "low of point %d", i)
	}
	// a falling step keeps low above high
	assert.Equal(t, 3.0, s.Points[2].Low)
	assert.Equal(t, 2.0, s.Points[2].High)
}

func TestAggregate_EmptyIsLoadedAndEmpty(t *testing.T) {
	s, err := Aggregate(nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.Empty())
	assert.Equal(t, 1, s.Len())
}

func TestAggregate_Idempotent(t *testing.T) {
	events := []models.PurchaseEvent{
		{Price: "1200000", BlockNumber: 7},
		{Price: "1400000", BlockNumber: 9},
	}
	a, err := Aggregate(events)
	require.NoError(t, err)
	b, err := Aggregate(events)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAggregate_InvalidPrice(t *testing.T) {
	_, err := Aggregate([]models.PurchaseEvent{{Price: "1.2.3", BlockNumber: 1}})
	assert.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 2.0, median([]float64{1, 2, 3}))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.True(t, math.IsNaN(median(nil)))
}

func TestMedianOfAllValues_Empty(t *testing.T) {
	assert.True(t, math.IsNaN(MedianOfAllValues(nil)))
	assert.True(t, math.IsNaN(MedianOfAllValues(&models.ChartSeries{Header: Header})))
}

func TestMedianOfAllValues_RowOrderInvariant(t *testing.T) {
	a := &models.ChartSeries{Points: []models.CandlePoint{
		{X: 1, Open: 1, Low: 1, High: 4, Close: 4},
		{X: 2, Open: 4, Low: 4, High: 2, Close: 2},
	}}
	b := &models.ChartSeries{Points: []models.CandlePoint{a.Points[1], a.Points[0]}}
	assert.Equal(t, MedianOfAllValues(a), MedianOfAllValues(b))
}

func TestViewWindow(t *testing.T) {
	_, ok := ViewWindow(&models.ChartSeries{})
	assert.False(t, ok)

	s, err := Aggregate([]models.PurchaseEvent{
		{Price: "1000000", BlockNumber: 10},
		{Price: "2000000", BlockNumber: 11},
	})
	require.NoError(t, err)
	w, ok := ViewWindow(s)
	require.True(t, ok)
	assert.Equal(t, Window{Min: 0, Max: 5}, w)

	w = WindowAround(10)
	assert.Equal(t, Window{Min: 6, Max: 14}, w)
}

func TestWindowAround_LowerBoundNeverNegative(t *testing.T) {
	for _, m := range []float64{0, 0.5, 3.99, 4, 4.01, 100} {
		w := WindowAround(m)
		assert.GreaterOrEqual(t, w.Min, 0.0)
		assert.LessOrEqual(t, w.Min, w.Max)
	}
}

type stubSource struct {
	events []models.PurchaseEvent
	err    error
	calls  int
}

func (s *stubSource) QueryPurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	s.calls++
	return s.events, s.err
}

func TestFeedFetch(t *testing.T) {
	src := &stubSource{events: []models.PurchaseEvent{{Price: "1000000", BlockNumber: 3}}}
	f := NewFeed(src)

	s, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Points, 1)

	src.events = append(src.events, models.PurchaseEvent{Price: "1500000", BlockNumber: 4})
	s, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Points, 2)
	assert.Equal(t, 2, src.calls)
}

func TestFeedFetch_ReadFailure(t *testing.T) {
	f := NewFeed(&stubSource{err: errors.New("indexer down")})
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.KindReadFailure, failure.KindOf(err))

	f = NewFeed(&stubSource{events: []models.PurchaseEvent{{Price: "x", BlockNumber: 1}}})
	_, err = f.Fetch(context.Background())
	assert.Equal(t, failure.KindReadFailure, failure.KindOf(err))
}
