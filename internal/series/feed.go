package series

import (
	"context"

	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/models"
)

// Source lists purchases ordered ascending by block number.
type Source interface {
	QueryPurchases(ctx context.Context) ([]models.PurchaseEvent, error)
}

// Feed re-runs the aggregator over a fresh event list on every fetch.
type Feed struct {
	source Source
}

// NewFeed creates a Feed backed by source.
func NewFeed(source Source) *Feed {
	return &Feed{source: source}
}

// Fetch queries the source and aggregates the full event list.
func (f *Feed) Fetch(ctx context.Context) (*models.ChartSeries, error) {
	events, err := f.source.QueryPurchases(ctx)
	if err != nil {
		return nil, failure.New(failure.KindReadFailure, "query purchases", err)
	}
	s, err := Aggregate(events)
	if err != nil {
		return nil, failure.New(failure.KindReadFailure, "aggregate purchases", err)
	}
	return s, nil
}
