// Package watch polls the price feed and reports purchases not seen before.
package watch

import (
	"context"
	"sync"

	"github.com/rewired-gh/partytap/internal/logger"
	"github.com/rewired-gh/partytap/internal/models"
)

// Fetcher produces the current chart series.
type Fetcher interface {
	Fetch(ctx context.Context) (*models.ChartSeries, error)
}

// Update is the result of one poll.
type Update struct {
	Series *models.ChartSeries
	New    []models.CandlePoint
}

// Watcher remembers the highest block seen across polls.
type Watcher struct {
	feed Fetcher

	mu        sync.Mutex
	lastBlock int64
	seen      bool
	latest    *models.ChartSeries
}

// New creates a Watcher over feed. Nothing is fetched until the first Poll.
func New(feed Fetcher) *Watcher {
	return &Watcher{feed: feed}
}

// Poll fetches the series and returns the candles above the highest block
// seen by the previous successful poll. The first poll returns every candle.
// A failed poll leaves the watermark untouched.
func (w *Watcher) Poll(ctx context.Context) (*Update, error) {
	s, err := w.feed.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var fresh []models.CandlePoint
	for _, p := range s.Points {
		if !w.seen || p.X > w.lastBlock {
			fresh = append(fresh, p)
		}
	}
	if last, ok := s.Last(); ok && (!w.seen || last.X > w.lastBlock) {
		w.lastBlock = last.X
	}
	w.seen = true
	w.latest = s

	if len(fresh) > 0 {
		logger.Info("Detected %d new purchase(s), last block %d", len(fresh), w.lastBlock)
	} else {
		logger.Debug("No new purchases above block %d", w.lastBlock)
	}
	return &Update{Series: s, New: fresh}, nil
}

// Latest returns the series of the last successful poll, nil before the first.
func (w *Watcher) Latest() *models.ChartSeries {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// LastBlock returns the watermark and whether any poll has succeeded.
func (w *Watcher) LastBlock() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBlock, w.seen
}
