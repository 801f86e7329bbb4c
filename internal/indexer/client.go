// Package indexer queries the subgraph that indexes party purchases.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/partytap/internal/models"
)

// MaxPurchases is the largest page the subgraph serves in one query.
const MaxPurchases = 1000

const purchasesQuery = `{
	purchases(first: %d, orderBy: blockNumber, orderDirection: asc) {
		price
		blockNumber
	}
}`

// Client provides access to the purchases subgraph.
type Client struct {
	url        string
	limit      int
	httpClient *http.Client
}

type graphRequest struct {
	Query string `json:"query"`
}

type graphError struct {
	Message string `json:"message"`
}

type purchasesResponse struct {
	Data struct {
		Purchases []purchase `json:"purchases"`
	} `json:"data"`
	Errors []graphError `json:"errors"`
}

type purchase struct {
	Price       json.RawMessage `json:"price"`
	BlockNumber json.RawMessage `json:"blockNumber"`
}

// NewClient creates a new indexer client. limit is clamped to 1..MaxPurchases.
func NewClient(url string, limit int, timeout time.Duration) *Client {
	if limit <= 0 || limit > MaxPurchases {
		limit = MaxPurchases
	}
	return &Client{
		url:   url,
		limit: limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// QueryPurchases returns purchases ordered ascending by block number.
func (c *Client) QueryPurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	body, err := json.Marshal(graphRequest{Query: fmt.Sprintf(purchasesQuery, c.limit)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch purchases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("indexer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pr purchasesResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode purchases: %w", err)
	}
	if len(pr.Errors) > 0 {
		msgs := make([]string, 0, len(pr.Errors))
		for _, e := range pr.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("indexer query failed: %s", strings.Join(msgs, "; "))
	}

	events := make([]models.PurchaseEvent, 0, len(pr.Data.Purchases))
	for i, p := range pr.Data.Purchases {
		price, err := parseIntegerField(p.Price)
		if err != nil {
			return nil, fmt.Errorf("purchase %d: invalid price: %w", i, err)
		}
		block, err := parseIntegerField(p.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("purchase %d: invalid block number: %w", i, err)
		}
		blockNumber, err := strconv.ParseInt(block, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("purchase %d: invalid block number: %w", i, err)
		}
		events = append(events, models.PurchaseEvent{Price: price, BlockNumber: blockNumber})
	}
	return events, nil
}

// parseIntegerField accepts a JSON string or number holding a base-10 integer
// and returns its digits. Subgraph BigInt fields arrive as strings.
func parseIntegerField(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("not a string or number: %s", string(raw))
		}
		s = n.String()
	}
	if s == "" {
		return "", fmt.Errorf("empty value")
	}
	for i, r := range s {
		if r == '-' && i == 0 && len(s) > 1 {
			continue
		}
		if r < '0' || r > '9' {
			return "", fmt.Errorf("not an integer: %q", s)
		}
	}
	return s, nil
}
