// Package halo talks to a local NFC bridge that executes HaLo tag commands.
package halo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rewired-gh/partytap/internal/logger"
)

// Client sends commands to the bridge over HTTP.
type Client struct {
	bridgeURL  string
	httpClient *http.Client
}

// Command is a HaLo command request.
type Command struct {
	Name string `json:"name"`
}

type pkeysResponse struct {
	EtherAddresses map[string]string `json:"etherAddresses"`
	Error          string            `json:"error,omitempty"`
}

// NewClient creates a new bridge client. The timeout bounds one whole tap,
// including the time the wristband takes to be presented.
func NewClient(bridgeURL string, timeout time.Duration) *Client {
	return &Client{
		bridgeURL: strings.TrimRight(bridgeURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ReadPublicKeys runs get_pkeys and returns the derived addresses keyed by
// derivation index. Entries that are not valid hex addresses are dropped.
func (c *Client) ReadPublicKeys(ctx context.Context) (map[string]common.Address, error) {
	var resp pkeysResponse
	if err := c.exec(ctx, Command{Name: "get_pkeys"}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("bridge reported: %s", resp.Error)
	}

	keys := make(map[string]common.Address, len(resp.EtherAddresses))
	for idx, addr := range resp.EtherAddresses {
		if !common.IsHexAddress(addr) {
			logger.Warn("Ignoring invalid address %q at derivation index %s", addr, idx)
			continue
		}
		keys[idx] = common.HexToAddress(addr)
	}
	return keys, nil
}

func (c *Client) exec(ctx context.Context, cmd Command, out any) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bridgeURL+"/exec", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach NFC bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", cmd.Name, err)
	}
	return nil
}
