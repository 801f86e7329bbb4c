// Package wristband drives the NFC tap that identifies the holder of a
// wristband for an operator-authorized checkout.
package wristband

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/logger"
	"github.com/rewired-gh/partytap/internal/models"
)

// HolderKeyIndex is the derivation index whose address identifies the holder.
const HolderKeyIndex = "1"

// ErrReaderBusy is returned when a scan is requested while another tap is in flight.
var ErrReaderBusy = errors.New("nfc reader busy")

// TagReader runs the public-key derivation command on a presented tag.
type TagReader interface {
	ReadPublicKeys(ctx context.Context) (map[string]common.Address, error)
}

// NameResolver resolves an address to a normalized display name.
type NameResolver interface {
	Resolve(ctx context.Context, addr common.Address) (string, error)
}

// State is the reader state machine: Idle → Scanning → Idle or Failed.
type State int

const (
	Idle State = iota
	Scanning
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Bridge owns the single NFC reader. At most one tap session runs at a time.
type Bridge struct {
	reader TagReader
	names  NameResolver

	mu      sync.Mutex
	state   State
	lastErr error
}

// NewBridge creates a Bridge over reader, resolving names with names.
func NewBridge(reader TagReader, names NameResolver) *Bridge {
	return &Bridge{reader: reader, names: names}
}

// State returns the current reader state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastError returns the error of the last failed scan, nil after a success.
func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Scan waits for a wristband tap and returns its holder. A scan requested
// while another one is in flight fails immediately with ErrReaderBusy.
// Reader and protocol failures are KindWristbandScan errors; the caller may
// retry. A failed name lookup still returns the holder with an empty name.
func (b *Bridge) Scan(ctx context.Context) (*models.Holder, error) {
	b.mu.Lock()
	if b.state == Scanning {
		b.mu.Unlock()
		return nil, failure.New(failure.KindWristbandScan, "scan", ErrReaderBusy)
	}
	b.state = Scanning
	b.mu.Unlock()

	holder, err := b.scan(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.state = Failed
		b.lastErr = err
		logger.Warn("Wristband scan failed: %v", err)
		return nil, err
	}
	b.state = Idle
	b.lastErr = nil
	logger.Info("Wristband scanned: %s", holder.Label())
	return holder, nil
}

func (b *Bridge) scan(ctx context.Context) (*models.Holder, error) {
	keys, err := b.reader.ReadPublicKeys(ctx)
	if err != nil {
		return nil, failure.New(failure.KindWristbandScan, "get_pkeys", err)
	}
	addr, ok := keys[HolderKeyIndex]
	if !ok || addr == (common.Address{}) {
		return nil, failure.New(failure.KindWristbandScan, "get_pkeys", errors.New("tag returned no holder key"))
	}

	// An unresolved name leaves the holder usable under its address.
	name, err := b.names.Resolve(ctx, addr)
	if err != nil {
		logger.Warn("Failed to resolve holder name of %s: %v", addr.Hex(),
			failure.New(failure.KindReadFailure, "resolve holder", err))
		return &models.Holder{Address: addr}, nil
	}
	return &models.Holder{Address: addr, DisplayName: name}, nil
}
