package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/rewired-gh/partytap/internal/models"
)

var (
	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("checkout session closed")
	// ErrBusy is returned while a scan or burn of the session is in flight.
	ErrBusy = errors.New("checkout session busy")
)

// Scanner resolves the holder of a presented wristband.
type Scanner interface {
	Scan(ctx context.Context) (*models.Holder, error)
}

// Session is one checkout at the bar: scan a wristband once, choose a
// quantity, burn. It closes on a successful burn or on dismissal; a failed
// burn keeps it open so the operator can retry without re-scanning.
type Session struct {
	ID string

	orch    *Orchestrator
	scanner Scanner
	sess    *models.Session

	mu       sync.Mutex
	holder   *models.Holder
	quantity int64
	busy     bool
	closed   bool
}

// Open starts a checkout session for the operator session sess.
func (o *Orchestrator) Open(sess *models.Session, scanner Scanner) *Session {
	return &Session{
		ID:       uuid.New().String(),
		orch:     o,
		scanner:  scanner,
		sess:     sess,
		quantity: 1,
	}
}

// Holder returns a copy of the scanned holder, nil before a successful scan.
func (s *Session) Holder() *models.Holder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil {
		return nil
	}
	h := *s.holder
	return &h
}

// Quantity returns the number of beers the next checkout burns.
func (s *Session) Quantity() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quantity
}

// SetQuantity sets the number of beers to burn.
func (s *Session) SetQuantity(q int64) error {
	if q <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.quantity = q
	return nil
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ScanHolder resolves the holder by wristband tap. Once a holder is set it is
// returned as is and the reader is not touched again. A failed scan leaves
// the session without a holder and may be retried.
func (s *Session) ScanHolder(ctx context.Context) (*models.Holder, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.holder != nil {
		h := *s.holder
		s.mu.Unlock()
		return &h, nil
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.mu.Unlock()

	holder, err := s.scanner.Scan(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return nil, err
	}
	s.holder = holder
	h := *holder
	return &h, nil
}

// Checkout burns the chosen quantity from the scanned holder. Once the burn
// confirms the session closes and its holder is discarded, even when the
// balance refresh failed.
func (s *Session) Checkout(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.holder == nil {
		s.mu.Unlock()
		return nil, ErrNoHolder
	}
	holder := *s.holder
	quantity := s.quantity
	s.busy = true
	s.mu.Unlock()

	res, err := s.orch.Checkout(ctx, s.sess, &holder, quantity)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if res == nil {
		return nil, err
	}
	s.closed = true
	s.holder = nil
	return res, err
}

// Dismiss closes the session without a burn. It is refused while a scan or
// burn is in flight.
func (s *Session) Dismiss() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.closed = true
	s.holder = nil
	return nil
}
