// Package storage provides the SQLite-backed journal of chain writes.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/partytap/internal/models"
)

// Storage wraps a SQLite database holding the transaction journal.
type Storage struct {
	db              *sql.DB
	maxTransactions int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/partytap/journal.db.
func New(maxTransactions int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "partytap", "journal.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxTransactions: maxTransactions}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			chain_id      INTEGER NOT NULL,
			contract      TEXT NOT NULL,
			sender        TEXT NOT NULL,
			hash          TEXT NOT NULL DEFAULT '',
			state         TEXT NOT NULL,
			error         TEXT NOT NULL DEFAULT '',
			submitted_at  INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_submitted_at ON transactions(submitted_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts a new journal entry and drops the oldest entries beyond the cap.
func (s *Storage) Record(pt *models.PendingTransaction) error {
	if err := pt.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO transactions
			(id, kind, chain_id, contract, sender, hash, state, error, submitted_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		pt.ID, string(pt.Kind), int64(pt.ChainID), pt.Contract.Hex(), pt.From.Hex(),
		hashText(pt.Hash), string(pt.State), pt.Error,
		pt.SubmittedAt.UnixNano(), pt.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM transactions WHERE id NOT IN (
			SELECT id FROM transactions ORDER BY submitted_at DESC LIMIT ?
		)`, s.maxTransactions); err != nil {
		return fmt.Errorf("failed to enforce transaction cap: %w", err)
	}

	return tx.Commit()
}

// Update stores the current hash, state and error of an existing entry.
// Terminal entries are never moved back to a non-terminal state.
func (s *Storage) Update(pt *models.PendingTransaction) error {
	if err := pt.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	current, err := s.Get(pt.ID)
	if err != nil {
		return err
	}
	if current.State.Terminal() && current.State != pt.State {
		return fmt.Errorf("transaction %s already %s", pt.ID, current.State)
	}

	res, err := s.db.Exec(`
		UPDATE transactions SET hash=?, state=?, error=?, updated_at=?
		WHERE id=?`,
		hashText(pt.Hash), string(pt.State), pt.Error, pt.UpdatedAt.UnixNano(),
		pt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("transaction not found: %s", pt.ID)
	}
	return nil
}

func (s *Storage) Get(id string) (*models.PendingTransaction, error) {
	row := s.db.QueryRow(`SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
	pt, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return pt, nil
}

// Recent returns up to k entries, newest first.
func (s *Storage) Recent(k int) ([]*models.PendingTransaction, error) {
	rows, err := s.db.Query(`SELECT `+transactionCols+` FROM transactions
		ORDER BY submitted_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []*models.PendingTransaction{}
	for rows.Next() {
		pt, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, pt)
	}
	return txs, rows.Err()
}

// Pending returns entries that never reached a terminal state, oldest first.
// After a crash these are the writes whose outcome must be checked by hand.
func (s *Storage) Pending() ([]*models.PendingTransaction, error) {
	rows, err := s.db.Query(`SELECT `+transactionCols+` FROM transactions
		WHERE state IN (?, ?) ORDER BY submitted_at ASC`,
		string(models.TxSubmitting), string(models.TxSubmitted))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.PendingTransaction
	for rows.Next() {
		pt, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, pt)
	}
	return txs, rows.Err()
}

// Rotate keeps at most maxTransactions newest entries by submitted_at.
func (s *Storage) Rotate() error {
	_, err := s.db.Exec(`
		DELETE FROM transactions WHERE id NOT IN (
			SELECT id FROM transactions ORDER BY submitted_at DESC LIMIT ?
		)`, s.maxTransactions)
	if err != nil {
		return fmt.Errorf("failed to rotate transactions: %w", err)
	}
	return nil
}

const transactionCols = `id, kind, chain_id, contract, sender, hash, state, error, submitted_at, updated_at`

func scanTransaction(scan func(...any) error) (*models.PendingTransaction, error) {
	var pt models.PendingTransaction
	var kind, contract, sender, hash, state string
	var chainID, submittedAtNano, updatedAtNano int64
	err := scan(
		&pt.ID, &kind, &chainID, &contract, &sender, &hash, &state, &pt.Error,
		&submittedAtNano, &updatedAtNano,
	)
	if err != nil {
		return nil, err
	}
	pt.Kind = models.TxKind(kind)
	pt.ChainID = uint64(chainID)
	pt.Contract = common.HexToAddress(contract)
	pt.From = common.HexToAddress(sender)
	if hash != "" {
		pt.Hash = common.HexToHash(hash)
	}
	pt.State = models.TxState(state)
	pt.SubmittedAt = time.Unix(0, submittedAtNano)
	pt.UpdatedAt = time.Unix(0, updatedAtNano)
	return &pt, nil
}

func hashText(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
