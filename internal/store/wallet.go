package store

import (
	"context"
	"database/sql"
	"fmt"

	"dayquant-matching-engine/internal/model"
)

// WalletLedger implements ports.WalletLedger on top of Store.
type WalletLedger struct{ *Store }

func NewWalletLedger(s *Store) *WalletLedger { return &WalletLedger{s} }

func (w *WalletLedger) Get(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := w.DB.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id=$1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get wallet balance: %w", err)
	}
	return balance, nil
}

// Add performs an atomic initialize-if-absent-then-increment using
// SELECT ... FOR UPDATE, the same locking pattern the teacher uses for
// GetWalletForUpdate.
func (w *WalletLedger) Add(ctx context.Context, userID string, delta int64) (int64, error) {
	tx, err := w.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&balance)
	switch err {
	case sql.ErrNoRows:
		balance = 0
		if _, err := tx.ExecContext(ctx, `INSERT INTO wallets (user_id, balance) VALUES ($1, 0)`, userID); err != nil {
			return 0, fmt.Errorf("initialize wallet: %w", err)
		}
	case nil:
		// fallthrough to update
	default:
		return 0, fmt.Errorf("lock wallet: %w", err)
	}

	newBalance := balance + delta
	if newBalance < 0 {
		return 0, model.NewError(model.KindInsufficientFunds, "wallet balance would go negative")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE wallets SET balance=$1 WHERE user_id=$2`, newBalance, userID); err != nil {
		return 0, fmt.Errorf("update wallet: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newBalance, nil
}
