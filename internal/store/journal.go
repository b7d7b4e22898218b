package store

import (
	"context"
	"database/sql"
	"fmt"

	"dayquant-matching-engine/internal/model"
	"dayquant-matching-engine/internal/ports"
)

// TransactionJournal implements ports.TransactionJournal on top of
// Store. It is an append/patch log only — it never decides what to
// match next, matching the teacher's pattern of durable trade/event
// rows written alongside (not instead of) the in-memory book.
type TransactionJournal struct{ *Store }

func NewTransactionJournal(s *Store) *TransactionJournal { return &TransactionJournal{s} }

func (j *TransactionJournal) InsertStockTx(ctx context.Context, tx model.StockTransaction) error {
	_, err := j.DB.ExecContext(ctx, `
		INSERT INTO stock_transactions
			(stock_tx_id, parent_stock_tx_id, user_id, stock_id, is_buy, order_type,
			 quantity, remaining_quantity, stock_price, order_status, wallet_tx_id, created_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		tx.StockTxID, tx.ParentStockTxID, tx.UserID, tx.StockID, tx.IsBuy, string(tx.OrderType),
		tx.Quantity, tx.RemainingQuantity, tx.StockPrice, string(tx.OrderStatus), tx.WalletTxID, tx.Timestamp, tx.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock transaction: %w", err)
	}
	return nil
}

func (j *TransactionJournal) UpdateStockTx(ctx context.Context, stockTxID string, patch ports.StockTxPatch) error {
	current, err := j.GetStockTx(ctx, stockTxID)
	if err != nil {
		return err
	}
	if patch.RemainingQuantity != nil {
		current.RemainingQuantity = *patch.RemainingQuantity
	}
	if patch.OrderStatus != nil {
		current.OrderStatus = *patch.OrderStatus
	}
	if patch.StockPrice != nil {
		current.StockPrice = patch.StockPrice
	}
	if patch.WalletTxID != nil {
		current.WalletTxID = patch.WalletTxID
	}
	if patch.CancelledAt != nil {
		current.CancelledAt = patch.CancelledAt
	}

	_, err = j.DB.ExecContext(ctx, `
		UPDATE stock_transactions
		SET remaining_quantity=$1, order_status=$2, stock_price=$3, wallet_tx_id=$4, cancelled_at=$5
		WHERE stock_tx_id=$6`,
		current.RemainingQuantity, string(current.OrderStatus), current.StockPrice, current.WalletTxID, current.CancelledAt, stockTxID,
	)
	if err != nil {
		return fmt.Errorf("update stock transaction: %w", err)
	}
	return nil
}

func (j *TransactionJournal) GetStockTx(ctx context.Context, stockTxID string) (model.StockTransaction, error) {
	var tx model.StockTransaction
	var orderType, orderStatus string
	err := j.DB.QueryRowContext(ctx, `
		SELECT stock_tx_id, parent_stock_tx_id, user_id, stock_id, is_buy, order_type,
		       quantity, remaining_quantity, stock_price, order_status, wallet_tx_id, created_at, cancelled_at
		FROM stock_transactions WHERE stock_tx_id=$1`, stockTxID,
	).Scan(&tx.StockTxID, &tx.ParentStockTxID, &tx.UserID, &tx.StockID, &tx.IsBuy, &orderType,
		&tx.Quantity, &tx.RemainingQuantity, &tx.StockPrice, &orderStatus, &tx.WalletTxID, &tx.Timestamp, &tx.CancelledAt)
	if err == sql.ErrNoRows {
		return model.StockTransaction{}, model.NewError(model.KindNotFound, "no such stock_tx_id")
	}
	if err != nil {
		return model.StockTransaction{}, fmt.Errorf("get stock transaction: %w", err)
	}
	tx.OrderType = model.OrderType(orderType)
	tx.OrderStatus = model.OrderStatus(orderStatus)
	return tx, nil
}

func (j *TransactionJournal) AppendWalletTx(ctx context.Context, entry model.WalletTransactionEntry) error {
	_, err := j.DB.ExecContext(ctx, `
		INSERT INTO wallet_transactions (wallet_tx_id, stock_tx_id, user_id, is_debit, amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.WalletTxID, entry.StockTxID, entry.UserID, entry.IsDebit, entry.Amount, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append wallet transaction: %w", err)
	}
	return nil
}

func (j *TransactionJournal) ListStockTxByUser(ctx context.Context, userID string) ([]model.StockTransaction, error) {
	rows, err := j.DB.QueryContext(ctx, `
		SELECT stock_tx_id, parent_stock_tx_id, user_id, stock_id, is_buy, order_type,
		       quantity, remaining_quantity, stock_price, order_status, wallet_tx_id, created_at, cancelled_at
		FROM stock_transactions WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list stock transactions: %w", err)
	}
	defer rows.Close()
	return scanStockTxRows(rows)
}

func (j *TransactionJournal) ListWalletTxByUser(ctx context.Context, userID string) ([]model.WalletTransactionEntry, error) {
	rows, err := j.DB.QueryContext(ctx, `
		SELECT wallet_tx_id, stock_tx_id, user_id, is_debit, amount, created_at
		FROM wallet_transactions WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()
	var out []model.WalletTransactionEntry
	for rows.Next() {
		var e model.WalletTransactionEntry
		if err := rows.Scan(&e.WalletTxID, &e.StockTxID, &e.UserID, &e.IsDebit, &e.Amount, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (j *TransactionJournal) ListRestingForBoot(ctx context.Context) ([]model.StockTransaction, error) {
	rows, err := j.DB.QueryContext(ctx, `
		SELECT stock_tx_id, parent_stock_tx_id, user_id, stock_id, is_buy, order_type,
		       quantity, remaining_quantity, stock_price, order_status, wallet_tx_id, created_at, cancelled_at
		FROM stock_transactions
		WHERE parent_stock_tx_id IS NULL
		  AND order_status IN ($1,$2,$3)
		ORDER BY created_at`,
		string(model.StatusInProgress), string(model.StatusPartiallyCompleted), string(model.StatusIncomplete),
	)
	if err != nil {
		return nil, fmt.Errorf("list resting transactions: %w", err)
	}
	defer rows.Close()
	return scanStockTxRows(rows)
}

func scanStockTxRows(rows *sql.Rows) ([]model.StockTransaction, error) {
	var out []model.StockTransaction
	for rows.Next() {
		var tx model.StockTransaction
		var orderType, orderStatus string
		if err := rows.Scan(&tx.StockTxID, &tx.ParentStockTxID, &tx.UserID, &tx.StockID, &tx.IsBuy, &orderType,
			&tx.Quantity, &tx.RemainingQuantity, &tx.StockPrice, &orderStatus, &tx.WalletTxID, &tx.Timestamp, &tx.CancelledAt); err != nil {
			return nil, fmt.Errorf("scan stock transaction: %w", err)
		}
		tx.OrderType = model.OrderType(orderType)
		tx.OrderStatus = model.OrderStatus(orderStatus)
		out = append(out, tx)
	}
	return out, nil
}
