package store

import (
	"context"
	"database/sql"
	"fmt"

	"dayquant-matching-engine/internal/model"
)

// PortfolioStore implements ports.PortfolioStore on top of Store.
type PortfolioStore struct{ *Store }

func NewPortfolioStore(s *Store) *PortfolioStore { return &PortfolioStore{s} }

func (p *PortfolioStore) GetQuantity(ctx context.Context, userID, stockID string) (int, error) {
	var qty int
	err := p.DB.QueryRowContext(ctx,
		`SELECT quantity_owned FROM portfolio_entries WHERE user_id=$1 AND stock_id=$2`, userID, stockID,
	).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get portfolio quantity: %w", err)
	}
	return qty, nil
}

// ApplyDelta adds delta to the user's holding of stockID, locking the
// row (or its absence) via FOR UPDATE so two concurrent fills on the
// same stock never race past each other.
func (p *PortfolioStore) ApplyDelta(ctx context.Context, userID, stockID, stockName string, delta int) error {
	tx, err := p.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var qty int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity_owned FROM portfolio_entries WHERE user_id=$1 AND stock_id=$2 FOR UPDATE`, userID, stockID,
	).Scan(&qty)
	switch err {
	case sql.ErrNoRows:
		qty = 0
	case nil:
		// fallthrough
	default:
		return fmt.Errorf("lock portfolio entry: %w", err)
	}

	newQty := qty + delta
	if newQty < 0 {
		return model.NewError(model.KindInsufficientStock, "portfolio quantity would go negative")
	}

	if newQty == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_entries WHERE user_id=$1 AND stock_id=$2`, userID, stockID); err != nil {
			return fmt.Errorf("prune empty portfolio entry: %w", err)
		}
	} else if qty == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO portfolio_entries (user_id, stock_id, stock_name, quantity_owned) VALUES ($1,$2,$3,$4)`,
			userID, stockID, stockName, newQty,
		); err != nil {
			return fmt.Errorf("insert portfolio entry: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE portfolio_entries SET quantity_owned=$1 WHERE user_id=$2 AND stock_id=$3`, newQty, userID, stockID,
		); err != nil {
			return fmt.Errorf("update portfolio entry: %w", err)
		}
	}

	return tx.Commit()
}
