package store

import (
	"context"
	"database/sql"
	"fmt"

	"dayquant-matching-engine/internal/model"
)

// StockCatalog implements ports.StockCatalog on top of Store. Stock
// creation is an external concern (spec.md §1); this adapter only reads.
type StockCatalog struct{ *Store }

func NewStockCatalog(s *Store) *StockCatalog { return &StockCatalog{s} }

func (c *StockCatalog) NameFor(ctx context.Context, stockID string) (string, error) {
	var name string
	err := c.DB.QueryRowContext(ctx, `SELECT stock_name FROM stocks WHERE stock_id=$1`, stockID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", model.NewError(model.KindNotFound, "unknown stock_id")
	}
	if err != nil {
		return "", fmt.Errorf("get stock name: %w", err)
	}
	return name, nil
}

func (c *StockCatalog) ListStocks(ctx context.Context) ([]model.Stock, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT stock_id, stock_name FROM stocks ORDER BY stock_name`)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	defer rows.Close()
	var out []model.Stock
	for rows.Next() {
		var s model.Stock
		if err := rows.Scan(&s.StockID, &s.StockName); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}
