// Package ports declares the four boundary contracts the Matching
// Engine depends on: Wallet Ledger, Portfolio Store, Transaction
// Journal, and Stock Catalog. internal/store holds the Postgres
// adapters; internal/engine/fakes_test.go holds in-memory fakes for
// tests that never need a real database.
package ports

import (
	"context"
	"time"

	"dayquant-matching-engine/internal/model"
)

// WalletLedger is the sole source of truth for a user's available cash.
// Implementations must serialize concurrent Add calls for the same
// user_id (e.g. via SELECT ... FOR UPDATE) so Get/Add never race.
type WalletLedger interface {
	// Get returns the user's current balance, or 0 if the user has no
	// balance yet; it creates nothing (Add initializes on first use).
	Get(ctx context.Context, userID string) (int64, error)
	// Add applies delta (positive credit, negative debit) atomically and
	// returns the resulting balance. Implementations must not allow the
	// balance to go negative; callers are expected to have already
	// checked affordability.
	Add(ctx context.Context, userID string, delta int64) (int64, error)
}

// PortfolioStore tracks per-user, per-stock share counts.
type PortfolioStore interface {
	// GetQuantity returns the shares userID owns of stockID, 0 if no
	// entry exists.
	GetQuantity(ctx context.Context, userID, stockID string) (int, error)
	// ApplyDelta adds delta (positive or negative) to the user's holding
	// of stockID, creating the entry (using stockName) if absent and
	// delta is positive, and pruning it once the quantity reaches zero.
	// Returns a model.Error of Kind model.KindInsufficientStock if delta
	// is negative and would drive the quantity below zero.
	ApplyDelta(ctx context.Context, userID, stockID, stockName string, delta int) error
}

// StockTxPatch describes a partial update to an existing stock
// transaction; nil fields are left untouched.
type StockTxPatch struct {
	RemainingQuantity *int
	OrderStatus       *model.OrderStatus
	StockPrice        *int64
	WalletTxID        *string
	CancelledAt       *time.Time
}

// TransactionJournal is the append/patch log of stock and wallet
// transactions. It never drives matching decisions; the in-memory
// Order Book is the source of truth for what is still resting.
type TransactionJournal interface {
	InsertStockTx(ctx context.Context, tx model.StockTransaction) error
	UpdateStockTx(ctx context.Context, stockTxID string, patch StockTxPatch) error
	GetStockTx(ctx context.Context, stockTxID string) (model.StockTransaction, error)
	AppendWalletTx(ctx context.Context, entry model.WalletTransactionEntry) error
	ListStockTxByUser(ctx context.Context, userID string) ([]model.StockTransaction, error)
	ListWalletTxByUser(ctx context.Context, userID string) ([]model.WalletTransactionEntry, error)
	// ListRestingForBoot returns every parent transaction still carrying
	// unfilled quantity (IN_PROGRESS, PARTIALLY_COMPLETED, or INCOMPLETE),
	// used to rebuild each stock's in-memory book at process start.
	ListRestingForBoot(ctx context.Context) ([]model.StockTransaction, error)
}

// StockCatalog resolves stock_id to its display name and enumerates the
// known universe of stocks for BestPrices.
type StockCatalog interface {
	NameFor(ctx context.Context, stockID string) (string, error)
	ListStocks(ctx context.Context) ([]model.Stock, error)
}
