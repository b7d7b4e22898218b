// Package model holds the domain types shared by the order book, the
// matching engine, the port adapters, and the façade. Nothing here talks
// to a database or the network.
package model

import "time"

// OrderType distinguishes the two order shapes this system accepts.
// Buys are always MARKET; sells are always LIMIT (see spec Non-goals).
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of a parent stock transaction.
type OrderStatus string

const (
	StatusInProgress         OrderStatus = "IN_PROGRESS"
	StatusCompleted          OrderStatus = "COMPLETED"
	StatusPartiallyCompleted OrderStatus = "PARTIALLY_COMPLETED"
	StatusCancelled          OrderStatus = "CANCELLED"
	// StatusIncomplete marks a MARKET buy that filled zero shares and was
	// queued in its entirety. Not a dead end: MatchQueued or a later
	// PlaceSell's MatchQueued trigger can still bring it to completion.
	StatusIncomplete OrderStatus = "INCOMPLETE"
)

// Stock is a tradable instrument. Created once via the Catalog; never
// deleted by this service.
type Stock struct {
	StockID   string `json:"stock_id"`
	StockName string `json:"stock_name"`
}

// PortfolioEntry is a user's holding in one stock. Removed by the
// Portfolio Store once QuantityOwned reaches zero.
type PortfolioEntry struct {
	UserID        string `json:"user_id"`
	StockID       string `json:"stock_id"`
	StockName     string `json:"stock_name"`
	QuantityOwned int    `json:"quantity_owned"`
}

// StockTransaction is both the parent record created on PlaceBuy/PlaceSell
// and the child record appended per partial fill. Children set
// ParentStockTxID; parents leave it nil.
type StockTransaction struct {
	StockTxID       string  `json:"stock_tx_id"`
	ParentStockTxID *string `json:"parent_stock_tx_id"`
	UserID          string  `json:"user_id"`
	StockID         string  `json:"stock_id"`
	IsBuy           bool    `json:"is_buy"`
	OrderType       OrderType `json:"order_type"`
	Quantity        int     `json:"quantity"`
	RemainingQuantity int   `json:"remaining_quantity"`
	// StockPrice is nil only for a parent MARKET buy that has not filled
	// a single share yet (queued with an advisory price of "market").
	StockPrice  *int64      `json:"stock_price"`
	OrderStatus OrderStatus `json:"order_status"`
	WalletTxID  *string     `json:"wallet_tx_id"`
	Timestamp   time.Time   `json:"time_stamp"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

// IsChild reports whether this record is a partial-fill child rather than
// a parent order.
func (t StockTransaction) IsChild() bool { return t.ParentStockTxID != nil }

// WalletTransactionEntry is one ledger-adjacent journal line: a single
// counterparty's side of one partial fill.
type WalletTransactionEntry struct {
	UserID     string    `json:"user_id"`
	StockTxID  string    `json:"stock_tx_id"`
	WalletTxID string    `json:"wallet_tx_id"`
	IsDebit    bool      `json:"is_debit"`
	Amount     int64     `json:"amount"`
	Timestamp  time.Time `json:"time_stamp"`
}

// TradeDetail is the trade-level view returned to a caller of PlaceBuy,
// one entry per partial fill executed during that call.
type TradeDetail struct {
	StockTxID       string    `json:"stock_tx_id"`
	ParentStockTxID string    `json:"parent_stock_tx_id"`
	StockID         string    `json:"stock_id"`
	WalletTxID      string    `json:"wallet_tx_id"`
	Quantity        int       `json:"quantity"`
	StockPrice      int64     `json:"stock_price"`
	BuyerID         string    `json:"buyer_id"`
	SellerID        string    `json:"seller_id"`
	Timestamp       time.Time `json:"time_stamp"`
}

// StockPriceQuote is one row of a BestPrices snapshot.
type StockPriceQuote struct {
	StockID      string `json:"stock_id"`
	StockName    string `json:"stock_name"`
	CurrentPrice *int64 `json:"current_price"`
}

// PlaceOrderResult is the Matching Engine's answer to PlaceBuy or
// PlaceSell, shaped directly into the façade's response envelope.
type PlaceOrderResult struct {
	OrderStatus  OrderStatus   `json:"order_status"`
	StockTxID    string        `json:"stock_tx_id"`
	TradeDetails []TradeDetail `json:"trade_details"`
}
