// Package book is the in-memory Order Book: the only place sell-side
// price/time priority and the queued-buy FIFO are decided. It never
// talks to a port; the engine package mediates all persistence around
// it. Generalizes the sort-after-insert price level seen in the
// teacher's engine package into a balanced tree, per the design note
// that a production book should never re-sort on every insert.
package book

import (
	"time"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// SellEntry is one resting LIMIT sell, one per price-tree leaf.
type SellEntry struct {
	StockTxID    string
	UserID       string
	Price        int64
	RemainingQty int
	AcceptedAt   time.Time
	Seq          int64
}

// QueuedBuy is one unfilled (or partially filled) MARKET buy waiting for
// liquidity. Buys have no price of their own — they always trade at the
// resting seller's price — so the queue is a plain FIFO slice rather
// than a priced structure.
type QueuedBuy struct {
	ParentStockTxID string
	UserID          string
	RemainingQty    int
	AcceptedAt      time.Time
	Seq             int64
}

// priceKey orders the sell-side tree first by price ascending, then by
// acceptance sequence ascending, giving FIFO within a price level.
type priceKey struct {
	Price int64
	Seq   int64
}

func comparePriceKey(a, b priceKey) int {
	switch {
	case a.Price < b.Price:
		return -1
	case a.Price > b.Price:
		return 1
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	default:
		return 0
	}
}

// Book is the single-stock order book: a priced tree for resting sells
// and a FIFO queue for unmatched market buys. Every method assumes the
// caller already holds that stock's engine-level lock; Book itself does
// no locking.
type Book struct {
	StockID   string
	StockName string

	sells      *rbt.Tree[priceKey, *SellEntry]
	sellByTx   map[string]priceKey
	bestSell   *SellEntry
	queuedBuys []*QueuedBuy
}

// New creates an empty book for one stock.
func New(stockID, stockName string) *Book {
	return &Book{
		StockID:   stockID,
		StockName: stockName,
		sells:     rbt.NewWith[priceKey, *SellEntry](comparePriceKey),
		sellByTx:  make(map[string]priceKey),
	}
}

// AddSell inserts a resting limit sell and refreshes the best-price
// cache.
func (b *Book) AddSell(e *SellEntry) {
	key := priceKey{Price: e.Price, Seq: e.Seq}
	b.sells.Put(key, e)
	b.sellByTx[e.StockTxID] = key
	b.refreshBestSell()
}

// AddQueuedBuy appends a market buy to the back of the queue.
func (b *Book) AddQueuedBuy(q *QueuedBuy) {
	b.queuedBuys = append(b.queuedBuys, q)
}

// BestSell returns the lowest resting sell price, or nil if the sell
// side is empty.
func (b *Book) BestSell() *int64 {
	if b.bestSell == nil {
		return nil
	}
	p := b.bestSell.Price
	return &p
}

// PeekSell returns the lowest-priced, earliest resting sell whose
// UserID is not skipUser, without mutating the book (self-trade
// prevention per spec: buyer and seller may never be the same user).
func (b *Book) PeekSell(skipUser string) (*SellEntry, bool) {
	it := b.sells.Iterator()
	for it.Next() {
		e := it.Value()
		if e.UserID != skipUser {
			return e, true
		}
	}
	return nil, false
}

// ConsumeSell reduces a resting sell's remaining quantity by qty,
// removing it from the tree entirely once it reaches zero. Returns the
// quantity left resting (0 if removed).
func (b *Book) ConsumeSell(stockTxID string, qty int) (remaining int, removed bool) {
	key, ok := b.sellByTx[stockTxID]
	if !ok {
		return 0, false
	}
	e, ok := b.sells.Get(key)
	if !ok {
		return 0, false
	}
	e.RemainingQty -= qty
	if e.RemainingQty <= 0 {
		b.sells.Remove(key)
		delete(b.sellByTx, stockTxID)
		b.refreshBestSell()
		return 0, true
	}
	b.refreshBestSell()
	return e.RemainingQty, false
}

// RemoveSell removes a resting sell outright (used by Cancel), returning
// it so the caller can restore the seller's reserved shares.
func (b *Book) RemoveSell(stockTxID string) (*SellEntry, bool) {
	key, ok := b.sellByTx[stockTxID]
	if !ok {
		return nil, false
	}
	e, ok := b.sells.Get(key)
	if !ok {
		return nil, false
	}
	b.sells.Remove(key)
	delete(b.sellByTx, stockTxID)
	b.refreshBestSell()
	return e, true
}

// PeekQueuedBuy returns the head of the buy queue without removing it.
func (b *Book) PeekQueuedBuy() (*QueuedBuy, bool) {
	if len(b.queuedBuys) == 0 {
		return nil, false
	}
	return b.queuedBuys[0], true
}

// ConsumeQueuedBuy reduces the head queued buy's remaining quantity,
// popping it once exhausted. Returns (0, false) and changes nothing if
// the queue is empty or the head does not match parentStockTxID —
// callers must PeekQueuedBuy first.
func (b *Book) ConsumeQueuedBuy(parentStockTxID string, qty int) (remaining int, removed bool) {
	if len(b.queuedBuys) == 0 || b.queuedBuys[0].ParentStockTxID != parentStockTxID {
		return 0, false
	}
	head := b.queuedBuys[0]
	head.RemainingQty -= qty
	if head.RemainingQty <= 0 {
		b.queuedBuys = b.queuedBuys[1:]
		return 0, true
	}
	return head.RemainingQty, false
}

// RemoveQueuedBuy removes a queued buy by parent tx id from anywhere in
// the queue (used by Cancel, which is not restricted to the head).
func (b *Book) RemoveQueuedBuy(parentStockTxID string) (*QueuedBuy, bool) {
	for i, q := range b.queuedBuys {
		if q.ParentStockTxID == parentStockTxID {
			b.queuedBuys = append(b.queuedBuys[:i], b.queuedBuys[i+1:]...)
			return q, true
		}
	}
	return nil, false
}

// HasSells reports whether any sell is resting.
func (b *Book) HasSells() bool { return !b.sells.Empty() }

// HasQueuedBuys reports whether any market buy is waiting.
func (b *Book) HasQueuedBuys() bool { return len(b.queuedBuys) > 0 }

func (b *Book) refreshBestSell() {
	node := b.sells.Left()
	if node == nil {
		b.bestSell = nil
		return
	}
	b.bestSell = node.Value
}
