package book

import (
	"testing"
	"time"
)

func sellAt(stockTxID, userID string, price int64, qty int, seq int64) *SellEntry {
	return &SellEntry{
		StockTxID:    stockTxID,
		UserID:       userID,
		Price:        price,
		RemainingQty: qty,
		AcceptedAt:   time.Now(),
		Seq:          seq,
	}
}

func TestAddAndBestSell(t *testing.T) {
	b := New("AAA", "Acme")
	if p := b.BestSell(); p != nil {
		t.Fatalf("expected nil best sell on empty book, got %v", *p)
	}
	b.AddSell(sellAt("tx1", "alice", 150, 10, 1))
	b.AddSell(sellAt("tx2", "bob", 140, 5, 2))
	p := b.BestSell()
	if p == nil || *p != 140 {
		t.Fatalf("expected best sell 140, got %v", p)
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddSell(sellAt("tx1", "alice", 100, 10, 1))
	b.AddSell(sellAt("tx2", "bob", 100, 5, 2))
	e, ok := b.PeekSell("")
	if !ok {
		t.Fatalf("expected a resting sell")
	}
	if e.StockTxID != "tx1" {
		t.Fatalf("expected earliest order at a tied price to win, got %s", e.StockTxID)
	}
}

func TestSelfTradePreventionSkipsOwnOrder(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddSell(sellAt("tx1", "alice", 100, 10, 1))
	b.AddSell(sellAt("tx2", "bob", 105, 10, 2))
	e, ok := b.PeekSell("alice")
	if !ok {
		t.Fatalf("expected a non-self resting sell")
	}
	if e.StockTxID != "tx2" {
		t.Fatalf("expected alice's own order skipped, got %s", e.StockTxID)
	}
}

func TestSelfTradePreventionNoEligibleSeller(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddSell(sellAt("tx1", "alice", 100, 10, 1))
	if _, ok := b.PeekSell("alice"); ok {
		t.Fatalf("expected no eligible seller when alice is the only seller")
	}
}

func TestConsumeSellPartial(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddSell(sellAt("tx1", "alice", 100, 10, 1))
	remaining, removed := b.ConsumeSell("tx1", 4)
	if removed || remaining != 6 {
		t.Fatalf("expected 6 remaining and not removed, got %d removed=%v", remaining, removed)
	}
	if p := b.BestSell(); p == nil || *p != 100 {
		t.Fatalf("expected best sell to remain 100, got %v", p)
	}
}

func TestConsumeSellFullRemovesEntry(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddSell(sellAt("tx1", "alice", 100, 10, 1))
	b.AddSell(sellAt("tx2", "bob", 110, 5, 2))
	remaining, removed := b.ConsumeSell("tx1", 10)
	if !removed || remaining != 0 {
		t.Fatalf("expected full consume to remove entry, got remaining=%d removed=%v", remaining, removed)
	}
	if p := b.BestSell(); p == nil || *p != 110 {
		t.Fatalf("expected best sell to advance to 110, got %v", p)
	}
}

func TestRemoveSellForCancel(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddSell(sellAt("tx1", "alice", 100, 10, 1))
	e, ok := b.RemoveSell("tx1")
	if !ok || e.RemainingQty != 10 {
		t.Fatalf("expected removed entry with original quantity, got %+v ok=%v", e, ok)
	}
	if b.HasSells() {
		t.Fatalf("expected book empty after removing only resting sell")
	}
}

func TestRemoveSellUnknownTx(t *testing.T) {
	b := New("AAA", "Acme")
	if _, ok := b.RemoveSell("missing"); ok {
		t.Fatalf("expected false removing an unknown stock_tx_id")
	}
}

func TestQueuedBuyFIFO(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddQueuedBuy(&QueuedBuy{ParentStockTxID: "p1", UserID: "carol", RemainingQty: 10, AcceptedAt: time.Now(), Seq: 1})
	b.AddQueuedBuy(&QueuedBuy{ParentStockTxID: "p2", UserID: "dave", RemainingQty: 5, AcceptedAt: time.Now(), Seq: 2})
	head, ok := b.PeekQueuedBuy()
	if !ok || head.ParentStockTxID != "p1" {
		t.Fatalf("expected p1 at head, got %+v", head)
	}
	if _, removed := b.ConsumeQueuedBuy("p1", 10); !removed {
		t.Fatalf("expected p1 fully consumed and popped")
	}
	head, ok = b.PeekQueuedBuy()
	if !ok || head.ParentStockTxID != "p2" {
		t.Fatalf("expected p2 at head after p1 popped, got %+v", head)
	}
}

func TestConsumeQueuedBuyPartial(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddQueuedBuy(&QueuedBuy{ParentStockTxID: "p1", UserID: "carol", RemainingQty: 10, AcceptedAt: time.Now(), Seq: 1})
	remaining, removed := b.ConsumeQueuedBuy("p1", 4)
	if removed || remaining != 6 {
		t.Fatalf("expected 6 remaining not removed, got %d removed=%v", remaining, removed)
	}
}

func TestRemoveQueuedBuyMidQueue(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddQueuedBuy(&QueuedBuy{ParentStockTxID: "p1", UserID: "carol", RemainingQty: 10, AcceptedAt: time.Now(), Seq: 1})
	b.AddQueuedBuy(&QueuedBuy{ParentStockTxID: "p2", UserID: "dave", RemainingQty: 5, AcceptedAt: time.Now(), Seq: 2})
	b.AddQueuedBuy(&QueuedBuy{ParentStockTxID: "p3", UserID: "erin", RemainingQty: 1, AcceptedAt: time.Now(), Seq: 3})
	q, ok := b.RemoveQueuedBuy("p2")
	if !ok || q.UserID != "dave" {
		t.Fatalf("expected to remove p2/dave, got %+v ok=%v", q, ok)
	}
	head, _ := b.PeekQueuedBuy()
	if head.ParentStockTxID != "p1" {
		t.Fatalf("expected p1 still at head after removing p2, got %s", head.ParentStockTxID)
	}
}

func TestDuplicateStockTxIDOverwritesIndex(t *testing.T) {
	b := New("AAA", "Acme")
	b.AddSell(sellAt("tx1", "alice", 100, 10, 1))
	b.AddSell(sellAt("tx1", "alice", 90, 10, 2))
	if size := b.sells.Size(); size != 2 {
		t.Fatalf("expected both tree nodes to remain distinct price keys, got size %d", size)
	}
	if key, ok := b.sellByTx["tx1"]; !ok || key.Price != 90 {
		t.Fatalf("expected index to point at the latest insert, got %+v ok=%v", key, ok)
	}
}
