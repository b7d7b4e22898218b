package engine

import (
	"context"
	"sync"

	"dayquant-matching-engine/internal/model"
	"dayquant-matching-engine/internal/ports"
)

// fakeWallet is an in-memory ports.WalletLedger for tests.
type fakeWallet struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newFakeWallet() *fakeWallet { return &fakeWallet{balances: make(map[string]int64)} }

func (w *fakeWallet) Get(ctx context.Context, userID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID], nil
}

func (w *fakeWallet) Add(ctx context.Context, userID string, delta int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[userID]+delta < 0 {
		return 0, model.NewError(model.KindInsufficientFunds, "wallet balance would go negative")
	}
	w.balances[userID] += delta
	return w.balances[userID], nil
}

// fakePortfolio is an in-memory ports.PortfolioStore for tests.
type fakePortfolio struct {
	mu    sync.Mutex
	held  map[string]map[string]int
	names map[string]map[string]string
}

func newFakePortfolio() *fakePortfolio {
	return &fakePortfolio{held: make(map[string]map[string]int), names: make(map[string]map[string]string)}
}

func (p *fakePortfolio) GetQuantity(ctx context.Context, userID, stockID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.held[userID]; ok {
		return m[stockID], nil
	}
	return 0, nil
}

func (p *fakePortfolio) ApplyDelta(ctx context.Context, userID, stockID, stockName string, delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held[userID] == nil {
		p.held[userID] = make(map[string]int)
	}
	newQty := p.held[userID][stockID] + delta
	if newQty < 0 {
		return model.NewError(model.KindInsufficientStock, "portfolio would go negative")
	}
	if newQty == 0 {
		delete(p.held[userID], stockID)
	} else {
		p.held[userID][stockID] = newQty
	}
	return nil
}

// fakeJournal is an in-memory ports.TransactionJournal for tests.
type fakeJournal struct {
	mu        sync.Mutex
	stockTx   map[string]model.StockTransaction
	walletTx  []model.WalletTransactionEntry
	insertLog []string
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{stockTx: make(map[string]model.StockTransaction)}
}

func (j *fakeJournal) InsertStockTx(ctx context.Context, tx model.StockTransaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stockTx[tx.StockTxID] = tx
	j.insertLog = append(j.insertLog, tx.StockTxID)
	return nil
}

func (j *fakeJournal) UpdateStockTx(ctx context.Context, stockTxID string, patch ports.StockTxPatch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	tx, ok := j.stockTx[stockTxID]
	if !ok {
		return model.NewError(model.KindNotFound, "no such stock_tx_id")
	}
	if patch.RemainingQuantity != nil {
		tx.RemainingQuantity = *patch.RemainingQuantity
	}
	if patch.OrderStatus != nil {
		tx.OrderStatus = *patch.OrderStatus
	}
	if patch.StockPrice != nil {
		tx.StockPrice = patch.StockPrice
	}
	if patch.WalletTxID != nil {
		tx.WalletTxID = patch.WalletTxID
	}
	if patch.CancelledAt != nil {
		tx.CancelledAt = patch.CancelledAt
	}
	j.stockTx[stockTxID] = tx
	return nil
}

func (j *fakeJournal) GetStockTx(ctx context.Context, stockTxID string) (model.StockTransaction, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	tx, ok := j.stockTx[stockTxID]
	if !ok {
		return model.StockTransaction{}, model.NewError(model.KindNotFound, "no such stock_tx_id")
	}
	return tx, nil
}

func (j *fakeJournal) AppendWalletTx(ctx context.Context, entry model.WalletTransactionEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.walletTx = append(j.walletTx, entry)
	return nil
}

func (j *fakeJournal) ListStockTxByUser(ctx context.Context, userID string) ([]model.StockTransaction, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.StockTransaction
	for _, tx := range j.stockTx {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (j *fakeJournal) ListWalletTxByUser(ctx context.Context, userID string) ([]model.WalletTransactionEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.WalletTransactionEntry
	for _, e := range j.walletTx {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *fakeJournal) ListRestingForBoot(ctx context.Context) ([]model.StockTransaction, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.StockTransaction
	for _, tx := range j.stockTx {
		if tx.IsChild() {
			continue
		}
		switch tx.OrderStatus {
		case model.StatusInProgress, model.StatusPartiallyCompleted, model.StatusIncomplete:
			out = append(out, tx)
		}
	}
	return out, nil
}

// fakeCatalog is an in-memory ports.StockCatalog for tests.
type fakeCatalog struct {
	stocks []model.Stock
}

func newFakeCatalog(stocks ...model.Stock) *fakeCatalog { return &fakeCatalog{stocks: stocks} }

func (c *fakeCatalog) NameFor(ctx context.Context, stockID string) (string, error) {
	for _, s := range c.stocks {
		if s.StockID == stockID {
			return s.StockName, nil
		}
	}
	return "", model.NewError(model.KindNotFound, "unknown stock_id")
}

func (c *fakeCatalog) ListStocks(ctx context.Context) ([]model.Stock, error) {
	return c.stocks, nil
}
