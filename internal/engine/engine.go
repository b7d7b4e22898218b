// Package engine is the Matching Engine: it owns one Order Book per
// stock_id behind a per-stock mutex, and is the only code that ever
// mutates a book or writes through a port (the façade only reads the
// journal for its history endpoints). Mirrors the teacher's
// command-serialized MarketEngine in spirit (one owner per market) but
// serializes with a plain mutex per spec.md §5 rather than a command
// channel, since this domain has no long-running settlement step.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"dayquant-matching-engine/internal/book"
	"dayquant-matching-engine/internal/metrics"
	"dayquant-matching-engine/internal/model"
	"dayquant-matching-engine/internal/ports"
)

// PublishFunc is the optional hook the Engine calls with a "best_price"
// event after a sell is accepted and a "trade" event after every fill;
// queued buys and cancellations publish nothing. Passed in from cmd/server wired to
// the WebSocket hub; nil in tests. Never on the matching path's success
// depends on it returning — it is fire-and-forget.
type PublishFunc func(stockID, eventType string, payload any)

type stockLock struct {
	mu   sync.Mutex
	book *book.Book
}

// Engine mediates every PlaceBuy/PlaceSell/MatchQueued/Cancel/BestPrices
// call between the in-memory Order Book and the four ports.
type Engine struct {
	wallet    ports.WalletLedger
	portfolio ports.PortfolioStore
	journal   ports.TransactionJournal
	catalog   ports.StockCatalog
	publish   PublishFunc
	metrics   *metrics.Collector
	logger    zerolog.Logger

	seq atomic.Int64

	mu    sync.RWMutex
	books map[string]*stockLock
}

// New builds an Engine around its four ports. publish and collector may
// both be nil.
func New(wallet ports.WalletLedger, portfolio ports.PortfolioStore, journal ports.TransactionJournal, catalog ports.StockCatalog, publish PublishFunc, collector *metrics.Collector, logger zerolog.Logger) *Engine {
	return &Engine{
		wallet:    wallet,
		portfolio: portfolio,
		journal:   journal,
		catalog:   catalog,
		publish:   publish,
		metrics:   collector,
		logger:    logger,
		books:     make(map[string]*stockLock),
	}
}

// Boot rebuilds every stock's in-memory book from whatever is still
// resting in the Transaction Journal. Per spec.md, queued market buys do
// not themselves survive a restart with any guarantee of re-delivery,
// but a buy that had already been journaled as IN_PROGRESS/PARTIALLY_
// COMPLETED/INCOMPLETE is still re-queued here so a book rebuilt mid-
// session behaves the same as one that never restarted.
func (e *Engine) Boot(ctx context.Context) error {
	resting, err := e.journal.ListRestingForBoot(ctx)
	if err != nil {
		return model.WrapError(model.KindDependency, "loading resting transactions for boot", err)
	}
	for _, tx := range resting {
		if tx.IsChild() {
			continue
		}
		lock, err := e.getLock(ctx, tx.StockID)
		if err != nil {
			return err
		}
		lock.mu.Lock()
		seq := e.nextSeq()
		if tx.IsBuy {
			lock.book.AddQueuedBuy(&book.QueuedBuy{
				ParentStockTxID: tx.StockTxID,
				UserID:          tx.UserID,
				RemainingQty:    tx.RemainingQuantity,
				AcceptedAt:      tx.Timestamp,
				Seq:             seq,
			})
		} else {
			price := int64(0)
			if tx.StockPrice != nil {
				price = *tx.StockPrice
			}
			lock.book.AddSell(&book.SellEntry{
				StockTxID:    tx.StockTxID,
				UserID:       tx.UserID,
				Price:        price,
				RemainingQty: tx.RemainingQuantity,
				AcceptedAt:   tx.Timestamp,
				Seq:          seq,
			})
		}
		lock.mu.Unlock()
	}
	e.logger.Info().Int("resting_orders", len(resting)).Msg("engine boot: books rebuilt from journal")
	return nil
}

func (e *Engine) nextSeq() int64 { return e.seq.Inc() }

func (e *Engine) getLock(ctx context.Context, stockID string) (*stockLock, error) {
	e.mu.RLock()
	lock, ok := e.books[stockID]
	e.mu.RUnlock()
	if ok {
		return lock, nil
	}

	name, err := e.catalog.NameFor(ctx, stockID)
	if err != nil {
		return nil, model.WrapError(model.KindNotFound, fmt.Sprintf("unknown stock_id %q", stockID), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if lock, ok := e.books[stockID]; ok {
		return lock, nil
	}
	lock = &stockLock{book: book.New(stockID, name)}
	e.books[stockID] = lock
	return lock, nil
}

func (e *Engine) emit(stockID, eventType string, payload any) {
	if e.publish == nil {
		return
	}
	e.publish(stockID, eventType, payload)
}

// PlaceSell accepts a resting LIMIT sell. Shares are reserved out of the
// seller's portfolio immediately (not just on fill), restored only on
// Cancel.
func (e *Engine) PlaceSell(ctx context.Context, userID, stockID string, price int64, qty int) (model.PlaceOrderResult, error) {
	if qty <= 0 || price <= 0 {
		return model.PlaceOrderResult{}, model.NewError(model.KindValidation, "price and quantity must be positive")
	}

	lock, err := e.getLock(ctx, stockID)
	if err != nil {
		return model.PlaceOrderResult{}, err
	}

	lock.mu.Lock()
	defer lock.mu.Unlock()

	owned, err := e.portfolio.GetQuantity(ctx, userID, stockID)
	if err != nil {
		return model.PlaceOrderResult{}, model.WrapError(model.KindDependency, "reading portfolio balance", err)
	}
	if owned < qty {
		return model.PlaceOrderResult{}, model.NewError(model.KindInsufficientStock, "insufficient shares to sell")
	}

	if err := e.portfolio.ApplyDelta(ctx, userID, stockID, lock.book.StockName, -qty); err != nil {
		return model.PlaceOrderResult{}, model.WrapError(model.KindDependency, "reserving shares for sell", err)
	}

	now := time.Now()
	stockTxID := uuid.NewString()
	priceCopy := price
	parent := model.StockTransaction{
		StockTxID:         stockTxID,
		UserID:            userID,
		StockID:           stockID,
		IsBuy:             false,
		OrderType:         model.OrderTypeLimit,
		Quantity:          qty,
		RemainingQuantity: qty,
		StockPrice:        &priceCopy,
		OrderStatus:       model.StatusInProgress,
		Timestamp:         now,
	}
	if err := e.journal.InsertStockTx(ctx, parent); err != nil {
		return model.PlaceOrderResult{}, model.WrapError(model.KindDependency, "journaling sell order", err)
	}

	lock.book.AddSell(&book.SellEntry{
		StockTxID:    stockTxID,
		UserID:       userID,
		Price:        price,
		RemainingQty: qty,
		AcceptedAt:   now,
		Seq:          e.nextSeq(),
	})

	e.emit(stockID, "best_price", lock.book.BestSell())
	if e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues("sell").Inc()
	}
	e.logger.Info().Str("stock_id", stockID).Str("user_id", userID).Int("qty", qty).Int64("price", price).Msg("sell accepted")

	return model.PlaceOrderResult{OrderStatus: model.StatusInProgress, StockTxID: stockTxID}, nil
}

// PlaceBuy accepts a MARKET buy and immediately attempts to match it
// against resting sells, clamping each fill to what the buyer can
// currently afford, queuing whatever does not fill.
func (e *Engine) PlaceBuy(ctx context.Context, userID, stockID string, qty int) (model.PlaceOrderResult, error) {
	if qty <= 0 {
		return model.PlaceOrderResult{}, model.NewError(model.KindValidation, "quantity must be positive")
	}

	lock, err := e.getLock(ctx, stockID)
	if err != nil {
		return model.PlaceOrderResult{}, err
	}

	lock.mu.Lock()
	defer lock.mu.Unlock()

	now := time.Now()
	parentID := uuid.NewString()
	parent := model.StockTransaction{
		StockTxID:         parentID,
		UserID:            userID,
		StockID:           stockID,
		IsBuy:             true,
		OrderType:         model.OrderTypeMarket,
		Quantity:          qty,
		RemainingQuantity: qty,
		OrderStatus:       model.StatusInProgress,
		Timestamp:         now,
	}
	if err := e.journal.InsertStockTx(ctx, parent); err != nil {
		return model.PlaceOrderResult{}, model.WrapError(model.KindDependency, "journaling buy order", err)
	}
	if e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues("buy").Inc()
	}

	remaining := qty
	trades := []model.TradeDetail{}

	for remaining > 0 {
		sellEntry, ok := lock.book.PeekSell(userID)
		if !ok {
			break
		}

		balance, err := e.wallet.Get(ctx, userID)
		if err != nil {
			return model.PlaceOrderResult{}, model.WrapError(model.KindDependency, "reading wallet balance", err)
		}
		maxAffordable := int(balance / sellEntry.Price)
		if maxAffordable <= 0 {
			break
		}

		tradeQty := remaining
		if sellEntry.RemainingQty < tradeQty {
			tradeQty = sellEntry.RemainingQty
		}
		if maxAffordable < tradeQty {
			tradeQty = maxAffordable
		}
		if tradeQty <= 0 {
			break
		}

		detail, err := e.executeFill(ctx, stockID, lock.book.StockName, userID, sellEntry.UserID, parentID, sellEntry.StockTxID, sellEntry.Price, tradeQty)
		if err != nil {
			return model.PlaceOrderResult{}, err
		}
		trades = append(trades, detail)

		lock.book.ConsumeSell(sellEntry.StockTxID, tradeQty)
		remaining -= tradeQty
	}

	filled := qty - remaining
	status := e.finalizeBuyParent(ctx, parentID, qty, remaining, filled, trades)
	if remaining > 0 {
		lock.book.AddQueuedBuy(&book.QueuedBuy{
			ParentStockTxID: parentID,
			UserID:          userID,
			RemainingQty:    remaining,
			AcceptedAt:      now,
			Seq:             e.nextSeq(),
		})
	}

	e.logger.Info().Str("stock_id", stockID).Str("user_id", userID).Int("qty", qty).Int("filled", filled).Str("status", string(status)).Msg("buy processed")

	return model.PlaceOrderResult{OrderStatus: status, StockTxID: parentID, TradeDetails: trades}, nil
}

// finalizeBuyParent patches the buyer's parent record with its final
// remaining quantity, status, and truncated VWAP, and returns the status
// chosen.
func (e *Engine) finalizeBuyParent(ctx context.Context, parentID string, qty, remaining, filled int, trades []model.TradeDetail) model.OrderStatus {
	var status model.OrderStatus
	switch {
	case filled == 0:
		status = model.StatusIncomplete
	case remaining > 0:
		status = model.StatusPartiallyCompleted
	default:
		status = model.StatusCompleted
	}

	patch := ports.StockTxPatch{
		RemainingQuantity: &remaining,
		OrderStatus:       &status,
	}
	if filled > 0 {
		var totalCost int64
		for _, t := range trades {
			totalCost += t.StockPrice * int64(t.Quantity)
		}
		avg := totalCost / int64(filled) // truncation, per original_source
		patch.StockPrice = &avg
	}
	if err := e.journal.UpdateStockTx(ctx, parentID, patch); err != nil {
		e.logger.Error().Err(err).Str("stock_tx_id", parentID).Msg("failed to patch buy parent after fill")
	}
	return status
}

// executeFill settles one match: moves cash, credits the buyer's
// portfolio, journals a child record on each side sharing one
// wallet_tx_id, and patches the seller's parent. Always executes at the
// seller's resting price, never the buyer's (buyers never quote one).
func (e *Engine) executeFill(ctx context.Context, stockID, stockName, buyerID, sellerID, buyParentID, sellParentID string, price int64, qty int) (model.TradeDetail, error) {
	tradeValue := price * int64(qty)
	now := time.Now()
	walletTxID := uuid.NewString()

	if _, err := e.wallet.Add(ctx, buyerID, -tradeValue); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "debiting buyer wallet", err)
	}
	if _, err := e.wallet.Add(ctx, sellerID, tradeValue); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "crediting seller wallet", err)
	}
	if err := e.portfolio.ApplyDelta(ctx, buyerID, stockID, stockName, qty); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "crediting buyer portfolio", err)
	}

	buyChildID := uuid.NewString()
	priceCopy := price
	buyChild := model.StockTransaction{
		StockTxID:         buyChildID,
		ParentStockTxID:   &buyParentID,
		UserID:            buyerID,
		StockID:           stockID,
		IsBuy:             true,
		OrderType:         model.OrderTypeMarket,
		Quantity:          qty,
		RemainingQuantity: 0,
		StockPrice:        &priceCopy,
		OrderStatus:       model.StatusCompleted,
		WalletTxID:        &walletTxID,
		Timestamp:         now,
	}
	sellChildID := uuid.NewString()
	sellChild := model.StockTransaction{
		StockTxID:         sellChildID,
		ParentStockTxID:   &sellParentID,
		UserID:            sellerID,
		StockID:           stockID,
		IsBuy:             false,
		OrderType:         model.OrderTypeLimit,
		Quantity:          qty,
		RemainingQuantity: 0,
		StockPrice:        &priceCopy,
		OrderStatus:       model.StatusCompleted,
		WalletTxID:        &walletTxID,
		Timestamp:         now,
	}
	if err := e.journal.InsertStockTx(ctx, buyChild); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "journaling buyer fill", err)
	}
	if err := e.journal.InsertStockTx(ctx, sellChild); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "journaling seller fill", err)
	}

	if err := e.journal.AppendWalletTx(ctx, model.WalletTransactionEntry{
		UserID: buyerID, StockTxID: buyChildID, WalletTxID: walletTxID, IsDebit: true, Amount: tradeValue, Timestamp: now,
	}); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "journaling buyer wallet entry", err)
	}
	if err := e.journal.AppendWalletTx(ctx, model.WalletTransactionEntry{
		UserID: sellerID, StockTxID: sellChildID, WalletTxID: walletTxID, IsDebit: false, Amount: tradeValue, Timestamp: now,
	}); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "journaling seller wallet entry", err)
	}

	sellParent, err := e.journal.GetStockTx(ctx, sellParentID)
	if err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "reloading sell parent", err)
	}
	newSellRemaining := sellParent.RemainingQuantity - qty
	sellStatus := model.StatusPartiallyCompleted
	if newSellRemaining <= 0 {
		newSellRemaining = 0
		sellStatus = model.StatusCompleted
	}
	if err := e.journal.UpdateStockTx(ctx, sellParentID, ports.StockTxPatch{
		RemainingQuantity: &newSellRemaining,
		OrderStatus:       &sellStatus,
	}); err != nil {
		return model.TradeDetail{}, model.WrapError(model.KindDependency, "patching sell parent after fill", err)
	}

	e.emit(stockID, "trade", map[string]any{"stock_id": stockID, "price": price, "quantity": qty})
	if e.metrics != nil {
		e.metrics.TradesExecuted.Inc()
	}

	return model.TradeDetail{
		StockTxID:       buyChildID,
		ParentStockTxID: buyParentID,
		StockID:         stockID,
		WalletTxID:      walletTxID,
		Quantity:        qty,
		StockPrice:      price,
		BuyerID:         buyerID,
		SellerID:        sellerID,
		Timestamp:       now,
	}, nil
}

// MatchQueued drains as many queued buys against resting sells as
// liquidity allows for one stock, always at the seller's price and
// clamped to the head buyer's current affordability, exactly like step
// 3 of PlaceBuy. Called explicitly after a PlaceSell widens the book;
// never runs on a background timer.
func (e *Engine) MatchQueued(ctx context.Context, stockID string) (int, error) {
	lock, err := e.getLock(ctx, stockID)
	if err != nil {
		return 0, err
	}

	lock.mu.Lock()
	defer lock.mu.Unlock()

	filledCount := 0
	for lock.book.HasSells() && lock.book.HasQueuedBuys() {
		headBuy, ok := lock.book.PeekQueuedBuy()
		if !ok {
			break
		}
		sellEntry, ok := lock.book.PeekSell(headBuy.UserID)
		if !ok {
			break
		}

		balance, err := e.wallet.Get(ctx, headBuy.UserID)
		if err != nil {
			return filledCount, model.WrapError(model.KindDependency, "reading wallet balance", err)
		}
		maxAffordable := int(balance / sellEntry.Price)
		if maxAffordable <= 0 {
			break
		}

		tradeQty := headBuy.RemainingQty
		if sellEntry.RemainingQty < tradeQty {
			tradeQty = sellEntry.RemainingQty
		}
		if maxAffordable < tradeQty {
			tradeQty = maxAffordable
		}
		if tradeQty <= 0 {
			break
		}

		if _, err := e.executeFill(ctx, stockID, lock.book.StockName, headBuy.UserID, sellEntry.UserID, headBuy.ParentStockTxID, sellEntry.StockTxID, sellEntry.Price, tradeQty); err != nil {
			return filledCount, err
		}

		remaining, buyRemoved := lock.book.ConsumeQueuedBuy(headBuy.ParentStockTxID, tradeQty)
		lock.book.ConsumeSell(sellEntry.StockTxID, tradeQty)
		filledCount++

		status := model.StatusPartiallyCompleted
		if buyRemoved {
			status = model.StatusCompleted
		}
		if err := e.patchQueuedBuyAfterFill(ctx, headBuy.ParentStockTxID, remaining, status, sellEntry.Price, tradeQty); err != nil {
			return filledCount, err
		}
	}
	return filledCount, nil
}

// patchQueuedBuyAfterFill re-reads the buyer parent's own prior fill
// (quantity - remaining, price) and blends it with the fill just
// executed to produce the running VWAP, the same truncated-average rule
// finalizeBuyParent applies within a single PlaceBuy call. Needed here
// because a queued buy can be completed across several MatchQueued
// calls, each only seeing one fill at a time.
func (e *Engine) patchQueuedBuyAfterFill(ctx context.Context, parentID string, remaining int, status model.OrderStatus, fillPrice int64, fillQty int) error {
	parent, err := e.journal.GetStockTx(ctx, parentID)
	if err != nil {
		return model.WrapError(model.KindDependency, "reloading queued buy parent", err)
	}

	previouslyFilled := parent.Quantity - parent.RemainingQuantity
	var previousCost int64
	if parent.StockPrice != nil {
		previousCost = *parent.StockPrice * int64(previouslyFilled)
	}
	totalFilled := previouslyFilled + fillQty
	avg := (previousCost + fillPrice*int64(fillQty)) / int64(totalFilled) // truncation, per original_source

	return e.journal.UpdateStockTx(ctx, parentID, ports.StockTxPatch{
		RemainingQuantity: &remaining,
		OrderStatus:       &status,
		StockPrice:        &avg,
	})
}

// Cancel withdraws a still-resting order. A LIMIT sell's reserved shares
// are restored to the seller's portfolio; a queued MARKET buy's
// unfilled remainder is simply dropped, since no funds were ever
// reserved for it up front.
func (e *Engine) Cancel(ctx context.Context, userID, stockTxID string) error {
	parent, err := e.journal.GetStockTx(ctx, stockTxID)
	if err != nil {
		return model.WrapError(model.KindNotFound, "unknown stock_tx_id", err)
	}
	if parent.IsChild() {
		return model.NewError(model.KindValidation, "cannot cancel a fill record directly")
	}
	if parent.UserID != userID {
		return model.NewError(model.KindAuth, "cannot cancel another user's order")
	}
	if parent.OrderStatus == model.StatusCompleted || parent.OrderStatus == model.StatusCancelled {
		return model.NewError(model.KindConflict, "order is already in a terminal state")
	}

	lock, err := e.getLock(ctx, parent.StockID)
	if err != nil {
		return err
	}

	lock.mu.Lock()
	defer lock.mu.Unlock()

	now := time.Now()
	if parent.IsBuy {
		if _, ok := lock.book.RemoveQueuedBuy(stockTxID); !ok {
			return model.NewError(model.KindConflict, "order already fully matched")
		}
		cancelled := model.StatusCancelled
		if err := e.journal.UpdateStockTx(ctx, stockTxID, ports.StockTxPatch{OrderStatus: &cancelled, CancelledAt: &now}); err != nil {
			return model.WrapError(model.KindDependency, "patching cancelled buy", err)
		}
		return nil
	}

	sellEntry, ok := lock.book.RemoveSell(stockTxID)
	if !ok {
		return model.NewError(model.KindConflict, "order already fully matched")
	}
	if err := e.portfolio.ApplyDelta(ctx, userID, parent.StockID, lock.book.StockName, sellEntry.RemainingQty); err != nil {
		return model.WrapError(model.KindDependency, "restoring reserved shares", err)
	}
	cancelled := model.StatusCancelled
	if err := e.journal.UpdateStockTx(ctx, stockTxID, ports.StockTxPatch{OrderStatus: &cancelled, CancelledAt: &now}); err != nil {
		return model.WrapError(model.KindDependency, "patching cancelled sell", err)
	}
	return nil
}

// BestPrices returns the lowest resting ask for every known stock,
// ordered lexicographically by stock name.
func (e *Engine) BestPrices(ctx context.Context) ([]model.StockPriceQuote, error) {
	stocks, err := e.catalog.ListStocks(ctx)
	if err != nil {
		return nil, model.WrapError(model.KindDependency, "listing stocks", err)
	}

	quotes := make([]model.StockPriceQuote, 0, len(stocks))
	for _, s := range stocks {
		lock, err := e.getLock(ctx, s.StockID)
		if err != nil {
			return nil, err
		}
		lock.mu.Lock()
		price := lock.book.BestSell()
		lock.mu.Unlock()
		quotes = append(quotes, model.StockPriceQuote{StockID: s.StockID, StockName: s.StockName, CurrentPrice: price})
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].StockName < quotes[j].StockName })
	return quotes, nil
}
