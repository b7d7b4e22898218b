// Package facade is the Engine Façade: it validates requests, maps
// domain errors onto the façade's error taxonomy, and renders the
// uniform response envelope. internal/facade/server.go binds these to
// HTTP; this file holds the logic a transport-agnostic caller would
// also need.
package facade

import (
	"net/http"

	"github.com/hashicorp/go-multierror"

	"dayquant-matching-engine/internal/model"
)

// PlaceOrderRequest is the wire shape of a placeStockOrder body. Price
// is required for sells, forbidden for buys.
type PlaceOrderRequest struct {
	StockID  string `json:"stock_id"`
	IsBuy    bool   `json:"is_buy"`
	Quantity int    `json:"quantity"`
	Price    *int64 `json:"price,omitempty"`
}

// Validate collects every violation instead of stopping at the first,
// using go-multierror so the façade can render a single VALIDATION
// envelope naming every bad field at once.
func (req PlaceOrderRequest) Validate() error {
	var result *multierror.Error
	if req.StockID == "" {
		result = multierror.Append(result, model.NewError(model.KindValidation, "stock_id is required"))
	}
	if req.Quantity <= 0 {
		result = multierror.Append(result, model.NewError(model.KindValidation, "quantity must be a positive integer"))
	}
	if req.IsBuy && req.Price != nil {
		result = multierror.Append(result, model.NewError(model.KindValidation, "buy orders may not specify a price"))
	}
	if !req.IsBuy && (req.Price == nil || *req.Price <= 0) {
		result = multierror.Append(result, model.NewError(model.KindValidation, "sell orders require a positive price"))
	}
	return result.ErrorOrNil()
}

// StatusFor maps a domain ErrorKind to its HTTP status code per the
// façade's error envelope contract.
func StatusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindAuth:
		return http.StatusUnauthorized
	case model.KindInsufficientStock:
		return http.StatusUnprocessableEntity
	case model.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
