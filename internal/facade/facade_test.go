package facade

import (
	"net/http"
	"strings"
	"testing"

	"dayquant-matching-engine/internal/model"
)

func TestValidateSellRequiresPrice(t *testing.T) {
	req := PlaceOrderRequest{StockID: "AAA", IsBuy: false, Quantity: 5}
	if err := req.Validate(); err == nil {
		t.Fatalf("expected validation error for a sell missing a price")
	}
}

func TestValidateBuyRejectsPrice(t *testing.T) {
	price := int64(100)
	req := PlaceOrderRequest{StockID: "AAA", IsBuy: true, Quantity: 5, Price: &price}
	if err := req.Validate(); err == nil {
		t.Fatalf("expected validation error for a buy carrying a price")
	}
}

func TestValidateAggregatesMultipleFailures(t *testing.T) {
	req := PlaceOrderRequest{StockID: "", IsBuy: false, Quantity: 0}
	err := req.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "stock_id") || !strings.Contains(msg, "quantity") || !strings.Contains(msg, "price") {
		t.Fatalf("expected all three violations named in one error, got %q", msg)
	}
}

func TestValidateAcceptsWellFormedOrders(t *testing.T) {
	price := int64(50)
	sell := PlaceOrderRequest{StockID: "AAA", IsBuy: false, Quantity: 5, Price: &price}
	if err := sell.Validate(); err != nil {
		t.Fatalf("unexpected error for valid sell: %v", err)
	}
	buy := PlaceOrderRequest{StockID: "AAA", IsBuy: true, Quantity: 5}
	if err := buy.Validate(); err != nil {
		t.Fatalf("unexpected error for valid buy: %v", err)
	}
}

func TestStatusForMapsEveryKind(t *testing.T) {
	cases := map[model.ErrorKind]int{
		model.KindValidation:        http.StatusBadRequest,
		model.KindAuth:              http.StatusUnauthorized,
		model.KindInsufficientStock: http.StatusUnprocessableEntity,
		model.KindInsufficientFunds: http.StatusUnprocessableEntity,
		model.KindNotFound:          http.StatusNotFound,
		model.KindConflict:          http.StatusConflict,
		model.KindDependency:        http.StatusBadGateway,
		model.KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := StatusFor(kind); got != want {
			t.Fatalf("StatusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
