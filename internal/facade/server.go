package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"dayquant-matching-engine/internal/engine"
	"dayquant-matching-engine/internal/model"
	"dayquant-matching-engine/internal/ports"
)

// Server binds the Engine Façade to HTTP with chi, as the teacher does,
// swapping its hand-rolled CORS middleware for rs/cors.
type Server struct {
	engine  *engine.Engine
	journal ports.TransactionJournal
	secret  []byte
	logger  zerolog.Logger
}

func NewServer(eng *engine.Engine, journal ports.TransactionJournal, secret string, logger zerolog.Logger) *Server {
	return &Server{engine: eng, journal: journal, secret: []byte(secret), logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/getStockPrices", s.getStockPrices)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/api/placeStockOrder", s.placeStockOrder)
		r.Post("/api/cancelStockTransaction", s.cancelStockTransaction)
		r.Get("/api/getStockTransactions", s.getStockTransactions)
		r.Get("/api/getWalletTransactions", s.getWalletTransactions)
	})

	return r
}

type ctxKey string

const ctxUserID ctxKey = "userID"

// authMiddleware decodes and verifies the bearer token's signature and
// extracts the user_id claim. It never issues, refreshes, or stores a
// token — that remains the external Authentication Service's job.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, model.NewError(model.KindAuth, "missing bearer token"))
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, model.NewError(model.KindAuth, "invalid or expired token"))
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, model.NewError(model.KindAuth, "invalid token claims"))
			return
		}
		userID, _ := claims["sub"].(string)
		if userID == "" {
			writeError(w, model.NewError(model.KindAuth, "token missing sub claim"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(r *http.Request) string {
	uid, _ := r.Context().Value(ctxUserID).(string)
	return uid
}

func (s *Server) placeStockOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewError(model.KindValidation, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, model.NewError(model.KindValidation, err.Error()))
		return
	}

	userID := userIDFrom(r)
	var (
		result model.PlaceOrderResult
		err    error
	)
	if req.IsBuy {
		result, err = s.engine.PlaceBuy(r.Context(), userID, req.StockID, req.Quantity)
	} else {
		result, err = s.engine.PlaceSell(r.Context(), userID, req.StockID, *req.Price, req.Quantity)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if !req.IsBuy {
		if _, matchErr := s.engine.MatchQueued(r.Context(), req.StockID); matchErr != nil {
			s.logger.Error().Err(matchErr).Str("stock_id", req.StockID).Msg("match queued failed after sell")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"order_status":  result.OrderStatus,
		"stock_tx_id":   result.StockTxID,
		"trade_details": result.TradeDetails,
	})
}

func (s *Server) cancelStockTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StockTxID string `json:"stock_tx_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StockTxID == "" {
		writeError(w, model.NewError(model.KindValidation, "stock_tx_id is required"))
		return
	}
	if err := s.engine.Cancel(r.Context(), userIDFrom(r), req.StockTxID); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) getStockPrices(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.engine.BestPrices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, quotes)
}

func (s *Server) getStockTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.journal.ListStockTxByUser(r.Context(), userIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, txs)
}

func (s *Server) getWalletTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.journal.ListWalletTxByUser(r.Context(), userIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeData wraps a successful result in the external envelope
// {success:true, data}, the shape every handler but placeStockOrder
// uses.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

// writeError wraps a failure in {success:false, data:{error, message}},
// mapping the domain ErrorKind to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var domainErr *model.Error
	kind := model.KindInternal
	msg := err.Error()
	if errors.As(err, &domainErr) {
		kind = domainErr.Kind
		msg = domainErr.Message
	}
	writeJSON(w, StatusFor(kind), map[string]any{
		"success": false,
		"data":    map[string]string{"error": string(kind), "message": msg},
	})
}
