// Package api exposes the engine's command surface over HTTP.
//
//	/api/
//	├── GET  /state                  full snapshot
//	├── GET  /export                 restorable state
//	├── GET  /positions              live positions
//	├── POST /positions              open
//	├── GET  /positions/{id}
//	├── POST /positions/{id}/close   partial close {amount, reason}
//	├── POST /positions/close        full close {symbol, side, reason}
//	├── POST /positions/close-all
//	├── POST /positions/batch        batch open
//	├── POST /leverage               {symbol, side, leverage}
//	├── POST /auto-reopen/toggle
//	├── GET  /settings
//	├── PUT  /settings               hot reload
//	├── GET  /trades
//	├── GET  /logs
//	└── POST /ticks                  inject a price map
//
//	/ws       update stream
//	/metrics  prometheus
//	/health
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/sim"
)

// Engine is the part of *sim.Engine the handlers drive.
type Engine interface {
	Tick(prices market.Prices) (sim.Update, bool)
	Snapshot() sim.Update
	Export() sim.State
	Positions() []sim.PositionView
	Position(id string) (sim.PositionView, bool)
	OpenPosition(req sim.OpenRequest) (sim.PositionView, bool)
	ClosePosition(symbol string, side market.Side, reason string) bool
	ClosePositionPartially(id string, amount float64, reason string) bool
	BatchCloseAllPositions() int
	OpenBatchPositions(req sim.BatchRequest) int
	UpdateLeverage(symbol string, side market.Side, leverage int) bool
	ToggleAutoReopen() bool
	Settings() config.Settings
	SetSettings(s config.Settings) error
	TradeLogs() []journal.TradeLog
	Logs() []journal.LogEntry
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type Handler struct {
	engine Engine
	logger *zap.Logger
}

type Dependencies struct {
	Engine Engine
	// Stream serves /ws when set.
	Stream http.Handler
	Logger *zap.Logger
}

// NewRouter wires every route. Middleware only wraps /api so the websocket
// upgrade sees the raw ResponseWriter.
func NewRouter(deps Dependencies) *mux.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{engine: deps.Engine, logger: logger}

	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.Use(recovery(logger))
	api.Use(logging(logger))

	api.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	api.HandleFunc("/export", h.GetExport).Methods(http.MethodGet)

	api.HandleFunc("/positions", h.GetPositions).Methods(http.MethodGet)
	api.HandleFunc("/positions", h.OpenPosition).Methods(http.MethodPost)
	api.HandleFunc("/positions/close", h.ClosePosition).Methods(http.MethodPost)
	api.HandleFunc("/positions/close-all", h.CloseAll).Methods(http.MethodPost)
	api.HandleFunc("/positions/batch", h.OpenBatch).Methods(http.MethodPost)
	api.HandleFunc("/positions/{id}", h.GetPosition).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}/close", h.ClosePartially).Methods(http.MethodPost)

	api.HandleFunc("/leverage", h.UpdateLeverage).Methods(http.MethodPost)
	api.HandleFunc("/auto-reopen/toggle", h.ToggleAutoReopen).Methods(http.MethodPost)

	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPut)

	api.HandleFunc("/trades", h.GetTrades).Methods(http.MethodGet)
	api.HandleFunc("/logs", h.GetLogs).Methods(http.MethodGet)
	api.HandleFunc("/ticks", h.PostTick).Methods(http.MethodPost)

	if deps.Stream != nil {
		router.Handle("/ws", deps.Stream)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Export())
}

func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	pos := h.engine.Positions()
	if pos == nil {
		pos = []sim.PositionView{}
	}
	respondJSON(w, http.StatusOK, pos)
}

func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := h.engine.Position(id)
	if !ok {
		respondError(w, http.StatusNotFound, "position not found", id)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// OpenPosition opens from a sim.OpenRequest body.
//
// Response:
//   - 201 Created: the new position
//   - 400 Bad Request: malformed body or side
//   - 422 Unprocessable Entity: the engine refused (see /api/logs)
func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req sim.OpenRequest
	if !decode(w, r, &req) {
		return
	}
	side, err := market.ParseSide(string(req.Side))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	req.Side = side

	view, ok := h.engine.OpenPosition(req)
	if !ok {
		respondError(w, http.StatusUnprocessableEntity, "open refused", "")
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

type CloseRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if !decode(w, r, &req) {
		return
	}
	side, err := market.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	if !h.engine.ClosePosition(req.Symbol, side, req.Reason) {
		respondError(w, http.StatusNotFound, "position not found", req.Symbol+" "+string(side))
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

type PartialCloseRequest struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason,omitempty"`
}

func (h *Handler) ClosePartially(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req PartialCloseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive", "")
		return
	}
	if !h.engine.ClosePositionPartially(id, req.Amount, req.Reason) {
		respondError(w, http.StatusNotFound, "position not found", id)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func (h *Handler) CloseAll(w http.ResponseWriter, r *http.Request) {
	n := h.engine.BatchCloseAllPositions()
	respondJSON(w, http.StatusOK, map[string]int{"closed": n})
}

func (h *Handler) OpenBatch(w http.ResponseWriter, r *http.Request) {
	var req sim.BatchRequest
	if !decode(w, r, &req) {
		return
	}
	for i, c := range req.Candidates {
		side, err := market.ParseSide(string(c.Side))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid side", err.Error())
			return
		}
		req.Candidates[i].Side = side
	}
	// an empty batch is passed through and audited by the engine
	if len(req.Candidates) > 0 && req.NotionalUSDT <= 0 {
		respondError(w, http.StatusBadRequest, "notional_usdt must be positive", "")
		return
	}
	n := h.engine.OpenBatchPositions(req)
	respondJSON(w, http.StatusOK, map[string]int{"opened": n})
}

type LeverageRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Leverage int    `json:"leverage"`
}

func (h *Handler) UpdateLeverage(w http.ResponseWriter, r *http.Request) {
	var req LeverageRequest
	if !decode(w, r, &req) {
		return
	}
	side, err := market.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	if req.Leverage <= 0 {
		respondError(w, http.StatusBadRequest, "leverage must be positive", "")
		return
	}
	if !h.engine.UpdateLeverage(req.Symbol, side, req.Leverage) {
		respondError(w, http.StatusNotFound, "position not found", req.Symbol+" "+string(side))
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"leverage": req.Leverage})
}

func (h *Handler) ToggleAutoReopen(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"auto_reopen": h.engine.ToggleAutoReopen()})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Settings())
}

// UpdateSettings replaces the whole settings object; the next tick uses it.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	if !decode(w, r, &s) {
		return
	}
	if err := h.engine.SetSettings(s); err != nil {
		respondError(w, http.StatusBadRequest, "invalid settings", err.Error())
		return
	}
	h.logger.Info("settings updated via api")
	respondJSON(w, http.StatusOK, h.engine.Settings())
}

func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades := h.engine.TradeLogs()
	if trades == nil {
		trades = []journal.TradeLog{}
	}
	respondJSON(w, http.StatusOK, trades)
}

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	logs := h.engine.Logs()
	if logs == nil {
		logs = []journal.LogEntry{}
	}
	respondJSON(w, http.StatusOK, logs)
}

type TickRequest struct {
	Prices market.Prices `json:"prices"`
}

type TickResponse struct {
	Emitted bool        `json:"emitted"`
	Update  *sim.Update `json:"update,omitempty"`
}

// PostTick feeds one price map through the cascade. A tick that changes
// nothing (or is rejected by the deviation guard) emits no update.
func (h *Handler) PostTick(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Prices) == 0 {
		respondError(w, http.StatusBadRequest, "no prices", "")
		return
	}
	upd, ok := h.engine.Tick(req.Prices)
	resp := TickResponse{Emitted: ok}
	if ok {
		resp.Update = &upd
	}
	respondJSON(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg, details string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
