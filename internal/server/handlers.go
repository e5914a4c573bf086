package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"PerpCore/internal/engine"
	"PerpCore/internal/oracle"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func (s *Server) writeOK(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrAssetMismatch):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrMarketNotFound),
		errors.Is(err, engine.ErrNoOpenPosition),
		errors.Is(err, engine.ErrNoActiveOrder),
		errors.Is(err, oracle.ErrNoQuote):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrMarketExists),
		errors.Is(err, engine.ErrInsufficientMargin),
		errors.Is(err, engine.ErrInsufficientCollateral),
		errors.Is(err, engine.ErrOppositePositionNotSupported),
		errors.Is(err, engine.ErrPositionNotLiquidatable),
		errors.Is(err, engine.ErrTriggerConditionNotMet):
		return http.StatusConflict
	case errors.Is(err, engine.ErrStalePrice):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type initializeMarketRequest struct {
	MarketID       string    `json:"market_id"`
	BaseSymbol     string    `json:"base_symbol"`
	QuoteAsset     string    `json:"quote_asset"`
	Authority      uuid.UUID `json:"authority"`
	FeeVault       string    `json:"fee_vault"`
	InsuranceVault string    `json:"insurance_vault"`
}

func (s *Server) handleInitializeMarket(w http.ResponseWriter, r *http.Request) {
	var req initializeMarketRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	err := s.engine.InitializeMarket(r.Context(), engine.InitializeMarketParams{
		MarketID:       req.MarketID,
		BaseSymbol:     req.BaseSymbol,
		QuoteAsset:     req.QuoteAsset,
		Authority:      req.Authority,
		FeeVault:       req.FeeVault,
		InsuranceVault: req.InsuranceVault,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, statusResponse{Status: "created"})
}

type marketResponse struct {
	MarketID           string `json:"market_id"`
	BaseSymbol         string `json:"base_symbol"`
	QuoteAsset         string `json:"quote_asset"`
	FundingRate        int64  `json:"funding_rate"`
	LastFundingTime    int64  `json:"last_funding_time"`
	IndexPrice         int64  `json:"index_price"`
	OpenInterestLong   int64  `json:"open_interest_long"`
	OpenInterestShort  int64  `json:"open_interest_short"`
	AuctionDiscountBps int64  `json:"auction_discount_bps"`
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, marketResponse{
		MarketID:           m.MarketID,
		BaseSymbol:         m.BaseSymbol,
		QuoteAsset:         m.QuoteAsset,
		FundingRate:        m.FundingRate,
		LastFundingTime:    m.LastFundingTime,
		IndexPrice:         m.IndexPrice,
		OpenInterestLong:   m.OpenInterestLong,
		OpenInterestShort:  m.OpenInterestShort,
		AuctionDiscountBps: m.AuctionDiscountBps,
	})
}

type updateFundingRateRequest struct {
	Authority uuid.UUID `json:"authority"`
}

func (s *Server) handleUpdateFundingRate(w http.ResponseWriter, r *http.Request) {
	var req updateFundingRateRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.UpdateFundingRate(r.Context(), req.Authority, chi.URLParam(r, "marketID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

type collateralRequest struct {
	Owner    uuid.UUID `json:"owner"`
	MarketID string    `json:"market_id"`
	Asset    string    `json:"asset"`
	Amount   int64     `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.DepositCollateral(r.Context(), req.Owner, req.MarketID, req.Asset, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.WithdrawCollateral(r.Context(), req.Owner, req.MarketID, req.Asset, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

type openPositionRequest struct {
	Owner    uuid.UUID `json:"owner"`
	MarketID string    `json:"market_id"`
	Size     int64     `json:"size"`
	IsLong   bool      `json:"is_long"`
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.OpenPosition(r.Context(), req.Owner, req.MarketID, req.Size, req.IsLong); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

type positionRequest struct {
	Owner    uuid.UUID `json:"owner"`
	MarketID string    `json:"market_id"`
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.ClosePosition(r.Context(), req.Owner, req.MarketID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleSettleFunding(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.SettleFunding(r.Context(), req.Owner, req.MarketID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

type liquidateRequest struct {
	Liquidator uuid.UUID `json:"liquidator"`
	Owner      uuid.UUID `json:"owner"`
	MarketID   string    `json:"market_id"`
	Size       int64     `json:"size"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.LiquidatePosition(r.Context(), req.Liquidator, req.Owner, req.MarketID, req.Size); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

type positionResponse struct {
	Owner         uuid.UUID `json:"owner"`
	MarketID      string    `json:"market_id"`
	Collateral    int64     `json:"collateral"`
	Size          int64     `json:"size"`
	Side          string    `json:"side"`
	EntryPrice    int64     `json:"entry_price"`
	UnrealizedPnL int64     `json:"unrealized_pnl"`
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(chi.URLParam(r, "owner"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed owner id"})
		return
	}
	p, err := s.engine.GetPosition(r.Context(), owner, chi.URLParam(r, "marketID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positionResponse{
		Owner:         p.Owner,
		MarketID:      p.MarketID,
		Collateral:    p.Collateral,
		Size:          p.Size,
		Side:          p.Side.String(),
		EntryPrice:    p.EntryPrice,
		UnrealizedPnL: p.UnrealizedPnL,
	})
}

type placeBracketRequest struct {
	Owner           uuid.UUID `json:"owner"`
	MarketID        string    `json:"market_id"`
	StopLossPrice   int64     `json:"stop_loss_price"`
	TakeProfitPrice int64     `json:"take_profit_price"`
}

func (s *Server) handlePlaceBracket(w http.ResponseWriter, r *http.Request) {
	var req placeBracketRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.PlaceBracketOrder(r.Context(), req.Owner, req.MarketID, req.StopLossPrice, req.TakeProfitPrice); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleTriggerBracket(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.TriggerBracketOrder(r.Context(), req.Owner, req.MarketID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleCancelBracket(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.CancelBracketOrder(r.Context(), req.Owner, req.MarketID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

type bracketResponse struct {
	Owner           uuid.UUID `json:"owner"`
	MarketID        string    `json:"market_id"`
	StopLossPrice   int64     `json:"stop_loss_price"`
	TakeProfitPrice int64     `json:"take_profit_price"`
	Size            int64     `json:"size"`
	Side            string    `json:"side"`
	Armed           bool      `json:"armed"`
}

func (s *Server) handleGetBracket(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(chi.URLParam(r, "owner"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed owner id"})
		return
	}
	b, err := s.engine.GetBracket(r.Context(), owner, chi.URLParam(r, "marketID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bracketResponse{
		Owner:           b.Owner,
		MarketID:        b.MarketID,
		StopLossPrice:   b.StopLossPrice,
		TakeProfitPrice: b.TakeProfitPrice,
		Size:            b.Size,
		Side:            b.Side.String(),
		Armed:           b.Armed(),
	})
}

type placeStopRequest struct {
	Owner        uuid.UUID `json:"owner"`
	MarketID     string    `json:"market_id"`
	TriggerPrice int64     `json:"trigger_price"`
	IsTakeProfit bool      `json:"is_take_profit"`
}

func (s *Server) handlePlaceStop(w http.ResponseWriter, r *http.Request) {
	var req placeStopRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.PlaceStopOrder(r.Context(), req.Owner, req.MarketID, req.TriggerPrice, req.IsTakeProfit); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleTriggerStop(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.engine.TriggerStopOrder(r.Context(), req.Owner, req.MarketID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}
