// Package server exposes the engine's operations over HTTP. Thin layer:
// decode JSON, call the engine, map error kinds to status codes.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PerpCore/internal/engine"
)

type Server struct {
	engine *engine.Engine
	log    zerolog.Logger
	ready  func() bool
}

// New builds the HTTP layer. ready reports whether downstream
// dependencies are reachable; nil means always ready.
func New(eng *engine.Engine, log zerolog.Logger, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{engine: eng, log: log, ready: ready}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/markets", s.handleInitializeMarket)
		r.Get("/markets/{marketID}", s.handleGetMarket)
		r.Post("/markets/{marketID}/funding-rate", s.handleUpdateFundingRate)

		r.Post("/collateral/deposit", s.handleDeposit)
		r.Post("/collateral/withdraw", s.handleWithdraw)

		r.Post("/positions/open", s.handleOpenPosition)
		r.Post("/positions/close", s.handleClosePosition)
		r.Post("/positions/liquidate", s.handleLiquidate)
		r.Post("/positions/settle-funding", s.handleSettleFunding)
		r.Get("/positions/{marketID}/{owner}", s.handleGetPosition)

		r.Post("/orders/bracket", s.handlePlaceBracket)
		r.Post("/orders/bracket/trigger", s.handleTriggerBracket)
		r.Post("/orders/bracket/cancel", s.handleCancelBracket)
		r.Get("/orders/bracket/{marketID}/{owner}", s.handleGetBracket)

		r.Post("/orders/stop", s.handlePlaceStop)
		r.Post("/orders/stop/trigger", s.handleTriggerStop)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
