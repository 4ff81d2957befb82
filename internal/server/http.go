package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"FolioLedger/internal/observability"
	"FolioLedger/internal/query"
)

// HTTPServer serves the read API and health probes. Writes enter the
// system through NATS only; this surface is strictly read-only.
type HTTPServer struct {
	addr string
	deps *Deps
	log  zerolog.Logger
}

// Deps collects everything the HTTP handlers need.
type Deps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	StartTime     time.Time
}

func NewHTTPServer(addr string, deps *Deps, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{addr: addr, deps: deps, log: log}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.deps.HealthChecker.LivenessHandler)
	r.Get("/readyz", s.deps.HealthChecker.ReadinessHandler)

	r.Route("/v1/funds/{fund}", func(r chi.Router) {
		r.Get("/auctions", s.handleAuctions)
		r.Get("/auctions/{auctionID}/fills", s.handleAuctionFills)
		r.Get("/fees/state", s.handleFeeState)
		r.Get("/fees/flows", s.handleFeeFlows)
		r.Get("/basket", s.handleBasket)
		r.Get("/rewards/indexes", s.handleRewardIndexes)
		r.Get("/rewards/claims/{user}", s.handleRewardClaims)
	})

	r.Get("/v1/admin/integrity", s.handleIntegrity)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) handleAuctions(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")
	limit := limitParam(r, 100)

	s.serve(w, r, "auctions", func(ctx context.Context) (interface{}, error) {
		return s.deps.QueryService.GetAuctions(ctx, fund, limit)
	})
}

func (s *HTTPServer) handleAuctionFills(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")
	auctionID, err := strconv.ParseInt(chi.URLParam(r, "auctionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	limit := limitParam(r, 100)
	var afterSeq *int64
	if v := r.URL.Query().Get("after"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		afterSeq = &seq
	}

	s.serve(w, r, "auction_fills", func(ctx context.Context) (interface{}, error) {
		return s.deps.QueryService.GetAuctionFills(ctx, fund, auctionID, limit, afterSeq)
	})
}

func (s *HTTPServer) handleFeeState(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")

	s.serve(w, r, "fee_state", func(ctx context.Context) (interface{}, error) {
		fs, err := s.deps.QueryService.GetFeeState(ctx, fund)
		if err != nil {
			return nil, err
		}
		if fs == nil {
			return map[string]string{"fund_id": fund, "status": "never_poked"}, nil
		}
		return fs, nil
	})
}

func (s *HTTPServer) handleFeeFlows(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")
	limit := limitParam(r, 100)
	var receiver *string
	if v := r.URL.Query().Get("receiver"); v != "" {
		receiver = &v
	}

	s.serve(w, r, "fee_flows", func(ctx context.Context) (interface{}, error) {
		return s.deps.QueryService.GetFeeFlows(ctx, fund, receiver, limit)
	})
}

func (s *HTTPServer) handleBasket(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")

	s.serve(w, r, "basket", func(ctx context.Context) (interface{}, error) {
		return s.deps.QueryService.GetBasket(ctx, fund)
	})
}

func (s *HTTPServer) handleRewardIndexes(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")

	s.serve(w, r, "reward_indexes", func(ctx context.Context) (interface{}, error) {
		return s.deps.QueryService.GetRewardIndexes(ctx, fund)
	})
}

func (s *HTTPServer) handleRewardClaims(w http.ResponseWriter, r *http.Request) {
	fund := chi.URLParam(r, "fund")
	user := chi.URLParam(r, "user")
	limit := limitParam(r, 100)

	s.serve(w, r, "reward_claims", func(ctx context.Context) (interface{}, error) {
		return s.deps.QueryService.GetRewardClaims(ctx, fund, user, limit)
	})
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "integrity", func(ctx context.Context) (interface{}, error) {
		return s.deps.QueryService.VerifyIntegrity(ctx)
	})
}

// serve runs a query handler with uniform metrics and error handling.
func (s *HTTPServer) serve(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context) (interface{}, error)) {
	start := time.Now()
	if s.deps.Metrics != nil {
		s.deps.Metrics.QueryRequests.WithLabelValues(name).Inc()
	}

	result, err := fn(r.Context())
	if s.deps.Metrics != nil {
		s.deps.Metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.QueryErrors.WithLabelValues(name).Inc()
		}
		s.log.Error().Str("query", name).Err(err).Msg("query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func limitParam(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
