package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"maplemarket/core/events"
	"maplemarket/core/genesis"
	"maplemarket/core/vm"
	"maplemarket/native/account"
	"maplemarket/native/market"
	"maplemarket/observability/metrics"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout = 10 * time.Second
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Host       *vm.Host
	Deployment *genesis.Deployment
	ChainID    uint64
	// Feed backs the websocket event stream. Optional.
	Feed *events.Feed
	// Metrics records per-route request counts. Optional.
	Metrics *metrics.Ledger
	// Gatherer is served on /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	TxPerSecond    float64
	TxBurst        int
	TrustedProxies []string

	ReadHeaderTimeout time.Duration
}

// Server exposes the ledger over HTTP.
type Server struct {
	host       *vm.Host
	deployment *genesis.Deployment
	chainID    uint64
	feed       *events.Feed
	metrics    *metrics.Ledger
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	limiter    *rateLimiter
	proxies    trustedProxies

	market  *market.Client
	factory *account.FactoryClient

	readHeaderTimeout time.Duration
	router            http.Handler
	httpServer        *http.Server
}

// New constructs the router. It panics on a nil host or deployment.
func New(cfg Config) *Server {
	if cfg.Host == nil || cfg.Deployment == nil {
		panic("rpc: host and deployment required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	s := &Server{
		host:              cfg.Host,
		deployment:        cfg.Deployment,
		chainID:           cfg.ChainID,
		feed:              cfg.Feed,
		metrics:           cfg.Metrics,
		gatherer:          cfg.Gatherer,
		logger:            cfg.Logger.With(slog.String("component", "rpc")),
		limiter:           newRateLimiter(cfg.TxPerSecond, cfg.TxBurst),
		proxies:           parseTrustedProxies(cfg.TrustedProxies),
		market:            market.NewClient(cfg.Host, cfg.Deployment.Market),
		factory:           account.NewFactoryClient(cfg.Host, cfg.Deployment.Factory),
		readHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/market", s.handleMarket)
		r.Get("/market/offers", s.handleListOffers)
		r.Get("/market/offers/{id}", s.handleGetOffer)
		r.Get("/accounts/{owner}", s.handleGetAccount)
		r.Get("/tokens/{token}/balances/{holder}", s.handleGetBalance)
		r.Get("/nonces/{addr}", s.handleGetNonce)
		r.Get("/events/ws", s.handleEventsWS)
		r.With(s.rateLimit).Post("/transactions", s.handleSubmitTransaction)
	})

	return otelhttp.NewHandler(r, "maplemarket.rpc")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: s.readHeaderTimeout,
		// Streams observe ctx so hijacked websocket connections end with it.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", slog.String("addr", addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
