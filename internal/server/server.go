// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"libraledger/internal/audit"
	"libraledger/internal/catalog"
	"libraledger/internal/circulation"
	"libraledger/internal/config"
	"libraledger/internal/fines"
	"libraledger/internal/httpjson"
	"libraledger/internal/journal"
	"libraledger/internal/ledger"
	"libraledger/internal/membership"
	"libraledger/internal/store"
)

const shutdownTimeout = 15 * time.Second

// Server wires the domain services to one HTTP router.
type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	router  chi.Router
	auditor *audit.Auditor

	Circulation circulation.Service
}

// Option configures a Server.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the wall clock used for loan and fine dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New(cfg config.Config, db *store.DB, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	members := membership.Repository{}
	j := journal.New(o.now)
	engine := fines.NewEngine(members, j, cfg.Fines.OverdueFineType,
		fines.WithClock(o.now), fines.WithLogger(logger))
	l := ledger.New(catalog.Repository{}, members, engine, j, ledger.Config{
		DefaultDays: cfg.Loans.DefaultDays,
		MaxDays:     cfg.Loans.MaxDays,
		MaxActive:   cfg.Loans.MaxActive,
	}, ledger.WithClock(o.now), ledger.WithLogger(logger))

	circ, err := circulation.NewService(db, l, engine, j, logger)
	if err != nil {
		return nil, fmt.Errorf("create circulation service: %w", err)
	}

	auditor := audit.NewAuditor(logger)
	auditor.Register(audit.LedgerChecks(db)...)

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		auditor:     auditor,
		Circulation: circ,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/audit", s.handleAudit)

	catalog.NewHandler(catalog.NewService(db, logger), logger).Routes(r)
	membership.NewHandler(membership.NewService(db, logger, cfg.LoginRatePerMinute), logger).Routes(r)
	circulation.NewHandler(circ, logger).Routes(r)

	s.router = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Auditor returns the invariant auditor bound to the same store.
func (s *Server) Auditor() *audit.Auditor {
	return s.auditor
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("circulation service listening", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report := s.auditor.Run(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	httpjson.Write(w, status, report)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
