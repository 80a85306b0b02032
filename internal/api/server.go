// Package api exposes the forecast ledger over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/forecast-ledger/internal/api/stream"
	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/forecaster"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
	"github.com/yourusername/forecast-ledger/internal/service"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1 << 20

// Ingester runs fixture ingestion and accepts external forecast batches.
type Ingester interface {
	Run(ctx context.Context, req service.IngestRequest) (*service.IngestionResult, error)
	IngestBatch(ctx context.Context, sportKey string, inputs []models.ForecastInput) (*service.IngestionResult, error)
}

// Reconciler attaches outcomes, either from the result feed or manually.
type Reconciler interface {
	Run(ctx context.Context, sportKey string) (*service.ReconciliationReport, error)
	Resolve(ctx context.Context, matchID, side string) (bool, error)
}

// ForecastReader is the read side of the forecast store.
type ForecastReader interface {
	Get(ctx context.Context, matchID string) (*models.Forecast, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*models.Forecast, error)
}

// RatingSource exposes the Elo leaderboard.
type RatingSource interface {
	Top(n int) []forecaster.PlayerRating
}

// SportLister lists the competitions ingestion can target.
type SportLister interface {
	ActiveSports(ctx context.Context) ([]datasource.Sport, error)
	Name() string
}

// Config holds configuration for the API server.
type Config struct {
	Port            int
	CORSOrigins     []string
	DefaultRegion   string
	CalibrationBins int
	RequestTimeout  time.Duration
}

// Deps are the services the handlers call.
type Deps struct {
	Ingester   Ingester
	Reconciler Reconciler
	Scorer     service.Scorer
	Forecasts  ForecastReader
	Ratings    RatingSource
	Sports     SportLister
	Hub        *stream.Hub
	Logger     logrus.FieldLogger
}

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        Config

	ingester   Ingester
	reconciler Reconciler
	scorer     service.Scorer
	forecasts  ForecastReader
	ratings    RatingSource
	sports     SportLister
	hub        *stream.Hub
	logger     logrus.FieldLogger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.CalibrationBins <= 0 {
		cfg.CalibrationBins = service.DefaultCalibrationBins
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	log := deps.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		ingester:   deps.Ingester,
		reconciler: deps.Reconciler,
		scorer:     deps.Scorer,
		forecasts:  deps.Forecasts,
		ratings:    deps.Ratings,
		sports:     deps.Sports,
		hub:        deps.Hub,
		logger:     log.WithField("component", "api"),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

// requestLogger logs one line per request through logrus.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"request_id":  middleware.GetReqID(r.Context()),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		}).Debug("HTTP request")
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on the configured port until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s.hub != nil {
		go s.hub.Run()
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("port", s.cfg.Port).Info("API server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts down the server and the stream hub.
func (s *Server) Stop() error {
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}
