package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Deliverer runs and inspects deliveries. *delivery.Controller implements it.
type Deliverer interface {
	Run(ctx context.Context, order *delivery.Order, opts delivery.RunOptions) (*delivery.Result, error)
	Lookup(ctx context.Context, orderID string) (*delivery.Record, error)
}

// Server is the HTTP server for the delivery service.
type Server struct {
	port      int
	deliverer Deliverer
	gatherer  prometheus.Gatherer
	logger    *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// New creates a new server instance.
func New(cfg Config, deliverer Deliverer, logger *otelzap.Logger) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		port:      cfg.Port,
		deliverer: deliverer,
		gatherer:  gatherer,
		logger:    logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/deliveries", func(r chi.Router) {
		r.Post("/", s.handleCreateDelivery)
		r.Get("/{orderID}", s.handleGetDelivery)
	})

	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type createDeliveryRequest struct {
	Order       *delivery.Order `json:"order"`
	NotifyPhone string          `json:"notifyPhone,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req createDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	res, err := s.deliverer.Run(r.Context(), req.Order, delivery.RunOptions{NotifyPhone: req.NotifyPhone})
	if errors.Is(err, delivery.ErrMissingOrder) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Ctx(r.Context()).Error("Delivery run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, statusFor(res), res)
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	rec, err := s.deliverer.Lookup(r.Context(), orderID)
	if err != nil {
		s.logger.Ctx(r.Context()).Error("Delivery lookup failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "delivery store unavailable"})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "delivery not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// statusFor maps a delivery result onto an HTTP status.
func statusFor(res *delivery.Result) int {
	switch {
	case res.OK:
		return http.StatusOK
	case res.Error == delivery.ErrCodeReservationFailed:
		return http.StatusServiceUnavailable
	case res.Error == delivery.ErrCodeReservationConflict, res.Error == delivery.ErrCodeInProgress:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
