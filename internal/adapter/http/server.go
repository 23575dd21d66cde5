package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/escalation"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether a component is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// AllReady combines checkers; the result is ready only when every one is.
func AllReady(checkers ...ReadinessChecker) ReadinessChecker {
	return readyAll(checkers)
}

type readyAll []ReadinessChecker

func (r readyAll) CheckReadiness(ctx context.Context) error {
	errs := make([]error, 0, len(r))
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReviewService is the human review surface of the escalation queue.
type ReviewService interface {
	Pending() []escalation.Item
	Resolve(ctx context.Context, reportID, analystID string, decision domain.Status, notes string) (domain.VerificationDecision, error)
	Resolution(reportID string) (escalation.Resolution, bool)
}

// DecisionPublisher forwards analyst decisions downstream.
type DecisionPublisher interface {
	Publish(ctx context.Context, d domain.VerificationDecision) error
}

// Server exposes health, readiness, metrics and escalation review endpoints.
type Server struct {
	httpServer *http.Server
	review     ReviewService
	publisher  DecisionPublisher
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1/escalations routes. publisher may be nil.
func NewServer(addr string, ready ReadinessChecker, review ReviewService, publisher DecisionPublisher, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		review:    review,
		publisher: publisher,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/escalations", s.handleListEscalations)
	mux.HandleFunc("POST /v1/escalations/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /v1/escalations/{id}/resolution", s.handleResolution)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleListEscalations(w http.ResponseWriter, _ *http.Request) {
	items := s.review.Pending()
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

type resolveRequest struct {
	AnalystID string        `json:"analystId"`
	Decision  domain.Status `json:"decision"`
	Notes     string        `json:"notes"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req resolveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := s.review.Resolve(r.Context(), id, req.AnalystID, req.Decision, req.Notes)
	if err != nil {
		s.writeResolveError(w, id, err)
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(r.Context(), d); err != nil {
			s.logger.Error("publish analyst decision failed", "report_id", id, "error", err)
			sharedobs.WriteJSON(w, http.StatusAccepted, map[string]any{
				"decision": d,
				"warning":  "decision recorded but not yet published",
			})
			return
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, d)
}

func (s *Server) writeResolveError(w http.ResponseWriter, id string, err error) {
	switch {
	case domain.IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escalation.ErrNotQueued):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, escalation.ErrAlreadyResolved), errors.Is(err, domain.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("resolve escalation failed", "report_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleResolution(w http.ResponseWriter, r *http.Request) {
	res, ok := s.review.Resolution(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no resolution recorded")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
