// Package httpapi serves the speaking-test REST API: question sets for each
// part, transcript evaluation, archived results and operational endpoints.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ielts-speaking/internal/metrics"
	"ielts-speaking/internal/speaking"
	"ielts-speaking/internal/storage"
)

// Welcome is the body of GET /.
const Welcome = "Welcome to the Syntax for Ielts API!"

// Error bodies, matching what existing web clients display.
const (
	msgPart1Failed     = "Failed to generate speaking questions."
	msgPart2Failed     = "Failed to generate Part 2 task card."
	msgPart3Failed     = "Failed to generate Part 3 questions."
	msgEvaluateFailed  = "Failed to evaluate the speaking transcript."
	msgTopicRequired   = "Part 2 topic is required to generate Part 3 questions."
	msgConversationReq = "A valid conversation array is required for evaluation."
	msgResultNotFound  = "Result not found."
	msgResultsFailed   = "Failed to read saved results."
	msgNoArchive       = "Result archive is disabled."
	msgNotReady        = "Language model is unavailable."
)

// Deps are the collaborators behind the API. Archive, Metrics and Ready may
// be nil.
type Deps struct {
	Questions speaking.QuestionProvider
	Evaluator speaking.Evaluator
	Archive   *storage.Archive
	Metrics   *metrics.Metrics
	Ready     func() error
	Logger    *slog.Logger
}

type Server struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, log: logger.With("component", "httpapi")}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}

	r.Get("/", welcome)
	r.Get("/healthz", healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/speaking/part1", s.part1)
		r.Get("/speaking/part2", s.part2)
		r.Post("/speaking/part3", s.part3)
		r.Post("/evaluate/speaking", s.evaluate)

		r.Get("/stats", s.stats)
		r.Get("/results", s.listResults)
		r.Get("/results/{id}", s.getResult)
	})
	return r
}

func welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Welcome))
}

func healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(); err != nil {
			s.log.Warn("not ready", "error", err)
			respondError(w, msgNotReady, http.StatusServiceUnavailable)
			return
		}
	}
	respondJSON(w, map[string]string{"status": "ready"}, http.StatusOK)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	var snap metrics.Snapshot
	if s.deps.Metrics != nil {
		snap = s.deps.Metrics.GetSnapshot()
	}
	respondJSON(w, snap, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"message": message}, status)
}
