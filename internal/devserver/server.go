// Package devserver is a small sqlite-backed implementation of the nexd
// REST backend for local development and end-to-end tests.
package devserver

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexd/nexd/internal/api"
	"github.com/nexd/nexd/internal/database/repository"
	"github.com/nexd/nexd/internal/metrics"
)

type Options struct {
	Logger    *slog.Logger
	RateLimit float64
	RateBurst int
	// Registry receives the request counter and backs /metrics. nil gets a
	// private registry.
	Registry *prometheus.Registry
	// TracerProvider and Propagator default to the otel globals.
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
	Now            func() time.Time
}

// Server serves the backend routes over db. db must be migrated.
type Server struct {
	db       *sql.DB
	users    *repository.UserRepo
	units    *repository.UnitRepo
	articles *repository.ArticleRepo
	requests *repository.HelpRequestRepo
	lists    *repository.HelpListRepo

	logger  *slog.Logger
	limiter *clientLimiter
	metrics *metrics.Devserver
	tracer  trace.Tracer
	prop    propagation.TextMapPropagator
	now     func() time.Time
	handler http.Handler
}

func New(db *sql.DB, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Propagator == nil {
		opts.Propagator = otel.GetTextMapPropagator()
	}
	s := &Server{
		db:       db,
		users:    repository.NewUserRepo(db),
		units:    repository.NewUnitRepo(db),
		articles: repository.NewArticleRepo(db),
		requests: repository.NewHelpRequestRepo(db),
		lists:    repository.NewHelpListRepo(db),
		logger:   opts.Logger,
		limiter:  newClientLimiter(opts.RateLimit, opts.RateBurst),
		metrics:  metrics.NewDevserver(opts.Registry),
		tracer:   opts.TracerProvider.Tracer("github.com/nexd/nexd/internal/devserver"),
		prop:     opts.Propagator,
		now:      opts.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathCurrentUser, s.getCurrentUser)
	mux.HandleFunc("PUT "+api.PathCurrentUser, s.updateCurrentUser)
	mux.HandleFunc("GET "+api.PathActiveList, s.getActiveList)
	mux.HandleFunc("PUT "+api.PathListRequests+"{id}", s.addToList)
	mux.HandleFunc("DELETE "+api.PathListRequests+"{id}", s.removeFromList)
	mux.HandleFunc("GET "+api.PathHelpRequests, s.listHelpRequests)
	mux.HandleFunc("POST "+api.PathHelpRequests, s.submitHelpRequest)
	mux.HandleFunc("GET "+api.PathArticles, s.searchArticles)
	mux.HandleFunc("POST "+api.PathArticles, s.createArticle)
	mux.HandleFunc("GET "+api.PathUnits, s.listUnits)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))

	s.handler = s.traced(s.count(s.rateLimit(mux)))
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("devserver listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// traced opens a server span per request, joining the caller's trace when
// the request carries one. The span is named after the matched route.
func (s *Server) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := s.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(rec, r)

		if r.Pattern != "" {
			span.SetName(r.Pattern)
			span.SetAttributes(attribute.String("http.route", r.Pattern))
		}
		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := s.now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.Served(route, rec.status)
		s.logger.Debug("devserver request", "route", route, "status", rec.status,
			"request_id", r.Header.Get(api.HeaderRequestID), "took", s.now().Sub(start))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(limitKey(r), s.now()) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
