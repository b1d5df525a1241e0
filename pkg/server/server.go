// Package server exposes the metering engine over HTTP.
package server

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/complexity"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/intent"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/metrics"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/orchestrator"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/quota"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/router"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/tokens"
)

// Deps are the engine components served by the API.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Ledger       *quota.Ledger
	Tokens       *tokens.Account
	Router       *router.Router
	Intents      *intent.Classifier
	Complexity   *complexity.Analyzer
}

// Server is the KroniQ HTTP API.
type Server struct {
	listen   string
	d        Deps
	validate *validator.Validate
	limiter  *limiterSet
	handler  http.Handler
}

// New creates a Server wired with all dependencies.
func New(listen string, cfg config.ServerConfig, d Deps) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		listen:   listen,
		d:        d,
		validate: v,
		limiter:  newLimiterSet(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	mux.HandleFunc("POST /v1/classify", s.handleClassify)
	mux.HandleFunc("GET /v1/accounts/{id}/usage", s.handleUsage)
	mux.HandleFunc("GET /v1/route", s.handleRoute)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	if len(cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(h)
	}
	s.handler = metrics.Middleware(h)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the API server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.cleanupLoop(ctx, 5*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", s.listen).Info("kroniq api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
