package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"artrag-gateway/internal/handlers"
	"artrag-gateway/internal/metrics"
	"artrag-gateway/internal/middleware"
	"artrag-gateway/internal/ratelimit"
)

// SetupRouter wires routes and middleware. The /ask route carries the
// per-IP daily limit; streaming responses rule out a blanket request
// timeout, so the LLM client's upstream timeout bounds generation
// instead.
func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, askHandler *handlers.AskHandler, ipLimiter *ratelimit.DailyLimiter, skippedIP string) {
	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.CORS())
	r.Use(middleware.MaxBodySize(512 * 1024)) // 512 KB max body

	r.Get("/", handlers.Home)

	r.Options("/ask", middleware.OptionsHandler)
	r.With(middleware.DailyIPLimit(ipLimiter, skippedIP)).Post("/ask", askHandler.Ask)

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
