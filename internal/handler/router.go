package handler

import (
	"net/http"
	"time"

	"otp-gateway/internal/config"
	"otp-gateway/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// defaultRequestTimeout bounds a whole request when the server write timeout
// is shorter.
const defaultRequestTimeout = 60 * time.Second

// requestTimeout never undercuts the write timeout, which LoadConfig keeps
// above the dispatch bound, so a slow Telegram attempt still ends in a
// fallback response.
func requestTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.WriteTimeout > defaultRequestTimeout {
		return cfg.WriteTimeout
	}
	return defaultRequestTimeout
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(otpHandler *OTPHandler, cfg config.ServerConfig, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout(cfg)))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/", otpHandler.Root)
	router.Get("/health", otpHandler.Health)
	router.Post("/test", otpHandler.Echo)

	sendOTP := router.With()
	if cfg.RateLimitPerMinute > 0 {
		sendOTP = router.With(httprate.Limit(
			cfg.RateLimitPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
					Success: false,
					Error:   "Too many requests, please try again later",
				}, logger)
			}),
		))
	}
	sendOTP.Post("/send-otp", otpHandler.SendOTP)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "endpoint not found"}, logger)
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"}, logger)
	})

	return router
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
