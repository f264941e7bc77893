package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/waves-enterprise/voting-encrypt/pkg/middleware"
	"github.com/waves-enterprise/voting-encrypt/pkg/receipt"
)

// RouterConfig controls the middleware stack
type RouterConfig struct {
	RateLimit      int           // requests per client per minute
	RequestTimeout time.Duration // 0 means 60s
	Logger         zerolog.Logger
}

// NewRouter wires the handlers into a chi router. ctx bounds the rate
// limiter's background sweep.
func NewRouter(ctx context.Context, h *Handlers, verifier *receipt.Verifier, cfg RouterConfig) chi.Router {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.Timeout(timeout))
	if cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(ctx, cfg.RateLimit, time.Minute))
	}
	r.Use(middleware.CORS)

	r.Get("/health", h.Health)
	r.Get("/params", h.Params)
	r.Get("/.well-known/jwks.json", h.JWKS)

	r.Route("/bulletins", func(r chi.Router) {
		r.Post("/", h.EncryptBulletin)
		r.Post("/verify", h.VerifyBulletin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ReceiptAuth(verifier, h.config.Audience, h.store))
			r.Use(middleware.RequireCurve(h.encryptor.Curve().Name()))
			r.With(middleware.RequireSubject("id")).Get("/{id}", h.GetBulletin)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/bulletins", h.ListBulletins)
		r.Post("/receipts/{jti}/revoke", h.RevokeReceipt)
	})

	return r
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
