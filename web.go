package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Seednode/whosaidit/games/things"
	"github.com/Seednode/whosaidit/hub"
	"github.com/Seednode/whosaidit/store/memory"
	"github.com/Seednode/whosaidit/store/sqlite"
	"github.com/Seednode/whosaidit/telemetry"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

// cors lets browser clients served from another origin call the API.
func cors(cfg *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.corsOrigin != "" {
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Origin", cfg.corsOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// openStore returns the sqlite store when --db is set and an in-memory one
// otherwise, along with its cleanup function.
func openStore(ctx context.Context, cfg *Config) (things.Store, func() error, error) {
	if cfg.db == "" {
		return memory.New(), func() error { return nil }, nil
	}

	s, err := sqlite.Open(ctx, cfg.db)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func newHandler(cfg *Config, log zerolog.Logger, engine *things.Engine, h *hub.Hub) http.Handler {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("recovered from panic")

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = w.Write([]byte(`{"error":"Internal Server Error","code":"internal"}` + "\n"))
	}

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, log))
	mux.GET(cfg.prefix+"/warmup", serveHealthCheck(cfg, log))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, log))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg, log))

	if cfg.profile {
		registerProfileHandlers(cfg, log, mux)
	}

	registerAPI(&api{cfg: cfg, engine: engine, hub: h, log: log}, mux)

	return chi.Chain(
		chimw.RequestID,
		chimw.RealIP,
		logRequests(log),
		chimw.Recoverer,
		cors(cfg),
	).Handler(mux)
}

func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	log := newLogger(cfg, os.Stderr)

	log.Info().Str("version", releaseVersion).Msg("START: whosaidit")

	shutdownTracing, err := telemetry.Setup(ctx, "whosaidit", releaseVersion, cfg.otelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	h := hub.New(log.With().Str("component", "hub").Logger())

	engineLog := log.With().Str("component", "things").Logger()
	opts := cfg.engineOptions()
	opts.Logger = &engineLog
	engine := things.New(store, h, opts)

	sweeper := things.NewSweeper(engine, cfg.sessionTTL, cfg.sweepInterval)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newHandler(cfg, log, engine, h),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msgf("SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
