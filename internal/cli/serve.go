package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/config"
	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/feed/redisfeed"
	"github.com/mmynk/teamsync/internal/membership"
	"github.com/mmynk/teamsync/internal/metrics"
	"github.com/mmynk/teamsync/internal/presence"
	"github.com/mmynk/teamsync/internal/schedule"
	"github.com/mmynk/teamsync/internal/service"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/memory"
	"github.com/mmynk/teamsync/internal/storage/postgres"
	"github.com/mmynk/teamsync/internal/storage/sqlite"
	"github.com/mmynk/teamsync/internal/ws"
	"github.com/mmynk/teamsync/pkg/logging"
	"github.com/mmynk/teamsync/pkg/rpc"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg, logger, nil)
		},
	}
}

// Serve runs the server until ctx is done, then shuts down gracefully.
// ready, when set, is called with the bound address once the listener is
// open.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, ready func(net.Addr)) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	server := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	// Live views never finish on their own; end them when shutdown starts.
	server.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	logger.Info("Connect server starting",
		"address", ln.Addr().String(),
		"store", cfg.Store.Driver,
		"redis", cfg.Redis.Addr != "",
	)
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// app holds the wired server and everything that must be released.
type app struct {
	handler http.Handler
	store   storage.Store
	redis   *redis.Client
	relay   *redisfeed.Relay
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	wired := false
	defer func() {
		if !wired {
			a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	broker := feed.NewBroker()

	// Without Redis commits go straight to the local broker. With Redis
	// they go to the channel and come back through the relay, so every
	// instance sees every commit exactly once.
	var (
		publisher feed.Publisher = broker
		err       error
	)
	if cfg.Redis.Addr != "" {
		a.redis, err = redisfeed.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.relay = redisfeed.NewRelay(a.redis, cfg.Redis.Channel, broker, logger)
		if err := a.relay.Start(ctx); err != nil {
			return nil, err
		}
		publisher = redisfeed.NewPublisher(a.redis, cfg.Redis.Channel)
	}

	a.store, err = openStore(ctx, cfg.Store, storage.Options{
		Retry: storage.RetryPolicy{
			MaxAttempts: cfg.Store.MaxTxAttempts,
			BaseDelay:   cfg.Store.RetryBaseDelay,
		},
		Publisher: publisher,
		Observer:  m.TxObserver(),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Storage initialized", "driver", cfg.Store.Driver)

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	heartbeat := presence.NewHeartbeat(a.store, cfg.Presence.Interval, logger)
	schedules := schedule.NewService(a.store, broker, logger)

	mux := http.NewServeMux()
	service.Mount(mux, service.Deps{
		Store:         a.store,
		Members:       membership.NewService(a.store, broker, logger),
		Schedules:     schedules,
		Authenticator: auth.NewPasswordAuthenticator(a.store),
		JWT:           jwt,
		Heartbeat:     heartbeat,
		Metrics:       m,
		Logger:        logger,
	})
	mux.Handle(ws.Path, ws.NewHandler(jwt, schedules, heartbeat, m, logger, cfg.Server.AllowedOrigins...))
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := requestLogger(logger, cors(cfg.Server.AllowedOrigins, mux))
	// h2c serves HTTP/2 without TLS, which Connect streaming needs.
	a.handler = h2c.NewHandler(handler, &http2.Server{})
	wired = true
	return a, nil
}

// Close releases the store and the Redis connection.
func (a *app) Close() {
	if a.relay != nil {
		a.relay.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func openStore(ctx context.Context, sc config.StoreConfig, opts storage.Options) (storage.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(opts), nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, sc.PostgresURL, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, sc.SQLitePath, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

// requestLogger logs every HTTP request at debug level. RPC outcomes are
// logged by the Connect interceptors.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors adds CORS headers for browser access. An empty allow list allows
// any origin.
func cors(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(allowed) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(allowed, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, "+rpc.ErrorKindHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
