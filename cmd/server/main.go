package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"authgate/internal/auth"
	"authgate/internal/maintenance"
	"authgate/internal/oauth"
	"authgate/internal/password"
	"authgate/internal/platform/config"
	"authgate/internal/platform/database"
	"authgate/internal/platform/httpserver"
	"authgate/internal/platform/logger"
	"authgate/internal/platform/metrics"
	"authgate/internal/ratelimit"
	"authgate/internal/seed"
	"authgate/internal/session"
	"authgate/internal/token"
	httptransport "authgate/internal/transport/http"
	"authgate/internal/twofactor"
	"authgate/internal/user"
)

// stores groups the persistence layer so wiring can swap the whole set
// between the in-memory and Postgres implementations at once.
type stores struct {
	users         user.Store
	sessions      session.Store
	history       password.HistoryStore
	clients       oauth.ClientStore
	codes         oauth.AuthCodeStore
	accessTokens  oauth.AccessTokenStore
	refreshTokens oauth.RefreshTokenStore
}

func memoryStores() stores {
	return stores{
		users:         user.NewInMemoryStore(),
		sessions:      session.NewInMemoryStore(),
		history:       password.NewInMemoryHistoryStore(),
		clients:       oauth.NewInMemoryClientStore(),
		codes:         oauth.NewInMemoryAuthCodeStore(),
		accessTokens:  oauth.NewInMemoryAccessTokenStore(),
		refreshTokens: oauth.NewInMemoryRefreshTokenStore(),
	}
}

func postgresStores(db *sql.DB) stores {
	return stores{
		users:         user.NewPostgres(db),
		sessions:      session.NewPostgres(db),
		history:       password.NewPostgresHistoryStore(db),
		clients:       oauth.NewPostgresClientStore(db),
		codes:         oauth.NewPostgresAuthCodeStore(db),
		accessTokens:  oauth.NewPostgresAccessTokenStore(db),
		refreshTokens: oauth.NewPostgresRefreshTokenStore(db),
	}
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st stores
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetConnMaxIdleTime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres unreachable", "error", err)
			os.Exit(1)
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			log.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		st = postgresStores(db)
		log.Info("using postgres stores")
	} else {
		st = memoryStores()
		log.Info("using in-memory stores")
	}

	var counters ratelimit.CounterStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis unreachable", "error", err)
			os.Exit(1)
		}
		counters = ratelimit.NewRedisCounterStore(rdb)
		log.Info("using redis rate-limit counters")
	} else {
		counters = ratelimit.NewInMemoryCounterStore()
	}

	codec, err := token.NewCodec(cfg.MasterSecret, cfg.Issuer)
	if err != nil {
		log.Error("failed to build token codec", "error", err)
		os.Exit(1)
	}

	policy := password.NewPolicy(st.users, st.history, password.NewCorpusChecker(), log, m)
	twoFactor := twofactor.NewService(st.users, "AuthGate", cfg.TwoFactorAdminBypass, log, m)
	sessions := session.NewManager(st.sessions, log, m)
	engine := oauth.NewEngine(st.clients, st.codes, st.accessTokens, st.refreshTokens, codec, log, m)
	authService := auth.NewService(st.users, policy, twoFactor, sessions, &auth.LogSender{Logger: log}, log, m)

	if err := seed.DevClient(ctx, st.clients, log); err != nil {
		log.Error("failed to seed development client", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(authService, st.users, sessions, policy, twoFactor, engine, log, cfg.SecureCookies)
	limiter := ratelimit.NewLimiter(counters, cfg.RateLimitDisabled, log, m)
	router := httptransport.NewRouter(handler, sessions, limiter)

	srv := httpserver.New(cfg.Addr, router)
	sweeper := maintenance.NewSweeper(st.accessTokens, st.refreshTokens, st.sessions, log).
		WithIntervals(cfg.SweepInterval, maintenance.SessionSweepInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting authgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
