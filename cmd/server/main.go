// Command server runs the ballotgate API. main only wires dependencies;
// business logic lives in the internal services.
//
// With DATABASE_URL set the process runs on Postgres; without it every
// store is in-memory, which is the development mode. REDIS_URL and
// KAFKA_BROKERS enable the shared login lockout and the audit mirror relay
// the same way.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ballotgate/internal/audit"
	ballotHandler "ballotgate/internal/ballot/handler"
	ballotService "ballotgate/internal/ballot/service"
	ballotStore "ballotgate/internal/ballot/store"
	candidacyHandler "ballotgate/internal/candidacy/handler"
	candidacyService "ballotgate/internal/candidacy/service"
	faceHandler "ballotgate/internal/face/handler"
	faceService "ballotgate/internal/face/service"
	identityHandler "ballotgate/internal/identity/handler"
	identityService "ballotgate/internal/identity/service"
	identityStore "ballotgate/internal/identity/store"
	jwttoken "ballotgate/internal/jwt_token"
	"ballotgate/internal/lockout"
	"ballotgate/internal/mailer"
	"ballotgate/internal/platform/config"
	"ballotgate/internal/platform/httpserver"
	"ballotgate/internal/platform/logger"
	"ballotgate/internal/platform/metrics"
	"ballotgate/internal/platform/middleware"
	"ballotgate/internal/platform/postgres"
	"ballotgate/internal/platform/redis"
	sessionHandler "ballotgate/internal/session/handler"
	sessionService "ballotgate/internal/session/service"
	sessionStore "ballotgate/internal/session/store"
	httptransport "ballotgate/internal/transport/http"
)

// identityPersistence is the union of the per-feature identity store
// interfaces, satisfied by both store implementations.
type identityPersistence interface {
	identityService.Store
	candidacyService.IdentityStore
	ballotService.IdentityStore
	faceService.Store
}

type ballotPersistence interface {
	ballotService.BallotStore
	candidacyService.CandidateStore
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		identities identityPersistence
		ballots    ballotPersistence
		sessions   sessionService.Store
		outbox     audit.Store
	)
	if cfg.PostgresURL != "" {
		db, err := postgres.Open(cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		identities = identityStore.NewPostgres(db)
		ballots = ballotStore.NewPostgres(db)
		sessions = sessionStore.NewPostgres(db)
		outbox = audit.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		identities = identityStore.NewMemory()
		ballots = ballotStore.NewMemory()
		sessions = sessionStore.NewMemory()
		outbox = audit.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var lockoutStore lockout.Store = lockout.NewMemory()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		lockoutStore = lockout.NewRedis(redisClient.Client)
		log.Info("using redis lockout store")
	}
	lockouts := lockout.New(lockoutStore, cfg.LockoutThreshold, cfg.LockoutWindow, log)

	var otpMailer identityService.Mailer = mailer.NewLog(log)
	if cfg.ResendAPIKey != "" {
		otpMailer = mailer.NewResend(cfg.ResendAPIKey, cfg.MailFrom)
	} else {
		log.Warn("RESEND_API_KEY not set, one-time codes are logged instead of mailed")
	}

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	publisher := audit.NewPublisher(outbox, log, audit.WithMetrics(m))

	sessionSvc, err := sessionService.New(sessions, log)
	if err != nil {
		return err
	}
	identitySvc, err := identityService.New(identities, otpMailer, tokens, cfg.OTPTTL, log,
		identityService.WithLockout(lockouts),
		identityService.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	candidacySvc := candidacyService.New(identities, ballots, sessionSvc, log,
		candidacyService.WithMetrics(m))
	ballotSvc := ballotService.New(identities, ballots, sessionSvc, log,
		ballotService.WithMetrics(m))
	faceSvc := faceService.New(identities, publisher, cfg.FaceFreshFor, log)

	requireAuth := middleware.RequireAuth(tokens, identitySvc, log)
	optionalAuth := middleware.OptionalAuth(tokens, identitySvc, log)
	requireAdmin := middleware.RequireAdmin(log)

	router := httptransport.NewRouter(log,
		identityHandler.New(identitySvc, requireAuth, log),
		sessionHandler.New(sessionSvc, requireAuth, requireAdmin, log),
		candidacyHandler.New(candidacySvc, requireAuth, requireAdmin, log),
		ballotHandler.New(ballotSvc, requireAuth, optionalAuth, requireAdmin, log),
		faceHandler.New(faceSvc, requireAuth, log),
	)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ballotgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	if len(cfg.Kafka.Brokers) > 0 {
		relay, closeRelay, err := audit.NewRelay(cfg.Kafka, outbox, log, m)
		if err != nil {
			return err
		}
		defer closeRelay()
		g.Go(func() error {
			log.Info("starting audit mirror relay", "topic", cfg.Kafka.Topic)
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
