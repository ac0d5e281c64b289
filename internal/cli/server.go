package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/events"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	"live-quiz-service/internal/realtime"
	"live-quiz-service/internal/security"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var checks []func(context.Context) error

	// Questions and accounts: postgres when configured, memory otherwise.
	var (
		bank     app.QuestionBank
		accounts app.AccountStore
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		db := openBun(cfg.Postgres.URL)
		defer db.Close()

		bank = postgres.NewQuestionBank(pool)
		accounts = postgres.NewAccountStore(db)
		checks = append(checks, pool.Ping)
	} else {
		log.Warn("postgres not configured; questions and accounts are kept in memory")
		bank = memory.NewQuestionBank()
		accounts = memory.NewAccountStore()
	}

	// Quiz state and ledger: redis when configured, memory otherwise.
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		store       app.QuizStore
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		store = redisinfra.NewQuizStore(redisClient, cfg.Redis.Prefix)
		bank = redisinfra.NewQuestionCache(redisClient, bank, cfg.Redis.Prefix, quizTTL)
		checks = append(checks, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	} else {
		store = memory.NewQuizStore()
		bank = memory.NewQuestionCache(bank, quizTTL)
	}

	// Snapshot delivery. Local subscribers always get the feed; push is optional.
	feed := app.NewFeed()
	var (
		hub  *realtime.Hub
		push app.Notifier = app.PollOnly{}
	)
	if cfg.RealtimeEnabled() {
		hub = realtime.NewHub(realtime.HeartbeatConfig{
			PingInterval: config.TTLDuration(cfg.Realtime.PingInterval, 25*time.Second),
			PongTimeout:  config.TTLDuration(cfg.Realtime.PongTimeout, 10*time.Second),
			IdleTimeout:  config.TTLDuration(cfg.Realtime.IdleTimeout, 60*time.Second),
			SendBuffer:   cfg.Realtime.SendBuffer,
		}, log)
		push = hub
	} else {
		log.Info("realtime push disabled; clients poll /api/quiz/state")
	}
	local := app.Notifiers{feed, push}

	// With redis, every instance publishes to the relay and fans out what it receives.
	notifier := local
	var relay *redisinfra.SnapshotRelay
	if redisClient != nil {
		relay = redisinfra.NewSnapshotRelay(redisClient, cfg.Redis.Prefix+":"+cfg.Realtime.RelayChannel, log)
		notifier = app.Notifiers{relay}
	}
	if cfg.AMQP.URL != "" {
		publisher, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Warn("amqp unavailable; state events will not be published", "error", err)
		} else {
			defer publisher.Close()
			notifier = append(notifier, publisher)
		}
	}

	quiz := app.NewQuizService(store, bank, accounts, notifier, app.QuizOptions{
		QuestionWindow:   config.TTLDuration(cfg.Quiz.QuestionWindow, 0),
		Grace:            config.TTLDuration(cfg.Quiz.Grace, 0),
		EnforceDeadlines: cfg.DeadlinesEnforced(),
		Logger:           log,
	})
	defer quiz.Close()
	questions := app.NewQuestionService(bank, quiz)
	accountSvc := app.NewAccountService(accounts, security.NewBcryptHasher(cfg.Auth.BcryptCost))

	if err := accountSvc.EnsureSuperAdmin(ctx, cfg.Bootstrap.Username, cfg.Bootstrap.Password, cfg.Bootstrap.DisplayName, log); err != nil {
		return fmt.Errorf("bootstrap super-admin: %w", err)
	}
	seedQuestions(ctx, questions, cfg.Quiz.SeedFile, log)
	if err := quiz.Resume(ctx); err != nil {
		return fmt.Errorf("resume quiz: %w", err)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("auth.jwtSecret not set; using an ephemeral secret, sessions will not survive a restart")
	}
	tokens := security.NewJWTService(secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))

	router := transport.NewRouter(transport.Deps{
		Quiz:             quiz,
		Questions:        questions,
		Accounts:         accountSvc,
		Tokens:           tokens,
		Feed:             feed,
		Hub:              hub,
		Logger:           log,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AnswersPerMinute: cfg.RateLimit.AnswersPerMinute,
		Ready: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", "addr", server.Addr, "push", hub != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if relay != nil {
		sink := app.Notifiers{local, app.NotifierFunc(quiz.Follow)}
		g.Go(func() error { return relay.Run(gctx, sink, nil) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		if hub != nil {
			hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedQuestions fills an empty bank from the seed file. Failures are logged, not fatal.
func seedQuestions(ctx context.Context, questions *app.QuestionService, path string, log *slog.Logger) {
	seed, err := loadSeedQuestions(path)
	if err != nil {
		log.Warn("question seed skipped", "file", path, "error", err)
		return
	}
	if len(seed) == 0 {
		return
	}
	n, err := questions.Seed(ctx, "seed", seed)
	if err != nil {
		log.Warn("question seed incomplete", "file", path, "added", n, "error", err)
		return
	}
	if n > 0 {
		log.Info("question bank seeded", "file", path, "questions", n)
	}
}
