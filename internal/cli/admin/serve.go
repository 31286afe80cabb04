package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/counsel/internal/api/handlers"
	"github.com/cloo-solutions/counsel/internal/caselaw"
	"github.com/cloo-solutions/counsel/internal/config"
	"github.com/cloo-solutions/counsel/internal/database"
	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/jobs"
	"github.com/cloo-solutions/counsel/internal/logging"
	"github.com/cloo-solutions/counsel/internal/openai"
	"github.com/cloo-solutions/counsel/internal/ratelimit"
	"github.com/cloo-solutions/counsel/internal/repository"
	"github.com/cloo-solutions/counsel/internal/server"
	"github.com/cloo-solutions/counsel/internal/service"
	"github.com/cloo-solutions/counsel/internal/storage"
	"github.com/cloo-solutions/counsel/internal/telemetry"
)

const sweepInterval = time.Minute

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the counsel API server: chat streaming, conversation history, health and metrics",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides COUNSEL_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", "file://migrations", "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	logger := logging.NewLoggerWithService("counseld", level)

	if cfg.SentryDSN != "" {
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			logger.WithError(err).Warn("telemetry init failed, continuing without tracing")
		} else {
			defer shutdownTelemetry()
		}
	}

	if !cfg.HasOpenAI() {
		return openai.ErrNoAPIKey
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, source, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	orgRepo := repository.NewOrgRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(orgRepo, apiKeyRepo, uuidGen)

	if cfg.InitOrgName != "" {
		if err := bootstrapInitialOrg(ctx, cfg, authSvc, orgRepo, logger); err != nil {
			return fmt.Errorf("failed to bootstrap initial org: %w", err)
		}
	}

	limiter, sweeper, closeStore, err := newRateLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if sweeper != nil {
		go sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	var objects service.ObjectStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    cfg.S3PathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.WithField("bucket", cfg.S3Bucket).Info("document storage ready")
		objects = s3Client
	}

	openaiCfg := openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, EmbeddingModel: goopenai.EmbeddingModel(cfg.EmbeddingModel)}
	chatClient := openai.NewChatClient(openaiCfg)
	embedder := openai.NewEmbedder(openaiCfg)

	var tools service.ToolExecutor
	var lookup service.CaseLookup
	if cfg.HasCaseLaw() {
		caseLaw := caselaw.NewClient(caselaw.Config{BaseURL: cfg.CaseLawBaseURL, APIKey: cfg.CaseLawAPIKey})
		tools = service.NewCaseLawTools(caseLaw)
		lookup = caseLaw
	}

	driver := service.NewDriver(chatClient, service.DriverConfig{MaxRetries: cfg.LLMMaxRetries}, logger)
	conversations := service.NewConversationService(
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		projectRepo,
		repository.NewTxRunner(pool),
	)

	chatSvc := service.NewChatService(service.ChatDeps{
		Conversations: conversations,
		Limiter:       limiter,
		Expander:      service.NewExpander(chatClient, cfg.UtilityModel, logger),
		Router:        service.NewRouter(repository.NewKnowledgeSourceRepository(pool), embedder, logger),
		Templates:     repository.NewTemplateRepository(pool),
		Documents:     repository.NewDocumentRepository(pool),
		Objects:       objects,
		Coordinator:   service.NewCoordinator(driver, tools, cfg.MaxToolRounds, logger),
		Verifier:      service.NewVerifier(lookup, logger),
	}, service.ChatConfig{
		Model:            cfg.ChatModel,
		AllowedModels:    cfg.AllowedModels,
		SystemPrompt:     service.DefaultSystemPrompt,
		MaxOutputTokens:  cfg.MaxOutputTokens,
		MaxContextTokens: cfg.MaxContextTokens,
		ReasoningEffort:  cfg.ReasoningEffort,
	}, logger)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:       authSvc,
		ChatHandler:         handlers.NewChatHandler(chatSvc, logger),
		ConversationHandler: handlers.NewConversationHandler(conversations),
		ProjectHandler:      handlers.NewProjectHandler(projectRepo),
		MeHandler:           handlers.NewMeHandler(),
		Logger:              logger,
	})

	// No write timeout: answers stream for minutes when tools run.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// newRateLimiter uses Redis when configured so limits hold across instances;
// otherwise counters live in memory and a worker evicts elapsed windows.
func newRateLimiter(ctx context.Context, cfg *config.Config, logger logging.Logger) (*ratelimit.Limiter, *jobs.Worker, func(), error) {
	if cfg.HasRedis() {
		client, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisConfig{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.WithField("addrs", cfg.RedisAddrs).Info("rate limiter using redis")
		store := ratelimit.NewRedisStore(client, "counsel:ratelimit:")
		return ratelimit.NewLimiter(store, cfg.RateLimit, cfg.RateWindow, logger), nil, func() { _ = client.Close() }, nil
	}

	store := ratelimit.NewMemoryStore(0)
	sweeper := jobs.NewWorker("ratelimit-sweeper", ratelimit.NewSweeper(store, logger), sweepInterval, logger)
	return ratelimit.NewLimiter(store, cfg.RateLimit, cfg.RateWindow, logger), sweeper, func() {}, nil
}

func bootstrapInitialOrg(ctx context.Context, cfg *config.Config, authSvc *service.AuthService, orgRepo *repository.OrgRepository, logger logging.Logger) error {
	org, err := orgRepo.GetByName(ctx, cfg.InitOrgName)
	if err != nil && !errors.Is(err, domain.ErrOrganizationNotFound) {
		return fmt.Errorf("failed to check existing org: %w", err)
	}

	if org == nil {
		org, err = authSvc.CreateOrg(ctx, cfg.InitOrgName)
		if err != nil {
			return fmt.Errorf("failed to create org: %w", err)
		}
		logger.WithField("org_id", org.ID).Infof("bootstrap: created organization %q", org.Name)
	} else {
		logger.WithField("org_id", org.ID).Infof("bootstrap: organization %q already exists", org.Name)
	}

	if cfg.InitAPIKey == "" {
		return nil
	}
	if !service.IsValidAPIToken(cfg.InitAPIKey) {
		return fmt.Errorf("invalid COUNSEL_INIT_API_KEY format (expected 'cns_<64 hex chars>')")
	}

	if existing, err := authSvc.GetAPIKeyByHash(ctx, cfg.InitAPIKey); err == nil && existing != nil {
		logger.WithField("key_id", existing.ID).Info("bootstrap: API key already exists")
		return nil
	}

	if err := authSvc.CreateAPIKeyWithToken(ctx, org.ID, cfg.InitUserID, "bootstrap", cfg.InitAPIKey); err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	logger.WithField("user_id", cfg.InitUserID).Info("bootstrap: created API key")
	return nil
}

func runMigrations(databaseURL, sourceURL string, logger logging.Logger) error {
	res, err := database.Migrate(databaseURL, sourceURL)
	if err != nil {
		return err
	}
	switch {
	case res.Empty:
		logger.Info("migrations: none found")
	case res.Applied:
		logger.WithField("version", res.Version).Info("migrations: applied")
	default:
		logger.WithField("version", res.Version).Info("migrations: database is up to date")
	}
	return nil
}
