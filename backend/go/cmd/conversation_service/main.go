package main

import (
	"GeoCMS/backend/go/internal/config"
	"GeoCMS/backend/go/internal/conversation_service/api"
	"GeoCMS/backend/go/internal/conversation_service/knowledge"
	"GeoCMS/backend/go/internal/conversation_service/policy"
	"GeoCMS/backend/go/internal/conversation_service/service"
	"GeoCMS/backend/go/internal/conversation_service/store"
	"GeoCMS/backend/go/internal/conversation_service/verifier"
	"GeoCMS/backend/go/internal/conversation_service/writer"
	"GeoCMS/backend/go/internal/database/kafka"
	"GeoCMS/backend/go/internal/database/minio"
	"GeoCMS/backend/go/internal/database/mongo"
	"GeoCMS/backend/go/internal/database/redis"
	"GeoCMS/backend/go/internal/database/sqldb"
	"GeoCMS/backend/go/internal/llm"
	"GeoCMS/backend/go/pkg/discovery/etcd"
	pkgHttp "GeoCMS/backend/go/pkg/http"
	"GeoCMS/backend/go/pkg/logger"
	"GeoCMS/backend/go/pkg/metrics"
	"GeoCMS/backend/go/pkg/runlock"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const serviceName = "conversation_service"

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "AI 原生建站的会话编排服务",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	// 1. 初始化 Logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New(serviceName, "", "")
	appLogger.WithField("version", cfg.App.Version).Info("Logger initialized for Conversation Service")
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := make(map[string]api.HealthCheck)

	// 2. 初始化 SQL 数据库
	db, err := sqldb.GetDB(&cfg.Databases.SQL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := sqldb.Close(db); err != nil {
			appLogger.WithErr(err).Error("Failed to close database cleanly")
		}
	}()
	checks["sql"] = func(ctx context.Context) error { return sqldb.HealthCheck(ctx, db) }

	// 3. 加载规划策略
	p, err := policy.LoadFile(cfg.Planner.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to load planner policy: %w", err)
	}
	policies := policy.NewHolder(p, cfg.Planner.PolicyPath)
	appLogger.WithField("policy", cfg.Planner.PolicyPath).Info("Planner policy loaded")

	// 4. 可选的 Kafka 任务事件发布器
	var publisher store.TaskEventPublisher
	if cfg.Databases.Kafka.Enabled {
		kafkaClient, err := kafka.NewClient(&cfg.Databases.Kafka)
		if err != nil {
			return fmt.Errorf("failed to create kafka client: %w", err)
		}
		defer func() {
			if err := kafkaClient.Close(); err != nil {
				appLogger.WithErr(err).Error("Failed to close kafka client cleanly")
			}
		}()
		publisher = kafka.NewTaskPublisher(kafkaClient.Writer)
		checks["kafka"] = kafkaClient.HealthCheck
		appLogger.Info("Kafka task event publisher initialized")
	}

	// 5. 可选的 MinIO 内容归档
	var archiver store.ContentArchiver
	if cfg.Databases.MinIO.Enabled {
		minioClient, err := minio.GetClient(ctx, &cfg.Databases.MinIO)
		if err != nil {
			return fmt.Errorf("failed to create minio client: %w", err)
		}
		a, err := store.NewMinioArchiver(ctx, minioClient, cfg.Databases.MinIO.Bucket)
		if err != nil {
			return err
		}
		archiver = a
		checks["minio"] = minio.HealthCheck
		appLogger.Info("MinIO content archiver initialized")
	}

	runs := store.NewRunStore(db, policies)
	tasks := store.NewTaskLedger(db, publisher)
	contents := store.NewContentStore(db, archiver)

	// 6. 知识提供者
	provider, err := newKnowledgeProvider(cfg, db, checks)
	if err != nil {
		return err
	}

	// 7. 内容生成器
	generator, err := newGenerator(cfg)
	if err != nil {
		return err
	}
	appLogger.WithField("provider", cfg.LLM.Provider).Info("Content generator initialized")

	// 8. 会话锁
	var locker runlock.Locker = runlock.NewLocalLocker()
	if cfg.Planner.LockBackend == "redis" {
		redisClient, err := redis.GetClient(ctx, &cfg.Databases.Redis)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer redis.Close()
		locker = runlock.NewRedisLocker(redisClient, config.Duration(cfg.Planner.LockTTL))
		checks["redis"] = redis.HealthCheck
		appLogger.Info("Redis run lock initialized")
	}

	// 9. 组装服务
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	engine := service.NewDecisionEngine(runs, tasks, policies, provider, m)
	executor := service.NewWorkflowExecutor(engine, runs, tasks, contents, generator,
		verifier.NewRuleVerifier(), config.Duration(cfg.LLM.Timeout), m)
	coord := service.NewCoordinator(service.Dependencies{
		Runs:     runs,
		Tasks:    tasks,
		Contents: contents,
		Policies: policies,
		Engine:   engine,
		Executor: executor,
		Locker:   locker,
		Metrics:  m,
	})
	appLogger.Info("Conversation service core initialized")

	// 10. 路由与 HTTP 服务器
	router := api.SetupRouter(api.NewHandler(coord, checks), api.RouterOptions{
		JWTSecret:   cfg.Auth.JwtSecret,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
	})
	server, err := pkgHttp.NewServer(cfg, router,
		pkgHttp.WithShutdownTimeout(config.Duration(cfg.Server.ShutdownTimeout)))
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// 11. 注册到 etcd
	if len(cfg.Databases.Etcd.Endpoints) > 0 {
		sd, err := etcd.NewServiceDiscovery(cfg.Databases.Etcd.Endpoints,
			etcd.WithAuth(cfg.Databases.Etcd.Username, cfg.Databases.Etcd.Password))
		if err != nil {
			return fmt.Errorf("failed to create service discovery client: %w", err)
		}
		defer sd.Close()
		addr := cfg.Server.AdvertiseAddr
		if addr == "" {
			addr = server.Addr()
		}
		if err := sd.Register(ctx, serviceName, addr, cfg.Databases.Etcd.LeaseTTL); err != nil {
			return err
		}
	}

	// 12. 启动 HTTP 服务器，收到信号后优雅退出
	appLogger.WithField("address", server.Addr()).Info("Starting HTTP server")
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("HTTP server stopped with error: %w", err)
	}
	appLogger.Info("Conversation service stopped")
	return nil
}

// newKnowledgeProvider 按配置选择 SQL 或 MongoDB 知识库，并在配置了 TTL 时加上缓存。
func newKnowledgeProvider(cfg *config.AppConfig, db *gorm.DB, checks map[string]api.HealthCheck) (knowledge.Provider, error) {
	var provider knowledge.Provider
	switch cfg.Planner.KnowledgeSource {
	case "mongo":
		database, err := mongo.Database(&cfg.Databases.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect knowledge store: %w", err)
		}
		provider = knowledge.NewMongoProvider(database, cfg.Databases.MongoDB.Collection)
		checks["mongodb"] = mongo.HealthCheck
	default:
		provider = knowledge.NewSQLProvider(db)
	}

	ttl := config.Duration(cfg.Planner.KnowledgeTTL)
	if ttl <= 0 {
		return provider, nil
	}
	cached, err := knowledge.NewCachedProvider(provider, cfg.Planner.KnowledgeCache, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge cache: %w", err)
	}
	return cached, nil
}

// newGenerator 按 llm.provider 选择内容生成器。
func newGenerator(cfg *config.AppConfig) (writer.Generator, error) {
	template := writer.NewTemplateWriter()
	if cfg.LLM.Provider == "mock" {
		return template, nil
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	opts := []writer.LLMWriterOption{writer.WithSampling(cfg.LLM.Temperature, cfg.LLM.MaxTokens)}
	if cfg.LLM.CircuitBreaker.Enabled {
		breaker, err := pkgHttp.NewCircuitBreaker("llm-"+cfg.LLM.Provider, cfg.LLM.CircuitBreaker)
		if err != nil {
			return nil, err
		}
		opts = append(opts, writer.WithBreaker(breaker))
	}

	var generator writer.Generator = writer.NewLLMWriter(client, opts...)
	if cfg.LLM.FallbackToMock {
		generator = writer.NewFallbackWriter(generator, template)
	}
	return generator, nil
}
