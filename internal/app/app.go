package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/controller"
	"pseudo_practice_backend/internal/repository"
	"pseudo_practice_backend/internal/service"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/configwatcher"
	"pseudo_practice_backend/pkg/database"
	"pseudo_practice_backend/pkg/logger"
	"pseudo_practice_backend/pkg/monitoring"
	"pseudo_practice_backend/pkg/security"
	"pseudo_practice_backend/pkg/storage"
	"pseudo_practice_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	// ConfigFile 非空时启用配置热更新
	ConfigFile string

	services        *services
	limiter         *security.IPLimiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	progress  *repository.ProgressRepository
	question  *repository.QuestionRepository
	documents *repository.DocumentRepository
}

type services struct {
	ai         *service.AIService
	broker     *service.InferenceBroker
	submission *service.SubmissionService
	reconciler *service.ProgressReconciler
}

type controllers struct {
	submission *controller.SubmissionController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func initRepositories(db *gorm.DB, provider storage.StorageProvider, cfg *config.Config) *repositories {
	return &repositories{
		progress:  repository.NewProgressRepository(db),
		question:  repository.NewQuestionRepository(db),
		documents: repository.NewDocumentRepository(provider, cfg.Storage.DocumentPrefix),
	}
}

func admissionLimits(cfg config.InferenceConfig) service.AdmissionLimits {
	return service.AdmissionLimits{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxRequests:   cfg.MaxRequests,
		TimeWindow:    cfg.TimeWindow(),
	}
}

// newAdmitter redis 后端需要已连接的客户端，否则退回进程内窗口
func newAdmitter(cfg config.InferenceConfig, rdb *redis.Client) service.Admitter {
	limits := admissionLimits(cfg)
	if cfg.AdmissionBackend == util.AdmissionRedis && rdb != nil {
		return service.NewRedisWindow(rdb, cfg.AdmissionKey, limits)
	}
	return service.NewSlidingWindow(limits)
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.ai = service.NewAIService(cfg.AI)
	s.broker = service.NewInferenceBroker(s.ai, newAdmitter(cfg.Inference, rdb), service.BrokerOptions{
		Timeout:      cfg.Inference.Timeout(),
		MaxRetries:   cfg.Inference.MaxRetries,
		RetryBackoff: cfg.Inference.RetryBackoff(),
	})
	s.submission = service.NewSubmissionService(repos.progress, repos.documents, repos.question, s.broker)
	s.reconciler = service.NewProgressReconciler(repos.progress, repos.documents, cfg.Reconcile.BatchSize)

	// 热更新只调整准入上限，其余参数需要重启
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.broker.UpdateLimits(admissionLimits(newCfg.Inference))
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		submission: controller.NewSubmissionController(s.submission),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	if cfg.RateLimit.MaxRequests > 0 && cfg.RateLimit.WindowMinutes > 0 {
		a.limiter = security.NewIPLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
		router.Use(a.limiter.Middleware())
	}

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// Build 用已经建立好的连接组装仓储、服务、控制器和路由
func Build(cfg *config.Config, db *gorm.DB, rdb *redis.Client, provider storage.StorageProvider) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := initRepositories(db, provider, cfg)
	app.services = app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(app.services, db, rdb)

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

// OpenStores 连接数据库、对象存储，以及按需连接 redis
func OpenStores(cfg *config.Config) (*gorm.DB, *redis.Client, storage.StorageProvider, error) {
	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing database: %w", err)
	}

	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, nil, nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	var rdb *redis.Client
	if cfg.Inference.AdmissionBackend == util.AdmissionRedis {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initializing redis: %w", err)
		}
	}

	provider, err := storage.NewStorageProvider(&cfg.Storage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing storage: %w", err)
	}

	return db, rdb, provider, nil
}

// NewApp configDir 非空时监听其中的 config.yaml 做热更新
func NewApp(cfg *config.Config, configDir string) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, rdb, provider, err := OpenStores(cfg)
	if err != nil {
		return nil, err
	}

	// 监控初始化
	monitoring.Init()

	app := Build(cfg, db, rdb, provider)
	if configDir != "" {
		app.ConfigFile = configFilePath(configDir)
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("pseudo-practice-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		app.tracer = tp
	}

	return app, nil
}

// Run 启动 HTTP 服务和后台任务，收到 SIGINT/SIGTERM 后优雅退出
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down server...")

		// 等待进行中的请求（设置5秒的超时时间）
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.Run(gctx)
			return nil
		})
	}

	if a.Config.Reconcile.Enabled {
		interval := time.Duration(a.Config.Reconcile.IntervalSeconds) * time.Second
		g.Go(func() error {
			return a.services.reconciler.Run(gctx, interval)
		})
	}

	if a.ConfigFile != "" {
		g.Go(func() error {
			return configwatcher.WatchConfig(gctx, a.ConfigFile, a.applyConfig)
		})
	}

	err := g.Wait()

	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	_ = logger.Log.Sync()

	logger.Log.Info("Server exiting")
	return err
}

// Reconcile 执行一轮对账后返回，供命令行使用
func Reconcile(ctx context.Context, cfg *config.Config) (int, error) {
	logger.InitLogger(cfg)

	db, _, provider, err := OpenStores(cfg)
	if err != nil {
		return 0, err
	}

	repos := initRepositories(db, provider, cfg)
	reconciler := service.NewProgressReconciler(repos.progress, repos.documents, cfg.Reconcile.BatchSize)
	return reconciler.RunOnce(ctx)
}

// Migrate 只执行建表和默认数据写入
func Migrate(cfg *config.Config) error {
	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	return database.Migrate(db)
}

// configFilePath 配置目录下的 config.yaml
func configFilePath(dir string) string {
	return filepath.Join(dir, "config.yaml")
}
