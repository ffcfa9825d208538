package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harleysmodernlife/VERN/internal/api/handler"
	"github.com/harleysmodernlife/VERN/internal/api/server"
	"github.com/harleysmodernlife/VERN/internal/audit"
	"github.com/harleysmodernlife/VERN/internal/connectors"
	"github.com/harleysmodernlife/VERN/internal/consent"
	"github.com/harleysmodernlife/VERN/internal/gateway"
	"github.com/harleysmodernlife/VERN/internal/infra"
	"github.com/harleysmodernlife/VERN/internal/infra/auth"
	"github.com/harleysmodernlife/VERN/internal/registry"
	"github.com/harleysmodernlife/VERN/internal/repository/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При завершении main() или срабатывании SIGTERM, cancel() остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	dbURL := cfg.Database.URL
	if dbURL == "" {
		dbURL = os.Getenv("DB_URL")
	}
	if dbURL == "" {
		logger.Fatal("database url is required (config database.url or DB_URL env)")
	}

	initCtx, initCancel := context.WithTimeout(appCtx, 10*time.Second)
	defer initCancel()

	repo, err := postgres.New(initCtx, dbURL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.Bootstrap(initCtx); err != nil {
		logger.Fatal("schema bootstrap failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(initCtx).Err(); err != nil {
		// Redis — сигнальный канал, без него живем в одиночном режиме
		logger.Warn("redis unreachable, pub/sub signals disabled", zap.Error(err))
		rdb = nil
	}

	// 3. Журнал аудита (буфер + пакетная запись в Postgres)
	trail := audit.NewTrail(repo,
		cfg.Engine.AuditBufferSize,
		cfg.Engine.AuditBatchSize,
		cfg.Engine.AuditFlushInterval,
		logger,
	)
	trail.Start()

	// 4. Реестр присутствия: прогрев кеша из БД + слушатель сигналов
	reg := registry.New(repo, rdb, cfg.Registry.OnlineTTL, cfg.Registry.OfflineTTL, logger)
	if err := reg.Init(appCtx); err != nil {
		logger.Fatal("registry warmup failed", zap.Error(err))
	}
	if rdb != nil {
		go reg.StartListener(appCtx)
	}

	// 5. Движок согласий + уборщик истекших разрешений
	engine := consent.New(cfg.Consent.GrantTTL, cfg.Consent.ReuseGrants, rdb, trail, logger)
	go engine.RunSweeper(appCtx, cfg.Consent.SweepInterval)

	// 6. Исполнение + Надежность (Retries, Circuit Breaker, Rate Limit)
	invoker := gateway.NewReliabilityWrapper(&connectors.MockAssistantInvoker{}, cfg.Engine)

	// Метрики
	promReg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(promReg)
	trail.SetDepthHook(func(depth int) {
		metrics.AuditBufferFill.Set(float64(depth))
	})

	// 7. Core (Сборка шлюза)
	core := gateway.NewCore(engine, invoker, trail, reg, metrics, logger)

	// 8. Аутентификация админ-периметра (опционально)
	var validator auth.TokenValidator
	var authH *handler.AuthHandler
	if cfg.Auth.Enabled {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("invalid auth public key", zap.Error(err))
		}
		privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
		if err != nil {
			logger.Fatal("invalid auth private key", zap.Error(err))
		}
		authService := auth.NewService(repo, pubKey, privKey, cfg.Auth.TokenTTL)
		validator = authService
		authH = handler.NewAuthHandler(authService)
	}

	// 9. HTTP Server
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.New(
			cfg,
			logger,
			validator,
			authH,
			handler.NewRegistryHandler(reg),
			handler.NewConsentHandler(engine),
			handler.NewTurnHandler(core),
			handler.NewAuditHandler(repo),
			promReg,
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("control plane started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("control plane stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Останавливаем фоновые горутины и дописываем буфер аудита
	cancel()
	trail.Stop()

	logger.Info("control plane exited properly")
}
