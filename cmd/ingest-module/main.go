// Точка входа Ingest Module — модуля приёма и нормализации сканированных PDF.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/PlogDev/digital-invoice/internal/api/handlers"
	"github.com/PlogDev/digital-invoice/internal/api/middleware"
	"github.com/PlogDev/digital-invoice/internal/config"
	"github.com/PlogDev/digital-invoice/internal/database"
	"github.com/PlogDev/digital-invoice/internal/ocr"
	"github.com/PlogDev/digital-invoice/internal/remotefs"
	"github.com/PlogDev/digital-invoice/internal/repository"
	"github.com/PlogDev/digital-invoice/internal/server"
	"github.com/PlogDev/digital-invoice/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Ingest Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("staging_dir", cfg.StagingDir),
		slog.String("storage_dir", cfg.StorageDir),
	)

	// 3. Рабочие каталоги
	for _, dir := range []string{cfg.StagingDir, cfg.StorageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("Каталог недоступен", slog.String("dir", dir), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 4. Миграции схемы БД
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Подключение к PostgreSQL
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к БД", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// *sql.DB поверх pgxpool — для dephealth SQL checker
	sqlDB := stdlib.OpenDBFromPool(pool)

	// 6. Репозитории
	cfgRepo := repository.NewConnectionConfigRepository(pool)
	ledgerRepo := repository.NewSyncLedgerRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	batchRepo := repository.NewBatchRowRepository(pool)

	// 7. Подключение к удалённой шаре
	dialer := remotefs.NewSMBDialer(cfg.ConnectTimeout)
	connMgr := service.NewConnectionManager(dialer, cfgRepo, logger)
	if err := connMgr.LoadSaved(ctx); err != nil {
		logger.Warn("Сохранённая конфигурация подключения не восстановлена",
			slog.String("error", err.Error()),
		)
	}

	// 8. OCR-конвейер
	engine := ocr.NewOCRmyPDFEngine(cfg.OCRBinary, cfg.OCRLanguage)
	normalizer := ocr.NewNormalizer(engine, cfg.OCRTimeout, cfg.PreviewLength, logger)

	// 9. Сервисы
	scanner := service.NewShareScanner(cfg.ScanTimeout, logger)
	syncSvc := service.NewSyncService(
		connMgr, scanner, ledgerRepo, docRepo, normalizer,
		cfg.StagingDir, cfg.StorageDir,
		cfg.SyncConcurrency, cfg.DownloadTimeout, cfg.AutoSyncInterval,
		logger,
	)
	csvCache := service.NewCSVCache(cfg.CSVCacheSize, cfg.CSVCacheTTL)
	reimportSvc := service.NewReimportService(docRepo, batchRepo, csvCache, logger)
	docSvc := service.NewDocumentService(
		docRepo, ledgerRepo, reimportSvc, normalizer,
		cfg.StagingDir, cfg.StorageDir, logger,
	)

	// 10. Фоновые процессы
	syncSvc.Start(ctx)
	defer syncSvc.Stop()

	// topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"ingest-module",
		cfg.DephealthGroup,
		sqlDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 11. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))
	connectionHandler := handlers.NewConnectionHandler(connMgr, logger)
	syncHandler := handlers.NewSyncHandler(syncSvc, logger)
	documentHandler := handlers.NewDocumentHandler(docSvc, reimportSvc, logger)
	apiHandler := handlers.NewAPIHandler(healthHandler, connectionHandler, syncHandler, documentHandler, logger)

	// 12. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Ingest Module остановлен")
}
