// sync.go — сервис цикла синхронизации: scan → delta → download →
// OCR → регистрация документа → запись в реестр.
//
// Гарантии:
//   - В один момент времени выполняется не более одного цикла
//     (mu + inProcess); параллельный запуск получает ErrSyncInFlight.
//   - Запись реестра выполняется только после успешной верификации
//     размера И успешного OCR: падение между загрузкой и OCR оставляет
//     файл вне реестра, и следующий цикл обработает его заново.
//   - Сбой одного файла не прерывает цикл: ошибка попадает в SyncRun.
//   - Записи реестра сериализуются мьютексом (параллельные обработчики).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/ocr"
	"github.com/PlogDev/digital-invoice/internal/remotefs"
	"github.com/PlogDev/digital-invoice/internal/repository"
)

// Prometheus метрики синхронизации
var (
	// syncRunsTotal — количество запусков цикла синхронизации.
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "im_sync_runs_total",
		Help: "Общее количество циклов синхронизации",
	}, []string{"result"})

	// syncDurationSeconds — длительность цикла синхронизации.
	syncDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "im_sync_duration_seconds",
		Help:    "Длительность цикла синхронизации в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	})

	// syncFilesTotal — обработанные файлы по результату.
	syncFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "im_sync_files_total",
		Help: "Общее количество файлов, обработанных синхронизацией",
	}, []string{"result"})
)

// PdfNormalizer — OCR-нормализация одного файла.
// Реализуется ocr.Normalizer; в тестах — подделкой.
type PdfNormalizer interface {
	Normalize(ctx context.Context, filePath string) (*ocr.Result, error)
}

// SyncService — сервис цикла синхронизации.
type SyncService struct {
	connMgr    *ConnectionManager
	scanner    *ShareScanner
	ledger     repository.SyncLedgerRepository
	docs       repository.DocumentRepository
	normalizer PdfNormalizer

	stagingDir      string
	storageDir      string
	concurrency     int
	downloadTimeout time.Duration
	autoInterval    time.Duration
	logger          *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска цикла
	inProcess bool       // цикл в процессе выполнения
	cancel    context.CancelFunc

	ledgerMu sync.Mutex // сериализация записей реестра
}

// NewSyncService создаёт сервис синхронизации.
func NewSyncService(
	connMgr *ConnectionManager,
	scanner *ShareScanner,
	ledger repository.SyncLedgerRepository,
	docs repository.DocumentRepository,
	normalizer PdfNormalizer,
	stagingDir, storageDir string,
	concurrency int,
	downloadTimeout, autoInterval time.Duration,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		connMgr:         connMgr,
		scanner:         scanner,
		ledger:          ledger,
		docs:            docs,
		normalizer:      normalizer,
		stagingDir:      stagingDir,
		storageDir:      storageDir,
		concurrency:     concurrency,
		downloadTimeout: downloadTimeout,
		autoInterval:    autoInterval,
		logger:          logger.With(slog.String("component", "sync")),
	}
}

// Start запускает фоновую авто-синхронизацию, если интервал задан.
func (s *SyncService) Start(ctx context.Context) {
	if s.autoInterval <= 0 {
		s.logger.Info("Авто-синхронизация отключена")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(runCtx)

	s.logger.Info("Авто-синхронизация запущена",
		slog.String("interval", s.autoInterval.String()),
	)
}

// Stop останавливает фоновую авто-синхронизацию.
func (s *SyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Авто-синхронизация остановлена")
}

// IsInProgress возвращает true, если цикл выполняется.
func (s *SyncService) IsInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProcess
}

// run — основной цикл фоновой горутины авто-синхронизации.
func (s *SyncService) run(ctx context.Context) {
	ticker := time.NewTicker(s.autoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrSyncInFlight) {
					// Тихий пропуск: предыдущий цикл ещё работает
					s.logger.Debug("Авто-синхронизация пропущена, цикл уже выполняется")
					continue
				}
				s.logger.Warn("Авто-синхронизация завершилась с ошибкой",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce выполняет один цикл синхронизации.
// Возвращает ErrSyncInFlight, если цикл уже выполняется, и
// ErrConnection, если подключение/скан невозможны. Ошибки отдельных
// файлов цикл не прерывают — они агрегируются в SyncRun.
func (s *SyncService) RunOnce(ctx context.Context) (*model.SyncRun, error) {
	s.mu.Lock()
	if s.inProcess {
		s.mu.Unlock()
		return nil, ErrSyncInFlight
	}
	s.inProcess = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProcess = false
		s.mu.Unlock()
	}()

	run := &model.SyncRun{StartedAt: time.Now().UTC(), Errors: []string{}}
	s.logger.Info("Цикл синхронизации начат")

	// 1. Подключение
	conn, cfg, err := s.connMgr.Acquire(ctx)
	if err != nil {
		syncRunsTotal.WithLabelValues("connection_error").Inc()
		return nil, err
	}

	// 2. Сканирование
	scan, err := s.scanner.Scan(ctx, conn, cfg.BasePath)
	if err != nil {
		s.connMgr.MarkFailure("сканирование не удалось: " + err.Error())
		syncRunsTotal.WithLabelValues("scan_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	run.FoldersScanned = scan.FoldersScanned
	run.TotalFiles = len(scan.Records)
	for _, msg := range scan.FolderErrors {
		run.AddError(msg)
	}

	// 3. Delta: новый файл — нет записи в реестре или размер изменился
	entries, err := s.ledger.List(ctx)
	if err != nil {
		syncRunsTotal.WithLabelValues("ledger_error").Inc()
		return nil, err
	}
	known := make(map[string]model.SyncLedgerEntry, len(entries))
	for _, e := range entries {
		known[ledgerKey(e.Folder, e.Name)] = e
	}

	var newRecords []model.RemoteFileRecord
	for _, rec := range scan.Records {
		entry, ok := known[ledgerKey(rec.Folder, rec.Name)]
		if !ok || entry.Size != rec.Size {
			newRecords = append(newRecords, rec)
		}
	}
	run.NewFiles = len(newRecords)

	// 4. Параллельная обработка файлов (download → OCR → реестр)
	var runMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, rec := range newRecords {
		// Кооперативная отмена на границе файла
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			s.processFile(gctx, conn, cfg, rec, run, &runMu)
			return nil
		})
	}

	g.Wait() //nolint:errcheck // ошибки файлов агрегируются в run

	run.CompletedAt = time.Now().UTC()
	duration := run.CompletedAt.Sub(run.StartedAt)

	syncRunsTotal.WithLabelValues("ok").Inc()
	syncDurationSeconds.Observe(duration.Seconds())

	s.logger.Info("Цикл синхронизации завершён",
		slog.Int("folders_scanned", run.FoldersScanned),
		slog.Int("total_files", run.TotalFiles),
		slog.Int("new_files", run.NewFiles),
		slog.Int("downloaded", run.Downloaded),
		slog.Int("download_failed", run.DownloadFailed),
		slog.Int("ocr_processed", run.OcrProcessed),
		slog.Int("errors", run.ErrorCount),
		slog.Duration("duration", duration),
	)

	return run, nil
}

// processFile обрабатывает один файл: загрузка с верификацией размера,
// OCR-нормализация, перенос в хранилище, регистрация документа и
// запись в реестр. Все ошибки агрегируются в run под runMu.
func (s *SyncService) processFile(
	ctx context.Context,
	conn remotefs.Conn,
	cfg *model.ConnectionConfig,
	rec model.RemoteFileRecord,
	run *model.SyncRun,
	runMu *sync.Mutex,
) {
	fail := func(result, msg string) {
		syncFilesTotal.WithLabelValues(result).Inc()
		runMu.Lock()
		run.AddError(msg)
		runMu.Unlock()
	}

	// Загрузка в staging
	stagingPath := filepath.Join(s.stagingDir, StagedFileName(rec.Folder, rec.Name))
	if err := s.download(ctx, conn, cfg, rec, stagingPath); err != nil {
		runMu.Lock()
		run.DownloadFailed++
		runMu.Unlock()
		fail("download_failed", err.Error())
		return
	}

	runMu.Lock()
	run.Downloaded++
	runMu.Unlock()
	syncFilesTotal.WithLabelValues("downloaded").Inc()

	// OCR-нормализация. Сбой оставляет файл вне реестра —
	// следующий цикл повторит загрузку и распознавание.
	result, err := s.normalizer.Normalize(ctx, stagingPath)
	if err != nil {
		os.Remove(stagingPath) //nolint:errcheck
		fail("ocr_failed", fmt.Sprintf("%v: %s/%s: %v", ErrOCR, rec.Folder, rec.Name, err))
		return
	}

	// Перенос из staging в постоянное хранилище
	storagePath := filepath.Join(s.storageDir, StagedFileName(rec.Folder, rec.Name))
	if err := os.Rename(stagingPath, storagePath); err != nil {
		os.Remove(stagingPath) //nolint:errcheck
		fail("store_failed", fmt.Sprintf("перенос в хранилище %s/%s: %v", rec.Folder, rec.Name, err))
		return
	}

	// Регистрация документа. Повторная загрузка изменённого файла
	// не создаёт дубликат — запись уже существует.
	if err := s.registerDocument(ctx, rec, storagePath, result); err != nil {
		fail("register_failed", fmt.Sprintf("регистрация %s/%s: %v", rec.Folder, rec.Name, err))
		return
	}

	// Запись в реестр — только после успешного OCR. Сериализуется
	// мьютексом: параллельные обработчики не гонятся за запись.
	s.ledgerMu.Lock()
	err = s.ledger.Upsert(ctx, &model.SyncLedgerEntry{
		Folder:      rec.Folder,
		Name:        rec.Name,
		Size:        rec.Size,
		IngestedAt:  time.Now().UTC(),
		StagingPath: storagePath,
	})
	s.ledgerMu.Unlock()
	if err != nil {
		fail("ledger_failed", fmt.Sprintf("реестр %s/%s: %v", rec.Folder, rec.Name, err))
		return
	}

	runMu.Lock()
	run.OcrProcessed++
	runMu.Unlock()
	syncFilesTotal.WithLabelValues("ocr_processed").Inc()
}

// download загружает файл в staging и верифицирует размер.
// Несовпадение переданных байт с размером на удалённой стороне —
// ErrTransfer: файл удаляется и будет повторён следующим циклом.
func (s *SyncService) download(ctx context.Context, conn remotefs.Conn, cfg *model.ConnectionConfig, rec model.RemoteFileRecord, stagingPath string) error {
	dlCtx := ctx
	if s.downloadTimeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, s.downloadTimeout)
		defer cancel()
	}

	f, err := os.Create(stagingPath)
	if err != nil {
		return fmt.Errorf("%w: создание staging-файла %q: %v", ErrTransfer, stagingPath, err)
	}

	remotePath := path.Join(cfg.BasePath, rec.Folder, rec.Name)
	n, err := conn.Download(dlCtx, remotePath, f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(stagingPath) //nolint:errcheck
		return fmt.Errorf("%w: %s/%s: %v", ErrTransfer, rec.Folder, rec.Name, err)
	}

	if n != rec.Size {
		os.Remove(stagingPath) //nolint:errcheck
		return fmt.Errorf("%w: %s/%s: передано %d байт, ожидалось %d",
			ErrTransfer, rec.Folder, rec.Name, n, rec.Size)
	}

	return nil
}

// registerDocument создаёт запись документа, если её ещё нет.
func (s *SyncService) registerDocument(ctx context.Context, rec model.RemoteFileRecord, storagePath string, result *ocr.Result) error {
	_, err := s.docs.GetByStoragePath(ctx, storagePath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	_, err = s.docs.Create(ctx, &model.Document{
		OriginalName: rec.Name,
		StoragePath:  storagePath,
		Preview:      result.Preview,
		PageCount:    result.PageCount,
		SizeBytes:    rec.Size,
	})
	if errors.Is(err, repository.ErrConflict) {
		// Параллельный обработчик успел первым
		return nil
	}
	return err
}

// ResetLedger — административный сброс реестра синхронизации.
// Отклоняется, пока выполняется цикл.
func (s *SyncService) ResetLedger(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.inProcess {
		s.mu.Unlock()
		return 0, ErrSyncInFlight
	}
	s.mu.Unlock()

	deleted, err := s.ledger.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Реестр синхронизации сброшен", slog.Int64("deleted", deleted))
	return deleted, nil
}

// ledgerKey — ключ идентичности файла для delta-вычисления.
func ledgerKey(folder, name string) string {
	return folder + "/" + name
}

// StagedFileName — локальное имя файла: папка в нижнем регистре,
// пробелы заменены подчёркиваниями, затем исходное имя.
// "Backup Mai"/"scan 1.pdf" → "backup_mai_scan 1.pdf".
func StagedFileName(folder, name string) string {
	prefix := strings.ReplaceAll(strings.ToLower(folder), " ", "_")
	return prefix + "_" + name
}
