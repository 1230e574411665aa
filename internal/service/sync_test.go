package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
)

// syncEnv — тестовое окружение цикла синхронизации.
type syncEnv struct {
	svc        *SyncService
	connMgr    *ConnectionManager
	conn       *fakeConn
	dialer     *fakeDialer
	ledger     *fakeLedgerRepo
	docs       *fakeDocRepo
	normalizer *fakeNormalizer
	stagingDir string
	storageDir string
}

// newSyncEnv создаёт окружение с настроенным подключением.
// На шаре: scans/Backup1 с тремя PDF, scans/Archive (не backup-папка)
// и scans/Backup1/readme.txt (не PDF).
func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()

	conn := newFakeConn()
	conn.addFile("scans/Backup1/alpha.pdf", []byte("%PDF alpha content"))
	conn.addFile("scans/Backup1/beta.pdf", []byte("%PDF beta"))
	conn.addFile("scans/Backup1/Gamma Scan.pdf", []byte("%PDF gamma scan content here"))
	conn.addFile("scans/Backup1/readme.txt", []byte("not a pdf"))
	conn.addFile("scans/Archive/old.pdf", []byte("%PDF archived"))

	dialer := &fakeDialer{conn: conn}
	logger := newTestLogger()

	connMgr := NewConnectionManager(dialer, &fakeConfigRepo{}, logger)
	_, err := connMgr.Configure(context.Background(), &model.ConnectionConfig{
		Host:     "fileserver",
		Share:    "scans-share",
		Username: "svc",
		Password: "secret",
		BasePath: "scans",
	})
	requireNoError(t, err, "Ошибка настройки подключения")

	ledger := newFakeLedgerRepo()
	docs := newFakeDocRepo()
	normalizer := &fakeNormalizer{}
	stagingDir := t.TempDir()
	storageDir := t.TempDir()

	svc := NewSyncService(
		connMgr, NewShareScanner(time.Second, logger),
		ledger, docs, normalizer,
		stagingDir, storageDir,
		2, 0, 0, logger,
	)

	return &syncEnv{
		svc: svc, connMgr: connMgr, conn: conn, dialer: dialer,
		ledger: ledger, docs: docs, normalizer: normalizer,
		stagingDir: stagingDir, storageDir: storageDir,
	}
}

func TestRunOnce_FirstSync(t *testing.T) {
	env := newSyncEnv(t)

	run, err := env.svc.RunOnce(context.Background())
	requireNoError(t, err, "Ошибка цикла синхронизации")

	if run.FoldersScanned != 1 {
		t.Errorf("FoldersScanned = %d, ожидалось 1 (Archive — не backup-папка)", run.FoldersScanned)
	}
	if run.NewFiles != 3 {
		t.Errorf("NewFiles = %d, ожидалось 3", run.NewFiles)
	}
	if run.Downloaded != 3 || run.OcrProcessed != 3 {
		t.Errorf("Downloaded/OcrProcessed = %d/%d, ожидалось 3/3", run.Downloaded, run.OcrProcessed)
	}
	if run.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, ошибки: %v", run.ErrorCount, run.Errors)
	}

	if env.ledger.size() != 3 {
		t.Errorf("В реестре %d записей, ожидалось 3", env.ledger.size())
	}
	if env.docs.size() != 3 {
		t.Errorf("Зарегистрировано %d документов, ожидалось 3", env.docs.size())
	}

	// Файлы в хранилище под staged-именами, staging пуст
	for _, name := range []string{"backup1_alpha.pdf", "backup1_beta.pdf", "backup1_Gamma Scan.pdf"} {
		if _, err := os.Stat(filepath.Join(env.storageDir, name)); err != nil {
			t.Errorf("Файл %q отсутствует в хранилище: %v", name, err)
		}
	}
	staged, _ := os.ReadDir(env.stagingDir)
	if len(staged) != 0 {
		t.Errorf("Staging не пуст: %d файлов", len(staged))
	}
}

func TestRunOnce_Idempotent(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	_, err := env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка первого цикла")

	run, err := env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка второго цикла")

	if run.NewFiles != 0 {
		t.Errorf("Повторный цикл: NewFiles = %d, ожидалось 0", run.NewFiles)
	}
	if env.normalizer.callCount() != 3 {
		t.Errorf("OCR вызван %d раз, ожидалось 3 (без повторной обработки)", env.normalizer.callCount())
	}
}

func TestRunOnce_DeltaOnSizeChange(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	_, err := env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка первого цикла")

	// Файл изменился на удалённой стороне: новый размер
	env.conn.addFile("scans/Backup1/alpha.pdf", []byte("%PDF alpha content v2 rescanned"))

	run, err := env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка второго цикла")

	if run.NewFiles != 1 {
		t.Errorf("NewFiles = %d, ожидалось 1 (только изменённый файл)", run.NewFiles)
	}
	if env.docs.size() != 3 {
		t.Errorf("Документов %d, ожидалось 3 (повторная загрузка не создаёт дубликат)", env.docs.size())
	}

	entry, err := env.ledger.Get(ctx, "Backup1", "alpha.pdf")
	requireNoError(t, err, "Запись реестра не найдена")
	if entry.Size != int64(len("%PDF alpha content v2 rescanned")) {
		t.Errorf("Размер в реестре %d не обновлён", entry.Size)
	}
}

func TestRunOnce_OCRFailureKeepsFileOutOfLedger(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.normalizer.failFunc = func(p string) error {
		if strings.Contains(p, "beta") {
			return errors.New("распознавание не удалось")
		}
		return nil
	}

	run, err := env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка цикла")

	if run.OcrProcessed != 2 {
		t.Errorf("OcrProcessed = %d, ожидалось 2", run.OcrProcessed)
	}
	if run.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, ожидалось 1", run.ErrorCount)
	}
	if env.ledger.size() != 2 {
		t.Errorf("В реестре %d записей, ожидалось 2 (сбойный файл вне реестра)", env.ledger.size())
	}
	if _, err := os.Stat(filepath.Join(env.stagingDir, "backup1_beta.pdf")); !os.IsNotExist(err) {
		t.Error("Staging-файл сбойного документа не удалён")
	}

	// Следующий цикл повторяет только сбойный файл
	env.normalizer.failFunc = nil
	run, err = env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка повторного цикла")

	if run.NewFiles != 1 || run.OcrProcessed != 1 {
		t.Errorf("Повторный цикл: NewFiles/OcrProcessed = %d/%d, ожидалось 1/1", run.NewFiles, run.OcrProcessed)
	}
	if env.ledger.size() != 3 {
		t.Errorf("В реестре %d записей, ожидалось 3", env.ledger.size())
	}
}

func TestRunOnce_SizeMismatch(t *testing.T) {
	env := newSyncEnv(t)

	// Передача обрывается: недосылаем 3 байта
	env.conn.shortBy["scans/Backup1/alpha.pdf"] = 3

	run, err := env.svc.RunOnce(context.Background())
	requireNoError(t, err, "Ошибка цикла")

	if run.DownloadFailed != 1 {
		t.Errorf("DownloadFailed = %d, ожидалось 1", run.DownloadFailed)
	}
	if run.OcrProcessed != 2 {
		t.Errorf("OcrProcessed = %d, ожидалось 2", run.OcrProcessed)
	}
	if env.ledger.size() != 2 {
		t.Errorf("В реестре %d записей, ожидалось 2", env.ledger.size())
	}
	if _, err := os.Stat(filepath.Join(env.stagingDir, "backup1_alpha.pdf")); !os.IsNotExist(err) {
		t.Error("Неполный staging-файл не удалён")
	}
}

func TestRunOnce_SingleFlight(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env.normalizer.failFunc = func(string) error {
		once.Do(func() {
			close(started)
			<-release
		})
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.RunOnce(ctx)
		done <- err
	}()

	<-started
	if !env.svc.IsInProgress() {
		t.Error("IsInProgress = false во время выполнения цикла")
	}

	_, err := env.svc.RunOnce(ctx)
	if !errors.Is(err, ErrSyncInFlight) {
		t.Errorf("Параллельный запуск: err = %v, ожидался ErrSyncInFlight", err)
	}

	close(release)
	requireNoError(t, <-done, "Ошибка первого цикла")

	if env.svc.IsInProgress() {
		t.Error("IsInProgress = true после завершения цикла")
	}
}

func TestRunOnce_NotConfigured(t *testing.T) {
	logger := newTestLogger()
	connMgr := NewConnectionManager(&fakeDialer{conn: newFakeConn()}, &fakeConfigRepo{}, logger)
	svc := NewSyncService(
		connMgr, NewShareScanner(time.Second, logger),
		newFakeLedgerRepo(), newFakeDocRepo(), &fakeNormalizer{},
		t.TempDir(), t.TempDir(), 2, 0, 0, logger,
	)

	_, err := svc.RunOnce(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("err = %v, ожидался ErrConnection", err)
	}
}

func TestResetLedger(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	_, err := env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка цикла")

	deleted, err := env.svc.ResetLedger(ctx)
	requireNoError(t, err, "Ошибка сброса реестра")
	if deleted != 3 {
		t.Errorf("Удалено %d записей, ожидалось 3", deleted)
	}

	// После сброса все файлы считаются новыми
	run, err := env.svc.RunOnce(ctx)
	requireNoError(t, err, "Ошибка цикла после сброса")
	if run.NewFiles != 3 {
		t.Errorf("NewFiles = %d, ожидалось 3", run.NewFiles)
	}
}

func TestStagedFileName(t *testing.T) {
	tests := []struct {
		folder, name, want string
	}{
		{"Backup1", "scan.pdf", "backup1_scan.pdf"},
		{"Backup Mai 2025", "Lieferschein 17.pdf", "backup_mai_2025_Lieferschein 17.pdf"},
		{"BACKUP", "a.pdf", "backup_a.pdf"},
	}
	for _, tt := range tests {
		if got := StagedFileName(tt.folder, tt.name); got != tt.want {
			t.Errorf("StagedFileName(%q, %q) = %q, ожидалось %q", tt.folder, tt.name, got, tt.want)
		}
	}
}
