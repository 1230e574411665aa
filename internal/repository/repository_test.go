package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/PlogDev/digital-invoice/internal/config"
	"github.com/PlogDev/digital-invoice/internal/database"
	"github.com/PlogDev/digital-invoice/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; очистка через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("ingest_test"),
		postgres.WithUsername("ingest"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("IM_DB_HOST", host)
	os.Setenv("IM_DB_PORT", port.Port())
	os.Setenv("IM_DB_NAME", "ingest_test")
	os.Setenv("IM_DB_USER", "ingest")
	os.Setenv("IM_DB_PASSWORD", "test-password")
	os.Setenv("IM_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты ConnectionConfigRepository ---

func TestConnectionConfigSingleRow(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewConnectionConfigRepository(pool)

	// Пустая таблица — ErrNotFound
	if _, err := repo.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() на пустой таблице: err = %v, хотели ErrNotFound", err)
	}

	cfg := &model.ConnectionConfig{
		Host:         "fileserver",
		Share:        "scans",
		Username:     "svc",
		Password:     "secret",
		BasePath:     "scans",
		ConfiguredAt: time.Now().UTC(),
	}
	if err := repo.Save(ctx, cfg); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	// Повторное сохранение заменяет единственную строку
	cfg.Host = "fileserver2"
	if err := repo.Save(ctx, cfg); err != nil {
		t.Fatalf("Повторный Save() ошибка: %v", err)
	}

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Host != "fileserver2" {
		t.Errorf("Host = %q, хотели fileserver2", got.Host)
	}

	if err := repo.Delete(ctx); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() после Delete: err = %v, хотели ErrNotFound", err)
	}
}

// --- Тесты SyncLedgerRepository ---

func TestSyncLedgerUpsertAndDelta(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSyncLedgerRepository(pool)

	entry := &model.SyncLedgerEntry{
		Folder:      "Backup1",
		Name:        "scan.pdf",
		Size:        1024,
		IngestedAt:  time.Now().UTC(),
		StagingPath: "/data/documents/backup1_scan.pdf",
	}
	if err := repo.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	// Upsert той же идентичности обновляет размер
	entry.Size = 2048
	if err := repo.Upsert(ctx, entry); err != nil {
		t.Fatalf("Повторный Upsert() ошибка: %v", err)
	}

	got, err := repo.Get(ctx, "Backup1", "scan.pdf")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Size != 2048 {
		t.Errorf("Size = %d, хотели 2048", got.Size)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() вернул %d записей, хотели 1", len(list))
	}

	// Удаление по staging-пути
	if err := repo.DeleteByStagingPath(ctx, entry.StagingPath); err != nil {
		t.Fatalf("DeleteByStagingPath() ошибка: %v", err)
	}
	if _, err := repo.Get(ctx, "Backup1", "scan.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() после удаления: err = %v, хотели ErrNotFound", err)
	}
}

func TestSyncLedgerDeleteAll(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSyncLedgerRepository(pool)

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		err := repo.Upsert(ctx, &model.SyncLedgerEntry{
			Folder: "Backup1", Name: name, Size: 1,
			IngestedAt: time.Now().UTC(), StagingPath: "/data/documents/backup1_" + name,
		})
		if err != nil {
			t.Fatalf("Upsert(%s) ошибка: %v", name, err)
		}
	}

	deleted, err := repo.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll() ошибка: %v", err)
	}
	if deleted != 3 {
		t.Errorf("DeleteAll() удалил %d записей, хотели 3", deleted)
	}
}

// --- Тесты DocumentRepository ---

func TestDocumentCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	doc, err := repo.Create(ctx, &model.Document{
		OriginalName: "scan.pdf",
		StoragePath:  "/data/documents/backup1_scan.pdf",
		Preview:      "Lieferschein Nr. 42",
		PageCount:    3,
		SizeBytes:    1024,
	})
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if doc.ID == 0 {
		t.Error("ID не назначен")
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// Дубликат storage_path — ErrConflict
	_, err = repo.Create(ctx, &model.Document{
		OriginalName: "scan.pdf",
		StoragePath:  "/data/documents/backup1_scan.pdf",
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликата: err = %v, хотели ErrConflict", err)
	}

	got, err := repo.GetByStoragePath(ctx, "/data/documents/backup1_scan.pdf")
	if err != nil {
		t.Fatalf("GetByStoragePath() ошибка: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("GetByStoragePath().ID = %d, хотели %d", got.ID, doc.ID)
	}

	// Классификация с метаданными
	updated, err := repo.UpdateClassification(ctx, doc.ID,
		"Lieferungen", "Lieferschein_extern", map[string]string{"lieferant": "ACME"})
	if err != nil {
		t.Fatalf("UpdateClassification() ошибка: %v", err)
	}
	if updated.Category != "Lieferungen" || updated.Metadata["lieferant"] != "ACME" {
		t.Errorf("Классификация не применена: %+v", updated)
	}

	docs, total, err := repo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if total != 1 || len(docs) != 1 {
		t.Errorf("List() = %d/%d, хотели 1/1", len(docs), total)
	}

	if err := repo.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Повторный Delete(): err = %v, хотели ErrNotFound", err)
	}
}

// --- Тесты BatchRowRepository ---

func TestBatchRowReplaceAndCascade(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	docRepo := NewDocumentRepository(pool)
	rowRepo := NewBatchRowRepository(pool)

	doc, err := docRepo.Create(ctx, &model.Document{
		OriginalName: "lieferung.pdf",
		StoragePath:  "/data/documents/backup1_lieferung.pdf",
	})
	if err != nil {
		t.Fatalf("Create() документа ошибка: %v", err)
	}

	makeRows := func(n int, suffix string) []model.BatchRow {
		rows := make([]model.BatchRow, n)
		for i := range rows {
			values := make(map[string]string, len(model.BatchColumns))
			for _, col := range model.BatchColumns {
				values[col] = col + suffix
			}
			rows[i] = model.BatchRow{DocumentID: doc.ID, Values: values}
		}
		return rows
	}

	deleted, imported, err := rowRepo.ReplaceForDocument(ctx, doc.ID, makeRows(12, "_v1"))
	if err != nil {
		t.Fatalf("ReplaceForDocument() ошибка: %v", err)
	}
	if deleted != 0 || imported != 12 {
		t.Errorf("Replace = %d/%d, хотели 0/12", deleted, imported)
	}

	// Повторный импорт меньшего набора заменяет целиком
	deleted, imported, err = rowRepo.ReplaceForDocument(ctx, doc.ID, makeRows(10, "_v2"))
	if err != nil {
		t.Fatalf("Повторный ReplaceForDocument() ошибка: %v", err)
	}
	if deleted != 12 || imported != 10 {
		t.Errorf("Replace = %d/%d, хотели 12/10", deleted, imported)
	}

	rows, err := rowRepo.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListByDocument() ошибка: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("ListByDocument() вернул %d строк, хотели 10", len(rows))
	}
	if rows[0].Values["linr"] != "linr_v2" {
		t.Errorf("linr = %q, хотели linr_v2", rows[0].Values["linr"])
	}

	// Удаление документа удаляет строки каскадом
	if err := docRepo.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete() документа ошибка: %v", err)
	}
	count, err := rowRepo.CountByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CountByDocument() ошибка: %v", err)
	}
	if count != 0 {
		t.Errorf("После каскадного удаления осталось %d строк", count)
	}
}
