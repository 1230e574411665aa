// sync_ledger.go — репозиторий реестра синхронизации.
// Запись реестра означает: файл скачан, верифицирован и прошёл OCR.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
)

// SyncLedgerRepository — доступ к реестру синхронизации.
type SyncLedgerRepository interface {
	// List возвращает все записи реестра (для delta-вычисления).
	List(ctx context.Context) ([]model.SyncLedgerEntry, error)
	// Get возвращает запись по идентичности (folder, name) или ErrNotFound.
	Get(ctx context.Context, folder, name string) (*model.SyncLedgerEntry, error)
	// Upsert создаёт запись или обновляет существующую
	// (повторная загрузка изменённого файла).
	Upsert(ctx context.Context, entry *model.SyncLedgerEntry) error
	// Delete удаляет запись по идентичности. Отсутствие записи — не ошибка.
	Delete(ctx context.Context, folder, name string) error
	// DeleteByStagingPath удаляет записи по локальному пути файла
	// (при удалении документа). Отсутствие записей — не ошибка.
	DeleteByStagingPath(ctx context.Context, stagingPath string) error
	// DeleteAll — административный сброс реестра. Возвращает число удалённых записей.
	DeleteAll(ctx context.Context) (int64, error)
}

// syncLedgerRepo — реализация SyncLedgerRepository на pgx.
type syncLedgerRepo struct {
	db DBTX
}

// NewSyncLedgerRepository создаёт репозиторий реестра синхронизации.
func NewSyncLedgerRepository(db DBTX) SyncLedgerRepository {
	return &syncLedgerRepo{db: db}
}

// List возвращает все записи реестра.
func (r *syncLedgerRepo) List(ctx context.Context) ([]model.SyncLedgerEntry, error) {
	query := `
		SELECT folder, file_name, size, ingested_at, staging_path
		FROM sync_ledger
		ORDER BY folder, file_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения реестра: %w", err)
	}
	defer rows.Close()

	var entries []model.SyncLedgerEntry
	for rows.Next() {
		var e model.SyncLedgerEntry
		if err := rows.Scan(&e.Folder, &e.Name, &e.Size, &e.IngestedAt, &e.StagingPath); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи реестра: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по реестру: %w", err)
	}

	return entries, nil
}

// Get возвращает запись по идентичности или ErrNotFound.
func (r *syncLedgerRepo) Get(ctx context.Context, folder, name string) (*model.SyncLedgerEntry, error) {
	query := `
		SELECT folder, file_name, size, ingested_at, staging_path
		FROM sync_ledger
		WHERE folder = $1 AND file_name = $2`

	var e model.SyncLedgerEntry
	err := r.db.QueryRow(ctx, query, folder, name).Scan(
		&e.Folder, &e.Name, &e.Size, &e.IngestedAt, &e.StagingPath,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения записи реестра: %w", err)
	}

	return &e, nil
}

// Upsert создаёт запись или обновляет существующую.
func (r *syncLedgerRepo) Upsert(ctx context.Context, entry *model.SyncLedgerEntry) error {
	query := `
		INSERT INTO sync_ledger (folder, file_name, size, ingested_at, staging_path)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (folder, file_name) DO UPDATE SET
			size = EXCLUDED.size,
			ingested_at = EXCLUDED.ingested_at,
			staging_path = EXCLUDED.staging_path`

	_, err := r.db.Exec(ctx, query,
		entry.Folder, entry.Name, entry.Size, entry.IngestedAt, entry.StagingPath,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи в реестр: %w", err)
	}

	return nil
}

// Delete удаляет запись по идентичности.
func (r *syncLedgerRepo) Delete(ctx context.Context, folder, name string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sync_ledger WHERE folder = $1 AND file_name = $2`,
		folder, name,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи реестра: %w", err)
	}
	return nil
}

// DeleteByStagingPath удаляет записи по локальному пути файла.
func (r *syncLedgerRepo) DeleteByStagingPath(ctx context.Context, stagingPath string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sync_ledger WHERE staging_path = $1`,
		stagingPath,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи реестра по пути: %w", err)
	}
	return nil
}

// DeleteAll удаляет все записи реестра.
func (r *syncLedgerRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sync_ledger`)
	if err != nil {
		return 0, fmt.Errorf("ошибка сброса реестра: %w", err)
	}
	return tag.RowsAffected(), nil
}
