// connection_config.go — репозиторий конфигурации SMB-подключения.
// Таблица содержит не более одной строки (id = 1): у модуля
// единственное удалённое подключение.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
)

// ConnectionConfigRepository — доступ к сохранённой конфигурации подключения.
type ConnectionConfigRepository interface {
	// Get возвращает сохранённую конфигурацию или ErrNotFound.
	Get(ctx context.Context) (*model.ConnectionConfig, error)
	// Save сохраняет конфигурацию (upsert единственной строки).
	Save(ctx context.Context, cfg *model.ConnectionConfig) error
	// Delete удаляет конфигурацию. Идемпотентен.
	Delete(ctx context.Context) error
}

// connectionConfigRepo — реализация ConnectionConfigRepository на pgx.
type connectionConfigRepo struct {
	db DBTX
}

// NewConnectionConfigRepository создаёт репозиторий конфигурации подключения.
func NewConnectionConfigRepository(db DBTX) ConnectionConfigRepository {
	return &connectionConfigRepo{db: db}
}

// Get возвращает сохранённую конфигурацию или ErrNotFound.
func (r *connectionConfigRepo) Get(ctx context.Context) (*model.ConnectionConfig, error) {
	query := `
		SELECT host, share, username, password, base_path, configured_at
		FROM connection_config
		WHERE id = 1`

	var cfg model.ConnectionConfig
	err := r.db.QueryRow(ctx, query).Scan(
		&cfg.Host, &cfg.Share, &cfg.Username, &cfg.Password,
		&cfg.BasePath, &cfg.ConfiguredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения конфигурации подключения: %w", err)
	}

	return &cfg, nil
}

// Save сохраняет конфигурацию (upsert единственной строки).
func (r *connectionConfigRepo) Save(ctx context.Context, cfg *model.ConnectionConfig) error {
	query := `
		INSERT INTO connection_config (id, host, share, username, password, base_path, configured_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			host = EXCLUDED.host,
			share = EXCLUDED.share,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			base_path = EXCLUDED.base_path,
			configured_at = EXCLUDED.configured_at`

	_, err := r.db.Exec(ctx, query,
		cfg.Host, cfg.Share, cfg.Username, cfg.Password,
		cfg.BasePath, cfg.ConfiguredAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения конфигурации подключения: %w", err)
	}

	return nil
}

// Delete удаляет конфигурацию. Идемпотентен.
func (r *connectionConfigRepo) Delete(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DELETE FROM connection_config WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("ошибка удаления конфигурации подключения: %w", err)
	}
	return nil
}
