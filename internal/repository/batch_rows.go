// batch_rows.go — репозиторий производных записей закупочных партий.
// Набор строк документа заменяется только целиком: ReplaceForDocument
// выполняет delete+insert в одной транзакции (all-or-nothing).
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
)

// BatchRowRepository — доступ к производным записям закупочных партий.
type BatchRowRepository interface {
	// ReplaceForDocument атомарно заменяет все строки документа:
	// удаляет существующие и вставляет новые в одной транзакции.
	// Возвращает количество удалённых и вставленных строк.
	ReplaceForDocument(ctx context.Context, documentID int64, rows []model.BatchRow) (deleted int64, imported int, err error)
	// ListByDocument возвращает строки документа в порядке вставки.
	ListByDocument(ctx context.Context, documentID int64) ([]model.BatchRow, error)
	// CountByDocument возвращает количество строк документа.
	CountByDocument(ctx context.Context, documentID int64) (int, error)
}

// batchRowRepo — реализация BatchRowRepository на pgx.
type batchRowRepo struct {
	db DBTX
	tx *TxRunner
}

// NewBatchRowRepository создаёт репозиторий производных записей.
// Пул нужен целиком: ReplaceForDocument открывает собственную транзакцию.
func NewBatchRowRepository(pool *pgxpool.Pool) BatchRowRepository {
	return &batchRowRepo{db: pool, tx: NewTxRunner(pool)}
}

// insertQuery — INSERT по колонкам model.BatchColumns, строится один раз.
var insertQuery = buildInsertQuery()

func buildInsertQuery() string {
	placeholders := make([]string, 0, len(model.BatchColumns)+1)
	// $1 — document_id
	for i := range len(model.BatchColumns) + 1 {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	return fmt.Sprintf(
		"INSERT INTO batch_purchase_rows (document_id, %s) VALUES (%s)",
		strings.Join(model.BatchColumns, ", "),
		strings.Join(placeholders, ", "),
	)
}

// ReplaceForDocument атомарно заменяет все строки документа.
func (r *batchRowRepo) ReplaceForDocument(ctx context.Context, documentID int64, rows []model.BatchRow) (int64, int, error) {
	var deleted int64

	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM batch_purchase_rows WHERE document_id = $1`, documentID)
		if err != nil {
			return fmt.Errorf("ошибка удаления строк документа %d: %w", documentID, err)
		}
		deleted = tag.RowsAffected()

		for i, row := range rows {
			args := make([]any, 0, len(model.BatchColumns)+1)
			args = append(args, documentID)
			for _, col := range model.BatchColumns {
				args = append(args, row.Values[col])
			}
			if _, err := tx.Exec(ctx, insertQuery, args...); err != nil {
				return fmt.Errorf("ошибка вставки строки %d документа %d: %w", i, documentID, err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return deleted, len(rows), nil
}

// ListByDocument возвращает строки документа в порядке вставки.
func (r *batchRowRepo) ListByDocument(ctx context.Context, documentID int64) ([]model.BatchRow, error) {
	query := fmt.Sprintf(
		"SELECT id, document_id, %s FROM batch_purchase_rows WHERE document_id = $1 ORDER BY id",
		strings.Join(model.BatchColumns, ", "),
	)

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения строк документа %d: %w", documentID, err)
	}
	defer rows.Close()

	var result []model.BatchRow
	for rows.Next() {
		row := model.BatchRow{Values: make(map[string]string, len(model.BatchColumns))}
		values := make([]string, len(model.BatchColumns))

		dest := make([]any, 0, len(model.BatchColumns)+2)
		dest = append(dest, &row.ID, &row.DocumentID)
		for i := range values {
			dest = append(dest, &values[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки партии: %w", err)
		}
		for i, col := range model.BatchColumns {
			row.Values[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по строкам партий: %w", err)
	}

	return result, nil
}

// CountByDocument возвращает количество строк документа.
func (r *batchRowRepo) CountByDocument(ctx context.Context, documentID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM batch_purchase_rows WHERE document_id = $1`, documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта строк документа %d: %w", documentID, err)
	}
	return count, nil
}
