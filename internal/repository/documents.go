// documents.go — репозиторий документов.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
)

// DocumentRepository — доступ к документам.
type DocumentRepository interface {
	// Create создаёт документ и возвращает его с назначенным id.
	// При дубликате storage_path возвращает ErrConflict.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)
	// GetByID возвращает документ или ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.Document, error)
	// GetByStoragePath возвращает документ по пути хранения или ErrNotFound.
	GetByStoragePath(ctx context.Context, path string) (*model.Document, error)
	// List возвращает страницу документов и общее количество.
	List(ctx context.Context, limit, offset int) ([]model.Document, int, error)
	// UpdateClassification атомарно заменяет категорию, подкатегорию
	// и метаданные. Возвращает обновлённый документ или ErrNotFound.
	UpdateClassification(ctx context.Context, id int64, category, subCategory string, metadata map[string]string) (*model.Document, error)
	// Delete удаляет документ (производные строки каскадом) или ErrNotFound.
	Delete(ctx context.Context, id int64) error
}

// documentRepo — реализация DocumentRepository на pgx.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

// documentColumns — общий список колонок для SELECT.
const documentColumns = `id, original_name, storage_path, category, sub_category,
	preview, page_count, size_bytes, created_at, metadata`

// scanDocument сканирует одну строку в model.Document.
func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	err := row.Scan(
		&d.ID, &d.OriginalName, &d.StoragePath, &d.Category, &d.SubCategory,
		&d.Preview, &d.PageCount, &d.SizeBytes, &d.CreatedAt, &d.Metadata,
	)
	if err != nil {
		return nil, err
	}
	if d.Metadata == nil {
		d.Metadata = map[string]string{}
	}
	return &d, nil
}

// Create создаёт документ и возвращает его с назначенным id.
func (r *documentRepo) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	query := `
		INSERT INTO documents (original_name, storage_path, category, sub_category,
			preview, page_count, size_bytes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + documentColumns

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	created, err := scanDocument(r.db.QueryRow(ctx, query,
		doc.OriginalName, doc.StoragePath, doc.Category, doc.SubCategory,
		doc.Preview, doc.PageCount, doc.SizeBytes, metadata,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка создания документа: %w", err)
	}

	return created, nil
}

// GetByID возвращает документ или ErrNotFound.
func (r *documentRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения документа: %w", err)
	}

	return doc, nil
}

// GetByStoragePath возвращает документ по пути хранения или ErrNotFound.
func (r *documentRepo) GetByStoragePath(ctx context.Context, path string) (*model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE storage_path = $1`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, path))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения документа по пути: %w", err)
	}

	return doc, nil
}

// List возвращает страницу документов и общее количество.
func (r *documentRepo) List(ctx context.Context, limit, offset int) ([]model.Document, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта документов: %w", err)
	}

	query := `
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка чтения списка документов: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации по документам: %w", err)
	}

	return docs, total, nil
}

// UpdateClassification атомарно заменяет категорию, подкатегорию и метаданные.
func (r *documentRepo) UpdateClassification(ctx context.Context, id int64, category, subCategory string, metadata map[string]string) (*model.Document, error) {
	query := `
		UPDATE documents
		SET category = $2, sub_category = $3, metadata = $4
		WHERE id = $1
		RETURNING ` + documentColumns

	if metadata == nil {
		metadata = map[string]string{}
	}

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id, category, subCategory, metadata))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления классификации: %w", err)
	}

	return doc, nil
}

// Delete удаляет документ. Производные строки удаляются каскадом.
func (r *documentRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
