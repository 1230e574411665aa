// documents.go — сервис работы с документами: список, выдача файла,
// категоризация, удаление, ручная загрузка.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/repository"
)

// BatchReimporter — запуск reimport партионных строк документа.
// Реализуется ReimportService; в тестах — подделкой.
type BatchReimporter interface {
	Reimport(ctx context.Context, doc *model.Document) (*ReimportResult, error)
}

// DocumentService — сервис документов.
type DocumentService struct {
	docs       repository.DocumentRepository
	ledger     repository.SyncLedgerRepository
	reimporter BatchReimporter
	normalizer PdfNormalizer
	stagingDir string
	storageDir string
	logger     *slog.Logger
}

// NewDocumentService создаёт сервис документов.
func NewDocumentService(
	docs repository.DocumentRepository,
	ledger repository.SyncLedgerRepository,
	reimporter BatchReimporter,
	normalizer PdfNormalizer,
	stagingDir, storageDir string,
	logger *slog.Logger,
) *DocumentService {
	return &DocumentService{
		docs:       docs,
		ledger:     ledger,
		reimporter: reimporter,
		normalizer: normalizer,
		stagingDir: stagingDir,
		storageDir: storageDir,
		logger:     logger.With(slog.String("component", "documents")),
	}
}

// List возвращает страницу документов и общее количество.
func (s *DocumentService) List(ctx context.Context, limit, offset int) ([]model.Document, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.List(ctx, limit, offset)
}

// Get возвращает документ по id.
func (s *DocumentService) Get(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %d", ErrNotFound, id)
		}
		return nil, err
	}
	return doc, nil
}

// FilePath возвращает документ и путь к его файлу для выдачи.
// Отсутствие файла на диске при существующей записи — ErrNotFound.
func (s *DocumentService) FilePath(ctx context.Context, id int64) (*model.Document, string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(doc.StoragePath); err != nil {
		return nil, "", fmt.Errorf("%w: файл документа %d отсутствует в хранилище", ErrNotFound, id)
	}
	return doc, doc.StoragePath, nil
}

// Categorize назначает документу категорию, подкатегорию и метаданные.
// Пустая категория — ErrValidation. Если подкатегория предполагает
// партионные данные, синхронно запускается reimport; отсутствие
// CSV-вложений при этом не считается ошибкой категоризации.
func (s *DocumentService) Categorize(ctx context.Context, id int64, category, subCategory string, metadata map[string]string) (*model.Document, error) {
	if strings.TrimSpace(category) == "" {
		return nil, fmt.Errorf("%w: категория не заполнена", ErrValidation)
	}

	doc, err := s.docs.UpdateClassification(ctx, id, category, subCategory, metadata)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %d", ErrNotFound, id)
		}
		return nil, err
	}

	if model.SubtypeHasBatchData(subCategory) {
		result, err := s.reimporter.Reimport(ctx, doc)
		switch {
		case errors.Is(err, ErrNotFound):
			// Вложения ещё не выложены: категоризация остаётся успешной
			s.logger.Info("CSV-вложения для документа не найдены",
				slog.Int64("document_id", id),
				slog.String("sub_category", subCategory),
			)
		case err != nil:
			return nil, err
		default:
			s.logger.Info("Партионные строки импортированы при категоризации",
				slog.Int64("document_id", id),
				slog.Int("imported", result.Imported),
			)
		}
	}

	return doc, nil
}

// Delete удаляет документ: запись в БД (производные строки каскадом),
// файл в хранилище и связанные записи реестра синхронизации.
// Удаление записи реестра позволяет следующему циклу загрузить файл
// заново, если он всё ещё лежит на шаре.
func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: документ %d", ErrNotFound, id)
		}
		return err
	}

	if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Файл документа не удалён из хранилища",
			slog.Int64("document_id", id),
			slog.String("path", doc.StoragePath),
			slog.String("error", err.Error()),
		)
	}

	if err := s.ledger.DeleteByStagingPath(ctx, doc.StoragePath); err != nil {
		s.logger.Warn("Запись реестра не удалена",
			slog.Int64("document_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Документ удалён", slog.Int64("document_id", id))
	return nil
}

// Upload принимает PDF, загруженный вручную, проводит его через тот же
// конвейер нормализации, что и синхронизация, и регистрирует документ.
func (s *DocumentService) Upload(ctx context.Context, fileName string, r io.Reader) (*model.Document, error) {
	if !isPDF(fileName) {
		return nil, fmt.Errorf("%w: поддерживаются только PDF-файлы", ErrValidation)
	}

	// uuid-префикс исключает коллизии имён при повторных загрузках
	storedName := "upload_" + uuid.NewString() + "_" + filepath.Base(fileName)
	stagingPath := filepath.Join(s.stagingDir, storedName)

	f, err := os.Create(stagingPath)
	if err != nil {
		return nil, fmt.Errorf("создание staging-файла: %w", err)
	}
	size, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(stagingPath) //nolint:errcheck
		return nil, fmt.Errorf("%w: сохранение загруженного файла: %v", ErrTransfer, err)
	}

	result, err := s.normalizer.Normalize(ctx, stagingPath)
	if err != nil {
		os.Remove(stagingPath) //nolint:errcheck
		return nil, fmt.Errorf("%w: %v", ErrOCR, err)
	}

	storagePath := filepath.Join(s.storageDir, storedName)
	if err := os.Rename(stagingPath, storagePath); err != nil {
		os.Remove(stagingPath) //nolint:errcheck
		return nil, fmt.Errorf("перенос в хранилище: %w", err)
	}

	doc, err := s.docs.Create(ctx, &model.Document{
		OriginalName: filepath.Base(fileName),
		StoragePath:  storagePath,
		Preview:      result.Preview,
		PageCount:    result.PageCount,
		SizeBytes:    size,
	})
	if err != nil {
		os.Remove(storagePath) //nolint:errcheck
		return nil, err
	}

	s.logger.Info("Документ загружен вручную",
		slog.Int64("document_id", doc.ID),
		slog.String("original_name", doc.OriginalName),
		slog.Int64("size_bytes", size),
	)

	return doc, nil
}
