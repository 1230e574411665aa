// reimport.go — координатор reimport партионных данных.
//
// CSV-вложения лежат рядом с PDF в хранилище: <stem>.csv и
// <stem>_*.csv, где stem — имя PDF без расширения (регистр не важен).
// Разбор всех вложений завершается до первого обращения к БД, затем
// набор строк документа заменяется целиком в одной транзакции:
// ошибка разбора никогда не оставляет документ с частичными данными.
//
// Параллельные reimport одного документа сериализуются мьютексом на
// документ; разные документы не блокируют друг друга.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/repository"
)

var (
	reimportRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "im_reimport_runs_total",
		Help: "Общее количество запусков reimport",
	}, []string{"result"})

	reimportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "im_reimport_rows_total",
		Help: "Строки партионных данных, обработанные reimport",
	}, []string{"operation"})
)

// ReimportResult — итог одного reimport.
type ReimportResult struct {
	// Количество удалённых прежних строк
	Deleted int64 `json:"deleted"`
	// Количество импортированных строк
	Imported int `json:"imported"`
	// Имена обработанных CSV-вложений
	Attachments []string `json:"attachments"`
}

// ReimportService — координатор reimport партионных данных.
type ReimportService struct {
	docs   repository.DocumentRepository
	rows   repository.BatchRowRepository
	cache  *CSVCache
	logger *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex // мьютекс на документ
}

// NewReimportService создаёт координатор reimport.
func NewReimportService(
	docs repository.DocumentRepository,
	rows repository.BatchRowRepository,
	cache *CSVCache,
	logger *slog.Logger,
) *ReimportService {
	return &ReimportService{
		docs:   docs,
		rows:   rows,
		cache:  cache,
		logger: logger.With(slog.String("component", "reimport")),
		locks:  make(map[int64]*sync.Mutex),
	}
}

// lockFor возвращает мьютекс документа, создавая его при первом обращении.
func (s *ReimportService) lockFor(documentID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[documentID] = l
	}
	return l
}

// Reimport заменяет партионные строки документа содержимым его
// CSV-вложений. Отсутствие вложений — ErrNotFound; ошибка разбора
// любого вложения — ErrParse, и прежний набор строк сохраняется.
func (s *ReimportService) Reimport(ctx context.Context, doc *model.Document) (*ReimportResult, error) {
	if !model.SubtypeHasBatchData(doc.SubCategory) {
		return nil, fmt.Errorf("%w: подкатегория %q не предполагает партионные данные",
			ErrValidation, doc.SubCategory)
	}

	l := s.lockFor(doc.ID)
	l.Lock()
	defer l.Unlock()

	attachments, err := findAttachments(doc.StoragePath)
	if err != nil {
		reimportRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(attachments) == 0 {
		reimportRunsTotal.WithLabelValues("no_attachments").Inc()
		return nil, fmt.Errorf("%w: CSV-вложения для документа %d отсутствуют", ErrNotFound, doc.ID)
	}

	// Полный разбор всех вложений до первого обращения к БД
	var parsed []model.BatchRow
	for _, path := range attachments {
		rows, err := s.cache.Load(path)
		if err != nil {
			reimportRunsTotal.WithLabelValues("parse_error").Inc()
			return nil, err
		}
		for _, values := range rows {
			parsed = append(parsed, model.BatchRow{DocumentID: doc.ID, Values: values})
		}
	}

	deleted, imported, err := s.rows.ReplaceForDocument(ctx, doc.ID, parsed)
	if err != nil {
		reimportRunsTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	reimportRunsTotal.WithLabelValues("ok").Inc()
	reimportRowsTotal.WithLabelValues("deleted").Add(float64(deleted))
	reimportRowsTotal.WithLabelValues("imported").Add(float64(imported))

	names := make([]string, len(attachments))
	for i, path := range attachments {
		names[i] = filepath.Base(path)
	}

	s.logger.Info("Reimport завершён",
		slog.Int64("document_id", doc.ID),
		slog.Int64("deleted", deleted),
		slog.Int("imported", imported),
		slog.Int("attachments", len(names)),
	)

	return &ReimportResult{Deleted: deleted, Imported: imported, Attachments: names}, nil
}

// ReimportByID загружает документ и выполняет Reimport.
func (s *ReimportService) ReimportByID(ctx context.Context, documentID int64) (*ReimportResult, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %d", ErrNotFound, documentID)
		}
		return nil, err
	}
	return s.Reimport(ctx, doc)
}

// ListRows возвращает партионные строки документа.
func (s *ReimportService) ListRows(ctx context.Context, documentID int64) ([]model.BatchRow, error) {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %d", ErrNotFound, documentID)
		}
		return nil, err
	}
	return s.rows.ListByDocument(ctx, documentID)
}

// findAttachments ищет CSV-вложения рядом с PDF документа:
// <stem>.csv и <stem>_*.csv, регистр не важен. Результат отсортирован.
func findAttachments(storagePath string) ([]string, error) {
	dir := filepath.Dir(storagePath)
	base := filepath.Base(storagePath)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога вложений %q: %w", dir, err)
	}

	var attachments []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		nameStem := strings.TrimSuffix(name, ".csv")
		if nameStem == stem || strings.HasPrefix(nameStem, stem+"_") {
			attachments = append(attachments, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(attachments)

	return attachments, nil
}
