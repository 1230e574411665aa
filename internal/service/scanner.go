// scanner.go — сканер backup-папок удалённой шары.
// Перечисляет PDF-файлы без передачи содержимого.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/remotefs"
)

// ScanResult — результат сканирования шары.
type ScanResult struct {
	// Файлы в порядке папка-затем-имя (детерминизм отчётов)
	Records []model.RemoteFileRecord
	// Количество просканированных backup-папок (включая сбойные)
	FoldersScanned int
	// Ошибки недоступных папок — сбой одной папки не прерывает скан
	FolderErrors []string
}

// ShareScanner — сканер backup-папок.
type ShareScanner struct {
	scanTimeout time.Duration
	logger      *slog.Logger
}

// NewShareScanner создаёт сканер.
// scanTimeout ограничивает листинг одной папки.
func NewShareScanner(scanTimeout time.Duration, logger *slog.Logger) *ShareScanner {
	return &ShareScanner{
		scanTimeout: scanTimeout,
		logger:      logger.With(slog.String("component", "share_scanner")),
	}
}

// Scan перечисляет PDF во всех backup-папках под базовым путём.
// Недоступность базового пути — ошибка (скан невозможен);
// недоступность отдельной папки записывается в FolderErrors,
// и сканирование продолжается.
func (s *ShareScanner) Scan(ctx context.Context, conn remotefs.Conn, basePath string) (*ScanResult, error) {
	baseCtx, cancel := s.opCtx(ctx)
	entries, err := conn.ReadDir(baseCtx, basePath)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("сканирование базового пути %q: %w", basePath, err)
	}

	var folderNames []string
	for _, e := range entries {
		if e.IsDir && strings.HasPrefix(strings.ToLower(e.Name), "backup") {
			folderNames = append(folderNames, e.Name)
		}
	}
	sort.Strings(folderNames)

	result := &ScanResult{FoldersScanned: len(folderNames)}

	for _, folder := range folderNames {
		// Кооперативная отмена на границе папки
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		folderCtx, cancel := s.opCtx(ctx)
		files, err := conn.ReadDir(folderCtx, path.Join(basePath, folder))
		cancel()
		if err != nil {
			msg := fmt.Sprintf("папка %q: %v", folder, err)
			result.FolderErrors = append(result.FolderErrors, msg)
			s.logger.Warn("Папка недоступна при сканировании",
				slog.String("folder", folder),
				slog.String("error", err.Error()),
			)
			continue
		}

		var names []model.RemoteFileRecord
		for _, f := range files {
			if f.IsDir || !isPDF(f.Name) {
				continue
			}
			names = append(names, model.RemoteFileRecord{
				Folder:  folder,
				Name:    f.Name,
				Size:    f.Size,
				ModTime: f.ModTime,
			})
		}
		sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })
		result.Records = append(result.Records, names...)
	}

	s.logger.Debug("Сканирование завершено",
		slog.Int("folders", result.FoldersScanned),
		slog.Int("files", len(result.Records)),
		slog.Int("folder_errors", len(result.FolderErrors)),
	)

	return result, nil
}

// opCtx возвращает контекст одной сетевой операции с таймаутом сканера.
func (s *ShareScanner) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.scanTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.scanTimeout)
}
