// connection.go — менеджер подключения к удалённой SMB-шаре.
//
// Владеет единственным подключением модуля: конфигурацией, живой
// сессией и конечным автоматом состояния (connstate). Сканер и цикл
// синхронизации получают подключение через Acquire, а не через
// глобальное состояние.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PlogDev/digital-invoice/internal/domain/connstate"
	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/remotefs"
	"github.com/PlogDev/digital-invoice/internal/repository"
)

// probeDirName — имя временной директории write-пробы.
const probeDirName = "TEST_WRITE_PERMISSIONS"

// ConnectionManager — менеджер подключения к удалённой шаре.
type ConnectionManager struct {
	dialer  remotefs.Dialer
	cfgRepo repository.ConnectionConfigRepository
	state   *connstate.Machine
	logger  *slog.Logger

	mu   sync.Mutex
	conn remotefs.Conn
	cfg  *model.ConnectionConfig
}

// NewConnectionManager создаёт менеджер подключения в состоянии unconfigured.
func NewConnectionManager(
	dialer remotefs.Dialer,
	cfgRepo repository.ConnectionConfigRepository,
	logger *slog.Logger,
) *ConnectionManager {
	sm, _ := connstate.New(connstate.StateUnconfigured)
	return &ConnectionManager{
		dialer:  dialer,
		cfgRepo: cfgRepo,
		state:   sm,
		logger:  logger.With(slog.String("component", "connection_manager")),
	}
}

// LoadSaved восстанавливает сохранённую конфигурацию при старте.
// Подключение не устанавливается — состояние становится disconnected,
// первая синхронизация переподключится сама.
func (m *ConnectionManager) LoadSaved(ctx context.Context) error {
	cfg, err := m.cfgRepo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	if err := m.state.TransitionTo(connstate.StateDisconnected, "загружена сохранённая конфигурация"); err != nil {
		return err
	}

	m.logger.Info("Конфигурация подключения восстановлена",
		slog.String("host", cfg.Host),
		slog.String("share", cfg.Share),
		slog.String("base_path", cfg.BasePath),
	)
	return nil
}

// Configure валидирует и сохраняет конфигурацию подключения.
// Валидация выполняется до любой сетевой активности: пустое поле —
// ErrValidation без попытки подключения. Возвращает статус с найденными
// backup-папками и количеством PDF в каждой.
func (m *ConnectionManager) Configure(ctx context.Context, cfg *model.ConnectionConfig) (*model.ConnectionStatus, error) {
	// Валидация до попытки подключения
	fields := map[string]string{
		"host":      cfg.Host,
		"share":     cfg.Share,
		"username":  cfg.Username,
		"password":  cfg.Password,
		"base_path": cfg.BasePath,
	}
	for name, val := range fields {
		if strings.TrimSpace(val) == "" {
			return nil, fmt.Errorf("%w: поле %s не заполнено", ErrValidation, name)
		}
	}

	conn, err := m.dialer.Dial(ctx, cfg.Host, cfg.Share, cfg.Username, cfg.Password)
	if err != nil {
		m.logger.Warn("Подключение не установлено",
			slog.String("host", cfg.Host),
			slog.String("share", cfg.Share),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	folders, err := m.listBackupFolders(ctx, conn, cfg.BasePath)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	cfg.ConfiguredAt = time.Now().UTC()
	if err := m.cfgRepo.Save(ctx, cfg); err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close() //nolint:errcheck
	}
	m.conn = conn
	m.cfg = cfg
	m.mu.Unlock()

	if err := m.state.TransitionTo(connstate.StateConnected, "configure"); err != nil {
		return nil, err
	}

	m.logger.Info("Подключение настроено",
		slog.String("host", cfg.Host),
		slog.String("share", cfg.Share),
		slog.String("base_path", cfg.BasePath),
		slog.Int("folders", len(folders)),
	)

	return m.statusLocked(folders), nil
}

// Status возвращает текущее состояние подключения.
// Для настроенного подключения пытается получить живой список папок;
// сбой листинга переводит состояние в disconnected (конфигурация
// сохраняется), но ошибкой не является.
func (m *ConnectionManager) Status(ctx context.Context) *model.ConnectionStatus {
	if m.state.Current() == connstate.StateUnconfigured {
		return &model.ConnectionStatus{State: string(connstate.StateUnconfigured)}
	}

	var folders []model.FolderSummary
	conn, cfg, err := m.Acquire(ctx)
	if err == nil {
		folders, err = m.listBackupFolders(ctx, conn, cfg.BasePath)
		if err != nil {
			m.MarkFailure("листинг папок не удался: " + err.Error())
			folders = nil
		}
	}

	return m.statusLocked(folders)
}

// statusLocked собирает ConnectionStatus из текущего состояния.
func (m *ConnectionManager) statusLocked(folders []model.FolderSummary) *model.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &model.ConnectionStatus{
		State:   string(m.state.Current()),
		Folders: folders,
	}
	if m.cfg != nil {
		st.Host = m.cfg.Host
		st.Share = m.cfg.Share
		st.Username = m.cfg.Username
		st.BasePath = m.cfg.BasePath
		t := m.cfg.ConfiguredAt
		st.ConfiguredAt = &t
	}
	return st
}

// Acquire возвращает живое подключение и конфигурацию.
// При состоянии disconnected переподключается по сохранённой
// конфигурации. Без конфигурации — ErrConnection.
func (m *ConnectionManager) Acquire(ctx context.Context) (remotefs.Conn, *model.ConnectionConfig, error) {
	m.mu.Lock()
	cfg := m.cfg
	conn := m.conn
	m.mu.Unlock()

	if cfg == nil {
		return nil, nil, fmt.Errorf("%w: подключение не настроено", ErrConnection)
	}

	if conn != nil && m.state.Current() == connstate.StateConnected {
		return conn, cfg, nil
	}

	newConn, err := m.dialer.Dial(ctx, cfg.Host, cfg.Share, cfg.Username, cfg.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close() //nolint:errcheck
	}
	m.conn = newConn
	m.mu.Unlock()

	if err := m.state.TransitionTo(connstate.StateConnected, "переподключение"); err != nil {
		return nil, nil, err
	}

	m.logger.Info("Подключение восстановлено", slog.String("host", cfg.Host))
	return newConn, cfg, nil
}

// MarkFailure фиксирует сбой подключения: закрывает сессию и переводит
// состояние в disconnected. Конфигурация сохраняется — временный сбой
// сети не требует повторной настройки.
func (m *ConnectionManager) MarkFailure(reason string) {
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close() //nolint:errcheck
		m.conn = nil
	}
	m.mu.Unlock()

	if m.state.Current() == connstate.StateConnected {
		if err := m.state.TransitionTo(connstate.StateDisconnected, reason); err != nil {
			m.logger.Warn("Ошибка перехода состояния", slog.String("error", err.Error()))
		}
	}

	m.logger.Warn("Подключение помечено как сбойное", slog.String("reason", reason))
}

// Disconnect удаляет конфигурацию и сбрасывает состояние. Идемпотентен.
func (m *ConnectionManager) Disconnect(ctx context.Context) error {
	if err := m.cfgRepo.Delete(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close() //nolint:errcheck
		m.conn = nil
	}
	m.cfg = nil
	m.mu.Unlock()

	if m.state.Current() != connstate.StateUnconfigured {
		if err := m.state.TransitionTo(connstate.StateUnconfigured, "disconnect"); err != nil {
			return err
		}
	}

	m.logger.Info("Конфигурация подключения удалена")
	return nil
}

// ProbeWriteAccess проверяет права записи на шаре последовательностью
// неразрушающих операций: создание директории-маркера, копирование
// одного реального PDF в неё, переименование и удаление копии, удаление
// директории. Реальное содержимое шары не модифицируется.
func (m *ConnectionManager) ProbeWriteAccess(ctx context.Context) (*model.WriteProbeReport, error) {
	conn, cfg, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	samplePath, err := m.findSamplePDF(ctx, conn, cfg.BasePath)
	if err != nil {
		m.MarkFailure("write-проба: " + err.Error())
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	report := &model.WriteProbeReport{}
	probeDir := path.Join(cfg.BasePath, probeDirName)
	copyPath := path.Join(probeDir, "probe.pdf")
	renamedPath := path.Join(probeDir, "probe_renamed.pdf")

	record := func(op string, err error) bool {
		entry := model.WriteProbeOp{Operation: op, OK: err == nil}
		if err != nil {
			entry.Error = err.Error()
		}
		report.Operations = append(report.Operations, entry)
		return err == nil
	}

	if record("create_directory", conn.Mkdir(ctx, probeDir)) {
		// Копирование через локальный буфер: download + upload
		var buf bytes.Buffer
		_, copyErr := conn.Download(ctx, samplePath, &buf)
		if copyErr == nil {
			_, copyErr = conn.Upload(ctx, copyPath, &buf)
		}

		if record("copy_file", copyErr) {
			deletePath := copyPath
			if record("rename_file", conn.Rename(ctx, copyPath, renamedPath)) {
				deletePath = renamedPath
			}
			record("delete_file", conn.Remove(ctx, deletePath))
		}

		record("remove_directory", conn.Remove(ctx, probeDir))
	}

	report.Recommendation = model.StrategyDirectManage
	for _, op := range report.Operations {
		if !op.OK {
			report.Recommendation = model.StrategyDownloadOnly
			break
		}
	}

	m.logger.Info("Write-проба завершена",
		slog.String("recommendation", report.Recommendation),
		slog.Int("operations", len(report.Operations)),
	)

	return report, nil
}

// listBackupFolders возвращает backup-папки под базовым путём
// с количеством PDF в каждой, отсортированные по имени.
// Backup-папка — директория, имя которой начинается с "backup"
// (без учёта регистра).
func (m *ConnectionManager) listBackupFolders(ctx context.Context, conn remotefs.Conn, basePath string) ([]model.FolderSummary, error) {
	entries, err := conn.ReadDir(ctx, basePath)
	if err != nil {
		return nil, fmt.Errorf("чтение базового пути %q: %w", basePath, err)
	}

	var folders []model.FolderSummary
	for _, e := range entries {
		if !e.IsDir || !strings.HasPrefix(strings.ToLower(e.Name), "backup") {
			continue
		}

		count := 0
		files, err := conn.ReadDir(ctx, path.Join(basePath, e.Name))
		if err != nil {
			m.logger.Warn("Папка недоступна при подсчёте PDF",
				slog.String("folder", e.Name),
				slog.String("error", err.Error()),
			)
		} else {
			for _, f := range files {
				if !f.IsDir && isPDF(f.Name) {
					count++
				}
			}
		}

		folders = append(folders, model.FolderSummary{Name: e.Name, PDFCount: count})
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// findSamplePDF возвращает путь первого PDF в backup-папках.
func (m *ConnectionManager) findSamplePDF(ctx context.Context, conn remotefs.Conn, basePath string) (string, error) {
	folders, err := m.listBackupFolders(ctx, conn, basePath)
	if err != nil {
		return "", err
	}

	for _, folder := range folders {
		files, err := conn.ReadDir(ctx, path.Join(basePath, folder.Name))
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.IsDir && isPDF(f.Name) {
				return path.Join(basePath, folder.Name, f.Name), nil
			}
		}
	}

	return "", errors.New("в backup-папках нет ни одного PDF для пробы")
}

// isPDF проверяет расширение файла без учёта регистра.
func isPDF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
