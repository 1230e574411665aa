// Пакет model — доменные модели Ingest Module.
// remote.go — модели удалённого файлового ресурса (SMB-шары).
package model

import "time"

// ConnectionConfig — конфигурация подключения к удалённой шаре.
// Хранится в единственной строке таблицы connection_config.
// Пароль никогда не попадает в ответы API и логи.
type ConnectionConfig struct {
	// Хост SMB-сервера (имя или IP)
	Host string
	// Имя шары (без слешей)
	Share string
	// Имя пользователя
	Username string
	// Пароль (не эхо-отображается)
	Password string
	// Базовый путь внутри шары, под которым лежат backup-папки
	BasePath string
	// Момент сохранения конфигурации
	ConfiguredAt time.Time
}

// RemoteFileRecord — файл, обнаруженный при сканировании backup-папки.
// Идентичность файла — пара (Folder, Name). Модель эфемерна:
// пересчитывается при каждом сканировании и отдельно не сохраняется.
type RemoteFileRecord struct {
	// Имя backup-папки (прямой потомок базового пути)
	Folder string
	// Имя файла внутри папки
	Name string
	// Размер в байтах по данным удалённой стороны
	Size int64
	// Время модификации на удалённой стороне
	ModTime time.Time
}

// FolderSummary — сводка по одной backup-папке: имя и количество PDF.
type FolderSummary struct {
	Name     string `json:"name"`
	PDFCount int    `json:"pdf_count"`
}

// ConnectionStatus — состояние подключения для API.
// Пароль в статус не попадает.
type ConnectionStatus struct {
	State        string          `json:"state"`
	Host         string          `json:"host,omitempty"`
	Share        string          `json:"share,omitempty"`
	Username     string          `json:"username,omitempty"`
	BasePath     string          `json:"base_path,omitempty"`
	ConfiguredAt *time.Time      `json:"configured_at,omitempty"`
	Folders      []FolderSummary `json:"folders,omitempty"`
}

// WriteProbeOp — результат одной операции write-пробы.
type WriteProbeOp struct {
	Operation string `json:"operation"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// WriteProbeReport — отчёт пробы прав записи на удалённой шаре.
// Recommendation: "direct-manage" если все операции успешны, иначе "download-only".
type WriteProbeReport struct {
	Operations     []WriteProbeOp `json:"operations"`
	Recommendation string         `json:"recommendation"`
}

// Рекомендации стратегии работы с шарой.
const (
	StrategyDirectManage = "direct-manage"
	StrategyDownloadOnly = "download-only"
)
