// Пакет remotefs — абстракция удалённой файловой системы.
// Пайплайн работает только через интерфейсы Dialer/Conn: продакшен
// использует SMB-реализацию (smb.go), тесты — in-memory подделку.
package remotefs

import (
	"context"
	"io"
	"time"
)

// FileInfo — метаданные удалённого файла или директории.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Conn — активное подключение к удалённой шаре.
// Пути указываются относительно корня шары, разделитель — "/".
// Контекст ограничивает длительность каждой операции.
type Conn interface {
	// ReadDir возвращает содержимое директории.
	ReadDir(ctx context.Context, path string) ([]FileInfo, error)
	// Download копирует содержимое удалённого файла в w.
	// Возвращает количество переданных байт.
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
	// Upload создаёт удалённый файл из r. Возвращает количество байт.
	Upload(ctx context.Context, path string, r io.Reader) (int64, error)
	// Mkdir создаёт директорию.
	Mkdir(ctx context.Context, path string) error
	// Rename переименовывает файл или директорию.
	Rename(ctx context.Context, oldPath, newPath string) error
	// Remove удаляет файл или пустую директорию.
	Remove(ctx context.Context, path string) error
	// Close освобождает подключение. Идемпотентен.
	Close() error
}

// Dialer устанавливает подключение к удалённой шаре.
type Dialer interface {
	// Dial подключается с указанными учётными данными.
	// Ошибка сети/аутентификации возвращается как есть —
	// классификацию выполняет вызывающий слой.
	Dial(ctx context.Context, host, share, username, password string) (Conn, error)
}
