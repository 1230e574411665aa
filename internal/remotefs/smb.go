// smb.go — реализация Dialer/Conn поверх SMB2 (hirochachacha/go-smb2).
package remotefs

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"
)

// SMBDialer — Dialer поверх протокола SMB2.
type SMBDialer struct {
	// Таймаут установки TCP+SMB сессии
	Timeout time.Duration
}

// NewSMBDialer создаёт SMB-дайлер с таймаутом подключения.
func NewSMBDialer(timeout time.Duration) *SMBDialer {
	return &SMBDialer{Timeout: timeout}
}

// Dial устанавливает SMB-сессию и монтирует шару.
func (d *SMBDialer) Dial(ctx context.Context, host, share, username, password string) (Conn, error) {
	dialCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var nd net.Dialer
	tcp, err := nd.DialContext(dialCtx, "tcp", net.JoinHostPort(host, "445"))
	if err != nil {
		return nil, fmt.Errorf("TCP-подключение к %s: %w", host, err)
	}

	smbDialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     username,
			Password: password,
		},
	}

	session, err := smbDialer.DialContext(dialCtx, tcp)
	if err != nil {
		tcp.Close()
		return nil, fmt.Errorf("SMB-сессия с %s: %w", host, err)
	}

	fs, err := session.Mount(share)
	if err != nil {
		session.Logoff() //nolint:errcheck
		tcp.Close()
		return nil, fmt.Errorf("монтирование шары %q: %w", share, err)
	}

	return &smbConn{tcp: tcp, session: session, fs: fs}, nil
}

// smbConn — Conn поверх смонтированной SMB-шары.
type smbConn struct {
	tcp     net.Conn
	session *smb2.Session
	fs      *smb2.Share
	closed  bool
}

// smbPath преобразует путь с "/" в формат SMB ("\") без ведущего слеша.
func smbPath(path string) string {
	p := strings.ReplaceAll(path, "/", `\`)
	return strings.TrimPrefix(p, `\`)
}

// ReadDir возвращает содержимое директории.
func (c *smbConn) ReadDir(ctx context.Context, path string) ([]FileInfo, error) {
	entries, err := c.fs.WithContext(ctx).ReadDir(smbPath(path))
	if err != nil {
		return nil, fmt.Errorf("чтение директории %q: %w", path, err)
	}

	result := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		result = append(result, FileInfo{
			Name:    e.Name(),
			Size:    e.Size(),
			ModTime: e.ModTime(),
			IsDir:   e.IsDir(),
		})
	}
	return result, nil
}

// Download копирует содержимое удалённого файла в w.
func (c *smbConn) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	f, err := c.fs.WithContext(ctx).Open(smbPath(path))
	if err != nil {
		return 0, fmt.Errorf("открытие файла %q: %w", path, err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("чтение файла %q: %w", path, err)
	}
	return n, nil
}

// Upload создаёт удалённый файл из r.
func (c *smbConn) Upload(ctx context.Context, path string, r io.Reader) (int64, error) {
	f, err := c.fs.WithContext(ctx).Create(smbPath(path))
	if err != nil {
		return 0, fmt.Errorf("создание файла %q: %w", path, err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("запись файла %q: %w", path, err)
	}
	return n, nil
}

// Mkdir создаёт директорию.
func (c *smbConn) Mkdir(ctx context.Context, path string) error {
	if err := c.fs.WithContext(ctx).Mkdir(smbPath(path), 0o755); err != nil {
		return fmt.Errorf("создание директории %q: %w", path, err)
	}
	return nil
}

// Rename переименовывает файл или директорию.
func (c *smbConn) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := c.fs.WithContext(ctx).Rename(smbPath(oldPath), smbPath(newPath)); err != nil {
		return fmt.Errorf("переименование %q в %q: %w", oldPath, newPath, err)
	}
	return nil
}

// Remove удаляет файл или пустую директорию.
func (c *smbConn) Remove(ctx context.Context, path string) error {
	if err := c.fs.WithContext(ctx).Remove(smbPath(path)); err != nil {
		return fmt.Errorf("удаление %q: %w", path, err)
	}
	return nil
}

// Close размонтирует шару и завершает сессию. Идемпотентен.
func (c *smbConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.fs.Umount()      //nolint:errcheck
	c.session.Logoff() //nolint:errcheck
	return c.tcp.Close()
}
