// fakes_test.go — in-memory подделки для тестов сервисного слоя:
// удалённая шара, репозитории и OCR-нормализатор.
package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/ocr"
	"github.com/PlogDev/digital-invoice/internal/remotefs"
	"github.com/PlogDev/digital-invoice/internal/repository"
)

// newTestLogger создаёт логгер, пишущий только ошибки в stderr.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Удалённая шара ---

// fakeConn — in-memory реализация remotefs.Conn.
type fakeConn struct {
	mu    sync.Mutex
	files map[string][]byte // полный путь → содержимое
	dirs  map[string]bool

	// Инъекция сбоев
	readDirErr  map[string]error // путь → ошибка ReadDir
	downloadErr map[string]error // путь → ошибка Download
	shortBy     map[string]int   // путь → сколько байт недослать
	opErr       map[string]error // "mkdir"/"rename"/"remove"/"upload" → ошибка

	closed int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		files:       make(map[string][]byte),
		dirs:        make(map[string]bool),
		readDirErr:  make(map[string]error),
		downloadErr: make(map[string]error),
		shortBy:     make(map[string]int),
		opErr:       make(map[string]error),
	}
}

// addFile добавляет файл, создавая родительские директории.
func (c *fakeConn) addFile(p string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[p] = content
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		c.dirs[dir] = true
	}
}

func (c *fakeConn) ReadDir(_ context.Context, dir string) ([]remotefs.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readDirErr[dir]; err != nil {
		return nil, err
	}
	if !c.dirs[dir] {
		return nil, errors.New("директория не существует: " + dir)
	}

	seen := make(map[string]remotefs.FileInfo)
	prefix := dir + "/"
	for p, content := range c.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if name, _, nested := strings.Cut(rest, "/"); nested {
			seen[name] = remotefs.FileInfo{Name: name, IsDir: true}
		} else {
			seen[name] = remotefs.FileInfo{
				Name:    name,
				Size:    int64(len(content)),
				ModTime: time.Now(),
			}
		}
	}
	for d := range c.dirs {
		if path.Dir(d) == dir {
			seen[path.Base(d)] = remotefs.FileInfo{Name: path.Base(d), IsDir: true}
		}
	}

	infos := make([]remotefs.FileInfo, 0, len(seen))
	for _, info := range seen {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (c *fakeConn) Download(_ context.Context, p string, w io.Writer) (int64, error) {
	c.mu.Lock()
	content, ok := c.files[p]
	err := c.downloadErr[p]
	short := c.shortBy[p]
	c.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("файл не существует: " + p)
	}
	if short > 0 && short < len(content) {
		content = content[:len(content)-short]
	}
	n, err := w.Write(content)
	return int64(n), err
}

func (c *fakeConn) Upload(_ context.Context, p string, r io.Reader) (int64, error) {
	if err := c.opErr["upload"]; err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return n, err
	}
	c.addFile(p, buf.Bytes())
	return n, nil
}

func (c *fakeConn) Mkdir(_ context.Context, p string) error {
	if err := c.opErr["mkdir"]; err != nil {
		return err
	}
	c.mu.Lock()
	c.dirs[p] = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Rename(_ context.Context, oldPath, newPath string) error {
	if err := c.opErr["rename"]; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.files[oldPath]
	if !ok {
		return errors.New("файл не существует: " + oldPath)
	}
	delete(c.files, oldPath)
	c.files[newPath] = content
	return nil
}

func (c *fakeConn) Remove(_ context.Context, p string) error {
	if err := c.opErr["remove"]; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, p)
	delete(c.dirs, p)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

// fakeDialer — подделка remotefs.Dialer с подсчётом подключений.
type fakeDialer struct {
	mu    sync.Mutex
	conn  *fakeConn
	err   error
	dials int
}

func (d *fakeDialer) Dial(_ context.Context, _, _, _, _ string) (remotefs.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// --- Репозитории ---

// fakeConfigRepo — in-memory репозиторий конфигурации подключения.
type fakeConfigRepo struct {
	mu  sync.Mutex
	cfg *model.ConnectionConfig
}

func (r *fakeConfigRepo) Get(_ context.Context) (*model.ConnectionConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return nil, repository.ErrNotFound
	}
	cp := *r.cfg
	return &cp, nil
}

func (r *fakeConfigRepo) Save(_ context.Context, cfg *model.ConnectionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.cfg = &cp
	return nil
}

func (r *fakeConfigRepo) Delete(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = nil
	return nil
}

// fakeLedgerRepo — in-memory реестр синхронизации.
type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries map[string]model.SyncLedgerEntry
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: make(map[string]model.SyncLedgerEntry)}
}

func (r *fakeLedgerRepo) List(_ context.Context) ([]model.SyncLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SyncLedgerEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeLedgerRepo) Get(_ context.Context, folder, name string) (*model.SyncLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[folder+"/"+name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (r *fakeLedgerRepo) Upsert(_ context.Context, entry *model.SyncLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Folder+"/"+entry.Name] = *entry
	return nil
}

func (r *fakeLedgerRepo) Delete(_ context.Context, folder, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, folder+"/"+name)
	return nil
}

func (r *fakeLedgerRepo) DeleteByStagingPath(_ context.Context, stagingPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		if e.StagingPath == stagingPath {
			delete(r.entries, k)
		}
	}
	return nil
}

func (r *fakeLedgerRepo) DeleteAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.entries))
	r.entries = make(map[string]model.SyncLedgerEntry)
	return n, nil
}

func (r *fakeLedgerRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// fakeDocRepo — in-memory репозиторий документов.
type fakeDocRepo struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]model.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[int64]model.Document)}
}

func (r *fakeDocRepo) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.StoragePath == doc.StoragePath {
			return nil, repository.ErrConflict
		}
	}
	r.nextID++
	cp := *doc
	cp.ID = r.nextID
	cp.CreatedAt = time.Now().UTC()
	if cp.Metadata == nil {
		cp.Metadata = map[string]string{}
	}
	r.docs[cp.ID] = cp
	return &cp, nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id int64) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *fakeDocRepo) GetByStoragePath(_ context.Context, p string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.StoragePath == p {
			cp := d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeDocRepo) List(_ context.Context, limit, offset int) ([]model.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var out []model.Document
	for i, id := range ids {
		if i < offset {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, r.docs[id])
	}
	return out, len(r.docs), nil
}

func (r *fakeDocRepo) UpdateClassification(_ context.Context, id int64, category, subCategory string, metadata map[string]string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d.Category = category
	d.SubCategory = subCategory
	if metadata == nil {
		metadata = map[string]string{}
	}
	d.Metadata = metadata
	r.docs[id] = d
	return &d, nil
}

func (r *fakeDocRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *fakeDocRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

// fakeBatchRepo — in-memory репозиторий партионных строк.
type fakeBatchRepo struct {
	mu         sync.Mutex
	rows       map[int64][]model.BatchRow
	replaceErr error
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{rows: make(map[int64][]model.BatchRow)}
}

func (r *fakeBatchRepo) ReplaceForDocument(_ context.Context, documentID int64, rows []model.BatchRow) (int64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return 0, 0, r.replaceErr
	}
	deleted := int64(len(r.rows[documentID]))
	r.rows[documentID] = rows
	return deleted, len(rows), nil
}

func (r *fakeBatchRepo) ListByDocument(_ context.Context, documentID int64) ([]model.BatchRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[documentID], nil
}

func (r *fakeBatchRepo) CountByDocument(_ context.Context, documentID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[documentID]), nil
}

// --- OCR ---

// fakeNormalizer — подделка OCR-нормализатора.
type fakeNormalizer struct {
	mu       sync.Mutex
	calls    int
	failFunc func(path string) error
}

func (n *fakeNormalizer) Normalize(_ context.Context, p string) (*ocr.Result, error) {
	n.mu.Lock()
	n.calls++
	fail := n.failFunc
	n.mu.Unlock()

	if fail != nil {
		if err := fail(p); err != nil {
			return nil, err
		}
	}
	return &ocr.Result{Preview: "распознанный текст", PageCount: 1}, nil
}

func (n *fakeNormalizer) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// requireNoError — короткий fatal-хелпер.
func requireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
