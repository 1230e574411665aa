// sync.go — модели цикла синхронизации: запись реестра и результат цикла.
package model

import "time"

// SyncLedgerEntry — запись реестра синхронизации.
// Инвариант: запись существует тогда и только тогда, когда файл был
// успешно скачан и прошёл OCR-нормализацию хотя бы один раз.
// Создаётся после успешного OCR; не мутируется (кроме upsert при
// повторной загрузке изменённого файла); удаляется административным
// сбросом реестра или вместе с документом.
type SyncLedgerEntry struct {
	// Имя backup-папки (часть идентичности)
	Folder string
	// Имя файла (часть идентичности)
	Name string
	// Размер файла на момент загрузки — основа delta-вычисления
	Size int64
	// Момент успешной загрузки+OCR
	IngestedAt time.Time
	// Локальный путь файла после staging
	StagingPath string
}

// SyncRun — результат одного цикла синхронизации.
// Эфемерен: возвращается вызывающему и логируется, но не сохраняется.
type SyncRun struct {
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	FoldersScanned int       `json:"folders_scanned"`
	TotalFiles     int       `json:"total_files"`
	NewFiles       int       `json:"new_files"`
	Downloaded     int       `json:"downloaded"`
	DownloadFailed int       `json:"download_failed"`
	OcrProcessed   int       `json:"ocr_processed"`
	// Полное количество ошибок (Errors может быть усечён)
	ErrorCount int `json:"error_count"`
	// Список ошибок, усечённый до MaxSyncRunErrors
	Errors []string `json:"errors"`
}

// MaxSyncRunErrors — максимум строк ошибок в SyncRun.
// Ограничивает размер ответа; полное число ошибок сохраняется в ErrorCount.
const MaxSyncRunErrors = 50

// AddError добавляет ошибку в результат цикла с учётом усечения.
// ErrorCount всегда отражает полное число ошибок.
func (r *SyncRun) AddError(msg string) {
	r.ErrorCount++
	if len(r.Errors) < MaxSyncRunErrors {
		r.Errors = append(r.Errors, msg)
	}
}
