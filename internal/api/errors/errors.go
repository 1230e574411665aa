// Пакет errors — конструкторы стандартных ошибок API Ingest Module.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт со stdlib допускается, пакет только для HTTP-ответов

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeSyncInProgress  = "SYNC_IN_PROGRESS"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeTransferError   = "TRANSFER_ERROR"
	CodeOCRError        = "OCR_ERROR"
	CodeParseError      = "PARSE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 конфликт состояния.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// SyncInProgress — 409 цикл синхронизации уже выполняется.
func SyncInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeSyncInProgress, message)
}

// ConnectionError — 502 удалённая шара недоступна.
func ConnectionError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeConnectionError, message)
}

// TransferError — 502 сбой передачи файла.
func TransferError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeTransferError, message)
}

// OCRError — 422 файл не прошёл распознавание.
func OCRError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeOCRError, message)
}

// ParseError — 422 некорректное содержимое CSV-вложения.
func ParseError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeParseError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
