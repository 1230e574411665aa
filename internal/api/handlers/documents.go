// documents.go — обработчики работы с документами: список, выдача файла,
// категоризация, reimport партионных данных, ручная загрузка.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/PlogDev/digital-invoice/internal/api/errors"
	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/service"
)

// maxUploadBytes — лимит тела запроса ручной загрузки (200 MiB).
const maxUploadBytes = 200 << 20

// DocumentHandler — обработчик endpoints документов.
type DocumentHandler struct {
	docSvc      *service.DocumentService
	reimportSvc *service.ReimportService
	logger      *slog.Logger
}

// NewDocumentHandler создаёт обработчик документов.
func NewDocumentHandler(docSvc *service.DocumentService, reimportSvc *service.ReimportService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		docSvc:      docSvc,
		reimportSvc: reimportSvc,
		logger:      logger.With(slog.String("component", "document_handler")),
	}
}

// documentListResponse — страница документов.
type documentListResponse struct {
	Documents []model.Document `json:"documents"`
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}

// List — GET /api/v1/documents?limit=&offset=.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, total, err := h.docSvc.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}

	writeJSON(w, http.StatusOK, documentListResponse{
		Documents: docs,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

// Get — GET /api/v1/documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		apierrors.ValidationError(w, "некорректный id документа")
		return
	}

	doc, err := h.docSvc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Download — GET /api/v1/documents/{id}/download.
// Отдаёт PDF-файл документа.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		apierrors.ValidationError(w, "некорректный id документа")
		return
	}

	doc, path, err := h.docSvc.FilePath(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.OriginalName+`"`)
	http.ServeFile(w, r, path)
}

// categorizeRequest — тело запроса категоризации.
type categorizeRequest struct {
	Category    string            `json:"category"`
	SubCategory string            `json:"sub_category"`
	Metadata    map[string]string `json:"metadata"`
}

// Categorize — PUT /api/v1/documents/{id}/category.
// Назначает категорию; подкатегория с партионными данными запускает reimport.
func (h *DocumentHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		apierrors.ValidationError(w, "некорректный id документа")
		return
	}

	var req categorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}

	doc, err := h.docSvc.Categorize(r.Context(), id, req.Category, req.SubCategory, req.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete — DELETE /api/v1/documents/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		apierrors.ValidationError(w, "некорректный id документа")
		return
	}

	if err := h.docSvc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reimport — POST /api/v1/documents/{id}/reimport.
// Явный повторный импорт партионных строк из CSV-вложений.
func (h *DocumentHandler) Reimport(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		apierrors.ValidationError(w, "некорректный id документа")
		return
	}

	result, err := h.reimportSvc.ReimportByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// batchListResponse — партионные строки документа.
type batchListResponse struct {
	Rows  []model.BatchRow `json:"rows"`
	Total int              `json:"total"`
}

// ListBatches — GET /api/v1/documents/{id}/batches.
func (h *DocumentHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		apierrors.ValidationError(w, "некорректный id документа")
		return
	}

	rows, err := h.reimportSvc.ListRows(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []model.BatchRow{}
	}

	writeJSON(w, http.StatusOK, batchListResponse{Rows: rows, Total: len(rows)})
}

// Upload — POST /api/v1/documents/upload (multipart/form-data, поле "file").
// Ручная загрузка PDF через тот же конвейер нормализации, что и sync.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "поле file обязательно: "+err.Error())
		return
	}
	defer file.Close()

	doc, err := h.docSvc.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}
