// handler.go — основной обработчик API Ingest Module.
// Объединяет health и бизнес-обработчики и регистрирует маршруты.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/PlogDev/digital-invoice/internal/api/errors"
	"github.com/PlogDev/digital-invoice/internal/repository"
	"github.com/PlogDev/digital-invoice/internal/service"
)

// APIHandler — основной обработчик API Ingest Module.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health     *HealthHandler
	connection *ConnectionHandler
	sync       *SyncHandler
	documents  *DocumentHandler
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	connection *ConnectionHandler,
	sync *SyncHandler,
	documents *DocumentHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		connection: connection,
		sync:       sync,
		documents:  documents,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// Register регистрирует все маршруты API на router.
func (h *APIHandler) Register(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/connection", func(r chi.Router) {
			r.Post("/", h.connection.Configure)
			r.Get("/", h.connection.Status)
			r.Delete("/", h.connection.Disconnect)
			r.Get("/write-probe", h.connection.WriteProbe)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", h.sync.Run)
			r.Delete("/ledger", h.sync.ResetLedger)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.documents.List)
			r.Post("/upload", h.documents.Upload)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.documents.Get)
				r.Delete("/", h.documents.Delete)
				r.Get("/download", h.documents.Download)
				r.Put("/category", h.documents.Categorize)
				r.Post("/reimport", h.documents.Reimport)
				r.Get("/batches", h.documents.ListBatches)
			})
		})
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// documentID извлекает числовой id документа из пути.
func documentID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// writeServiceError отображает ошибку сервисного слоя на HTTP-ответ.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrSyncInFlight):
		apierrors.SyncInProgress(w, err.Error())
	case errors.Is(err, service.ErrConnection):
		apierrors.ConnectionError(w, err.Error())
	case errors.Is(err, service.ErrTransfer):
		apierrors.TransferError(w, err.Error())
	case errors.Is(err, service.ErrOCR):
		apierrors.OCRError(w, err.Error())
	case errors.Is(err, service.ErrParse):
		apierrors.ParseError(w, err.Error())
	case errors.Is(err, repository.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		apierrors.InternalError(w, err.Error())
	}
}
