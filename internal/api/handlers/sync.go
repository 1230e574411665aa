// sync.go — обработчики запуска синхронизации и сброса реестра.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/PlogDev/digital-invoice/internal/service"
)

// SyncHandler — обработчик endpoints синхронизации.
type SyncHandler struct {
	syncSvc *service.SyncService
	logger  *slog.Logger
}

// NewSyncHandler создаёт обработчик синхронизации.
func NewSyncHandler(syncSvc *service.SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		syncSvc: syncSvc,
		logger:  logger.With(slog.String("component", "sync_handler")),
	}
}

// Run — POST /api/v1/sync.
// Запускает цикл синхронизации и возвращает его результат.
// Параллельный запуск — 409 SYNC_IN_PROGRESS.
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.syncSvc.RunOnce(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// resetLedgerResponse — ответ сброса реестра.
type resetLedgerResponse struct {
	Deleted int64 `json:"deleted"`
}

// ResetLedger — DELETE /api/v1/sync/ledger.
// Административный сброс реестра: следующий цикл загрузит всё заново.
func (h *SyncHandler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.syncSvc.ResetLedger(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetLedgerResponse{Deleted: deleted})
}
