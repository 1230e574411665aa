// connection.go — обработчики управления подключением к удалённой шаре.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/PlogDev/digital-invoice/internal/api/errors"
	"github.com/PlogDev/digital-invoice/internal/domain/model"
	"github.com/PlogDev/digital-invoice/internal/service"
)

// ConnectionHandler — обработчик endpoints подключения.
type ConnectionHandler struct {
	connMgr *service.ConnectionManager
	logger  *slog.Logger
}

// NewConnectionHandler создаёт обработчик подключения.
func NewConnectionHandler(connMgr *service.ConnectionManager, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connMgr: connMgr,
		logger:  logger.With(slog.String("component", "connection_handler")),
	}
}

// configureRequest — тело запроса настройки подключения.
// Пароль принимается, но никогда не возвращается в ответах.
type configureRequest struct {
	Host     string `json:"host"`
	Share    string `json:"share"`
	Username string `json:"username"`
	Password string `json:"password"`
	BasePath string `json:"base_path"`
}

// Configure — POST /api/v1/connection.
// Сохраняет конфигурацию и устанавливает подключение.
func (h *ConnectionHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}

	status, err := h.connMgr.Configure(r.Context(), &model.ConnectionConfig{
		Host:     req.Host,
		Share:    req.Share,
		Username: req.Username,
		Password: req.Password,
		BasePath: req.BasePath,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Status — GET /api/v1/connection.
// Возвращает состояние подключения и сводку по backup-папкам.
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connMgr.Status(r.Context()))
}

// Disconnect — DELETE /api/v1/connection.
// Удаляет сохранённую конфигурацию и разрывает подключение. Идемпотентен.
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.connMgr.Disconnect(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WriteProbe — GET /api/v1/connection/write-probe.
// Проверяет права записи на шаре последовательностью обратимых операций.
func (h *ConnectionHandler) WriteProbe(w http.ResponseWriter, r *http.Request) {
	report, err := h.connMgr.ProbeWriteAccess(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
