package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/models"
	"github.com/maynagashev/gophvault/server/internal/middleware"
	"github.com/maynagashev/gophvault/server/internal/services"
)

const (
	defaultReceiptsLimit = 20
	maxReceiptsLimit     = 100
)

// VaultHandler обрабатывает HTTP-запросы, связанные с хранилищем.
type VaultHandler struct {
	vaultService services.VaultService
	log          *zap.Logger
}

// NewVaultHandler создает новый экземпляр VaultHandler.
func NewVaultHandler(vs services.VaultService, log *zap.Logger) *VaultHandler {
	return &VaultHandler{vaultService: vs, log: log}
}

// userID достает владельца из контекста. Без Authenticator перед хендлером
// ID в контексте нет, это ошибка конфигурации роутера.
func (h *VaultHandler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.log.Error("[VaultHandler] Не удалось получить userID из контекста")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
	}
	return userID, ok
}

// writeError переводит ошибку сервиса в HTTP статус.
func (h *VaultHandler) writeError(w http.ResponseWriter, op string, userID int64, err error) {
	switch {
	case errors.Is(err, services.ErrVaultExists):
		http.Error(w, "Хранилище уже существует", http.StatusConflict)
	case errors.Is(err, services.ErrVaultNotFound):
		http.Error(w, "Хранилище не найдено", http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidAmount):
		http.Error(w, "Сумма должна быть положительной", http.StatusBadRequest)
	case errors.Is(err, services.ErrInsufficientFunds):
		http.Error(w, "Недостаточно средств", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrOverflow):
		http.Error(w, "Превышен максимальный баланс", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrStatementNotFound):
		http.Error(w, "Выписка не найдена", http.StatusNotFound)
	default:
		h.log.Error("[VaultHandler] Внутренняя ошибка",
			zap.String("op", op), zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
	}
}

// GetBalance обрабатывает GET запрос на получение баланса хранилища.
func (h *VaultHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	balance, err := h.vaultService.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, "balance", userID, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, balance)
}

// Initialize создает хранилище пользователя с нулевым балансом.
func (h *VaultHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	receipt, err := h.vaultService.Initialize(r.Context(), userID)
	if err != nil {
		h.writeError(w, "initialize", userID, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, receipt)
}

// decodeAmount читает тело {"amount": N}. Проверка знака остается за движком.
func (h *VaultHandler) decodeAmount(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var req models.AmountRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.log.Info("[VaultHandler] Ошибка декодирования суммы", zap.Error(err))
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return 0, false
	}
	return req.Amount, true
}

// Deposit обрабатывает POST запрос на пополнение хранилища.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	receipt, err := h.vaultService.Deposit(r.Context(), userID, amount)
	if err != nil {
		h.writeError(w, "deposit", userID, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, receipt)
}

// Withdraw обрабатывает POST запрос на снятие средств.
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	receipt, err := h.vaultService.Withdraw(r.Context(), userID, amount)
	if err != nil {
		h.writeError(w, "withdraw", userID, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, receipt)
}

// Close закрывает хранилище и возвращает квитанцию с ID выписки.
func (h *VaultHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	resp, err := h.vaultService.Close(r.Context(), userID)
	if err != nil {
		h.writeError(w, "close", userID, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, resp)
}

// ListReceipts возвращает квитанции пользователя, новые первыми.
func (h *VaultHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > maxReceiptsLimit {
		limit = defaultReceiptsLimit
	}
	if offset < 0 {
		offset = 0
	}

	receipts, err := h.vaultService.ListReceipts(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, "receipts", userID, err)
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	writeJSON(w, h.log, http.StatusOK, receipts)
}

// DownloadStatement отдает архивную выписку закрытого хранилища.
func (h *VaultHandler) DownloadStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	statementID := chi.URLParam(r, "statementID")

	rc, err := h.vaultService.DownloadStatement(r.Context(), userID, statementID)
	if err != nil {
		h.writeError(w, "statement", userID, err)
		return
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			h.log.Warn("[VaultHandler] Ошибка закрытия выписки", zap.Error(closeErr))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="statement_`+statementID+`.json"`)
	if _, err = io.Copy(w, rc); err != nil {
		h.log.Warn("[VaultHandler] Ошибка отправки выписки",
			zap.Int64("user_id", userID), zap.String("statement_id", statementID), zap.Error(err))
	}
}
