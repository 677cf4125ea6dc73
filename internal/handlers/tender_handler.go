package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/senyabanana/marketplace-service/internal/models"
	"github.com/senyabanana/marketplace-service/internal/services"
	"github.com/senyabanana/marketplace-service/internal/utils"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TenderHandler - структура для обработки HTTP-запросов по тендерам.
type TenderHandler struct {
	Service   *services.TenderService
	Bookmarks *services.BookmarkService
	Logger    *zap.Logger
	Timeout   time.Duration
	retry     failsafe.Executor[*models.TransitionResult]
}

// NewTenderHandler создаёт новый экземпляр TenderHandler.
// StaleState - единственный вид ошибки, который повторяется автоматически:
// сервис перечитывает состояние на каждой попытке.
func NewTenderHandler(service *services.TenderService, bookmarks *services.BookmarkService, logger *zap.Logger, timeout time.Duration) *TenderHandler {
	retry := retrypolicy.NewBuilder[*models.TransitionResult]().
		HandleIf(func(_ *models.TransitionResult, err error) bool {
			return models.IsKind(err, models.KindStaleState)
		}).
		WithMaxRetries(2).
		Build()

	return &TenderHandler{
		Service:   service,
		Bookmarks: bookmarks,
		Logger:    logger,
		Timeout:   timeout,
		retry:     failsafe.With[*models.TransitionResult](retry),
	}
}

// GetTenders обрабатывает запросы для получения списка тендеров.
func (h *TenderHandler) GetTenders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	actor, errResp := actorFromRequest(r)
	if errResp != nil {
		utils.SendErrorResponse(w, errResp)
		return
	}

	q := r.URL.Query()
	limit, offset, err := utils.ParseLimitOffset(q.Get("limit"), q.Get("offset"))
	if err != nil {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, err.Error())
		return
	}

	filter := models.TenderFilter{
		Category: q.Get("category"),
		Skills:   q["skill"],
		Search:   q.Get("search"),
		Status:   models.TenderStatus(q.Get("status")),
		Sort:     q.Get("sort"),
		Limit:    limit,
		Offset:   offset,
	}
	if v := q.Get("budget_min"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid budget_min parameter")
			return
		}
		filter.BudgetMin = &d
	}
	if v := q.Get("budget_max"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid budget_max parameter")
			return
		}
		filter.BudgetMax = &d
	}

	tenders, err := h.Service.FetchTenders(ctx, filter, actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to fetch tenders")
		return
	}
	if tenders == nil {
		tenders = []models.Tender{}
	}

	writeJSON(w, h.Logger, http.StatusOK, tenders)
}

// CreateTender обрабатывает запросы для создания тендера.
func (h *TenderHandler) CreateTender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	actor, errResp := actorFromRequest(r)
	if errResp != nil {
		utils.SendErrorResponse(w, errResp)
		return
	}

	var tenderReq models.TenderRequest
	if err := decodeStrict(r, &tenderReq); err != nil {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid request body")
		return
	}

	tender, err := h.Service.CreateTender(ctx, tenderReq, actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to create tender")
		return
	}

	writeJSON(w, h.Logger, http.StatusCreated, tender)
}

// GetUserTenders обрабатывает запросы для получения списка тендеров владельца.
func (h *TenderHandler) GetUserTenders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	actor, errResp := actorFromRequest(r)
	if errResp != nil {
		utils.SendErrorResponse(w, errResp)
		return
	}

	tenders, err := h.Service.GetUserTenders(ctx, r.URL.Query().Get("limit"), r.URL.Query().Get("offset"), actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to fetch tenders")
		return
	}
	if tenders == nil {
		tenders = []models.Tender{}
	}

	writeJSON(w, h.Logger, http.StatusOK, tenders)
}

// GetTender обрабатывает запросы для получения тендера.
func (h *TenderHandler) GetTender(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	actor, errResp := actorFromRequest(r)
	if errResp != nil {
		utils.SendErrorResponse(w, errResp)
		return
	}

	tender, err := h.Service.GetTender(ctx, r.PathValue("tenderId"), actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to fetch tender")
		return
	}

	// Состояние закладки дополняет ответ; его потеря не роняет запрос.
	details := models.TenderDetails{Tender: tender}
	if saved, err := h.Bookmarks.IsSaved(ctx, tender.ID, actor); err != nil {
		h.Logger.Warn("failed to read bookmark flag", zap.Error(err))
	} else {
		details.Saved = saved
	}
	if count, err := h.Bookmarks.SavedCount(ctx, tender.ID); err != nil {
		h.Logger.Warn("failed to read bookmark count", zap.Error(err))
	} else {
		details.SavedCount = count
	}

	writeJSON(w, h.Logger, http.StatusOK, details)
}

// UpdateTenderStatus обрабатывает запросы для изменения статуса тендера.
func (h *TenderHandler) UpdateTenderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid method, only PUT is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	actor, errResp := actorFromRequest(r)
	if errResp != nil {
		utils.SendErrorResponse(w, errResp)
		return
	}

	tenderID := r.PathValue("tenderId")
	status := models.TenderStatus(r.URL.Query().Get("status"))
	if status == "" {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "missing required query parameter: status")
		return
	}

	result, err := h.retry.Get(func() (*models.TransitionResult, error) {
		return h.Service.Transition(ctx, tenderID, status, actor)
	})
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to update tender status")
		return
	}

	writeJSON(w, h.Logger, http.StatusOK, result)
}

// EditTender обрабатывает запросы для изменения тендера.
func (h *TenderHandler) EditTender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid method, only PATCH is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	actor, errResp := actorFromRequest(r)
	if errResp != nil {
		utils.SendErrorResponse(w, errResp)
		return
	}

	var upd models.TenderUpdate
	if err := decodeStrict(r, &upd); err != nil {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid request body")
		return
	}

	updatedTender, err := h.Service.EditTender(ctx, r.PathValue("tenderId"), upd, actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to update tender")
		return
	}

	writeJSON(w, h.Logger, http.StatusOK, updatedTender)
}

// ToggleSaveTender обрабатывает запросы для переключения закладки.
func (h *TenderHandler) ToggleSaveTender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	actor, errResp := actorFromRequest(r)
	if errResp != nil {
		utils.SendErrorResponse(w, errResp)
		return
	}

	saved, err := h.Bookmarks.ToggleSave(ctx, r.PathValue("tenderId"), actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to toggle bookmark")
		return
	}

	writeJSON(w, h.Logger, http.StatusOK, map[string]bool{"saved": saved})
}
