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
	"go.uber.org/zap"
)

// ProposalHandler - структура для обработки HTTP-запросов по предложениям.
type ProposalHandler struct {
	Service *services.ProposalService
	Logger  *zap.Logger
	Timeout time.Duration
	retry   failsafe.Executor[*models.Proposal]
}

// NewProposalHandler создаёт новый экземпляр ProposalHandler.
func NewProposalHandler(service *services.ProposalService, logger *zap.Logger, timeout time.Duration) *ProposalHandler {
	retry := retrypolicy.NewBuilder[*models.Proposal]().
		HandleIf(func(_ *models.Proposal, err error) bool {
			return models.IsKind(err, models.KindStaleState)
		}).
		WithMaxRetries(2).
		Build()

	return &ProposalHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
		retry:   failsafe.With[*models.Proposal](retry),
	}
}

// CreateProposal обрабатывает запросы для создания предложения.
func (h *ProposalHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
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

	var proposalReq models.ProposalRequest
	if err := decodeStrict(r, &proposalReq); err != nil {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid request body")
		return
	}

	proposal, err := h.Service.CreateProposal(ctx, proposalReq, actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to create proposal")
		return
	}

	writeJSON(w, h.Logger, http.StatusCreated, proposal)
}

// GetUserProposals обрабатывает запросы для получения предложений автора.
func (h *ProposalHandler) GetUserProposals(w http.ResponseWriter, r *http.Request) {
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

	proposals, err := h.Service.GetUserProposals(ctx, actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to fetch proposals")
		return
	}
	if proposals == nil {
		proposals = []models.Proposal{}
	}

	writeJSON(w, h.Logger, http.StatusOK, proposals)
}

// GetTenderProposals обрабатывает запросы владельца на список предложений тендера.
func (h *ProposalHandler) GetTenderProposals(w http.ResponseWriter, r *http.Request) {
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

	proposals, err := h.Service.GetTenderProposals(ctx, r.PathValue("tenderId"), actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to fetch proposals")
		return
	}
	if proposals == nil {
		proposals = []models.Proposal{}
	}

	writeJSON(w, h.Logger, http.StatusOK, proposals)
}

// UpdateProposalStatus обрабатывает запросы для изменения статуса предложения.
func (h *ProposalHandler) UpdateProposalStatus(w http.ResponseWriter, r *http.Request) {
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

	proposalID := r.PathValue("proposalId")
	status := models.ProposalStatus(r.URL.Query().Get("status"))
	notes := r.URL.Query().Get("notes")
	if status == "" {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "missing required query parameter: status")
		return
	}

	proposal, err := h.retry.Get(func() (*models.Proposal, error) {
		return h.Service.UpdateProposalStatus(ctx, proposalID, status, notes, actor)
	})
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to update proposal status")
		return
	}

	writeJSON(w, h.Logger, http.StatusOK, proposal)
}

// EditProposal обрабатывает запросы для изменения предложения автором.
func (h *ProposalHandler) EditProposal(w http.ResponseWriter, r *http.Request) {
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

	var upd models.ProposalUpdate
	if err := decodeStrict(r, &upd); err != nil {
		utils.SendError(w, http.StatusBadRequest, models.KindBadRequest, "invalid request body")
		return
	}

	proposal, err := h.Service.EditProposal(ctx, r.PathValue("proposalId"), upd, actor)
	if err != nil {
		handleServiceError(w, h.Logger, err, "failed to update proposal")
		return
	}

	writeJSON(w, h.Logger, http.StatusOK, proposal)
}
