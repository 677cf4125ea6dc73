package services

import (
	"context"
	"net/http"

	"github.com/senyabanana/marketplace-service/internal/access"
	"github.com/senyabanana/marketplace-service/internal/events"
	"github.com/senyabanana/marketplace-service/internal/metrics"
	"github.com/senyabanana/marketplace-service/internal/models"
	"github.com/senyabanana/marketplace-service/internal/repository"
	"github.com/senyabanana/marketplace-service/internal/utils"
	"github.com/senyabanana/marketplace-service/internal/validation"

	"go.uber.org/zap"
)

// ProposalService управляет жизненным циклом предложений.
type ProposalService struct {
	Repo    repository.ProposalRepository
	Tenders repository.TenderRepository
	Sink    events.Sink
	logger  *zap.Logger
}

// NewProposalService создаёт новый экземпляр ProposalService.
func NewProposalService(repo repository.ProposalRepository, tenders repository.TenderRepository, sink events.Sink, logger *zap.Logger) *ProposalService {
	return &ProposalService{
		Repo:    repo,
		Tenders: tenders,
		Sink:    sink,
		logger:  logger,
	}
}

// CreateProposal создает предложение по тендеру.
// Все проверки выполняются до записи; создание и привязка к тендеру
// атомарны на уровне репозитория.
func (s *ProposalService) CreateProposal(ctx context.Context, proposalReq models.ProposalRequest, actor models.Actor) (*models.Proposal, error) {
	if proposalReq.TenderID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
			"missing required field: tenderId")
	}

	tender, err := s.Tenders.GetTenderByID(ctx, proposalReq.TenderID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor, tender) {
		// Посторонний не должен узнать, что закрытый тендер существует.
		return nil, access.ErrHiddenTender()
	}
	if !access.CanPropose(actor, tender) {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
			"you are not authorized to submit proposals for this tender")
	}
	if tender.Status != models.PublishedTender && tender.Status != models.OpenTender {
		return nil, models.NewErrorResponse(http.StatusConflict, models.KindTenderNotOpen,
			"tender is not accepting proposals")
	}

	var errs []*models.ErrorResponse
	if e := validation.ValidateBidAmount(proposalReq.BidAmount, tender.Budget); e != nil {
		errs = append(errs, e)
	}
	if e := validation.ValidateProposalText(proposalReq.ProposalText); e != nil {
		errs = append(errs, e)
	}
	if e := validation.ValidateTimeline(proposalReq.EstimatedTimeline); e != nil {
		errs = append(errs, e)
	}
	if err := models.JoinErrorResponses(errs); err != nil {
		return nil, err
	}

	proposal, err := s.Repo.CreateProposal(ctx, proposalReq, actor.ID)
	if err != nil {
		return nil, err
	}

	metrics.ProposalTransitions.WithLabelValues(string(models.SubmittedProposal)).Inc()
	s.Sink.Publish(ctx, events.NewEvent(models.EventProposalSubmitted, tender.ID, proposal.ID, actor.ID, ""))
	return proposal, nil
}

// UpdateProposalStatus переводит предложение в новый статус.
// Владелец тендера ведёт предложение по конвейеру рассмотрения,
// автор может только отозвать его. Принятие одного предложения
// не отклоняет остальные: это явное решение владельца.
func (s *ProposalService) UpdateProposalStatus(ctx context.Context, proposalID string, target models.ProposalStatus, notes string, actor models.Actor) (*models.Proposal, error) {
	proposal, err := s.Repo.GetProposalByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	tender, err := s.Tenders.GetTenderByID(ctx, proposal.TenderID)
	if err != nil {
		return nil, err
	}

	if target == models.WithdrawnProposal {
		// Отзыв доступен автору; администратор действует от его имени.
		if actor.ID != proposal.Bidder && !actor.IsAdmin() {
			return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
				"only the bidder or an administrator may withdraw a proposal")
		}
		// Повторный отзыв сходится к тому же состоянию, это не ошибка:
		// каскад отмены тендера и отзыв автором могут бежать одновременно.
		if proposal.Status == models.WithdrawnProposal {
			return proposal, nil
		}
	} else {
		if !access.CanManage(actor, tender) {
			return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
				"only the tender owner may decide on proposals")
		}
	}

	validTransitions := models.ProposalStatusTransitions[proposal.Status]
	if !utils.ContainsProposalStatus(validTransitions, target) {
		return nil, models.NewInvalidTransition(string(proposal.Status), string(target))
	}

	var updated *models.Proposal
	if target == models.AcceptedProposal {
		updated, err = s.Repo.AcceptProposal(ctx, proposalID, proposal.TenderID, notes, proposal.Version)
	} else {
		updated, err = s.Repo.UpdateProposalStatus(ctx, proposalID, target, notes, proposal.Version)
	}
	if err != nil {
		if models.IsKind(err, models.KindStaleState) {
			metrics.StaleStateConflicts.WithLabelValues("proposal").Inc()
		}
		return nil, err
	}

	metrics.ProposalTransitions.WithLabelValues(string(target)).Inc()
	switch target {
	case models.AcceptedProposal:
		s.Sink.Publish(ctx, events.NewEvent(models.EventProposalAccepted, tender.ID, proposalID, actor.ID, notes))
	case models.WithdrawnProposal:
		s.Sink.Publish(ctx, events.NewEvent(models.EventProposalWithdrawn, tender.ID, proposalID, actor.ID, notes))
	default:
		s.Sink.Publish(ctx, events.NewEvent(models.EventProposalStatusChanged, tender.ID, proposalID, actor.ID, string(target)))
	}
	return updated, nil
}

// EditProposal применяет частичное обновление предложения автором.
func (s *ProposalService) EditProposal(ctx context.Context, proposalID string, upd models.ProposalUpdate, actor models.Actor) (*models.Proposal, error) {
	proposal, err := s.Repo.GetProposalByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if actor.ID != proposal.Bidder {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
			"only the bidder may edit a proposal")
	}
	if proposal.Status.IsTerminal() {
		return nil, models.NewErrorResponse(http.StatusConflict, models.KindInvalidTransition,
			"proposal in a terminal status is immutable")
	}

	var errs []*models.ErrorResponse
	if upd.BidAmount != nil {
		tender, err := s.Tenders.GetTenderByID(ctx, proposal.TenderID)
		if err != nil {
			return nil, err
		}
		if e := validation.ValidateBidAmount(*upd.BidAmount, tender.Budget); e != nil {
			errs = append(errs, e)
		}
	}
	if upd.ProposalText != nil {
		if e := validation.ValidateProposalText(*upd.ProposalText); e != nil {
			errs = append(errs, e)
		}
	}
	if upd.EstimatedTimeline != nil {
		if e := validation.ValidateTimeline(*upd.EstimatedTimeline); e != nil {
			errs = append(errs, e)
		}
	}
	if err := models.JoinErrorResponses(errs); err != nil {
		return nil, err
	}

	return s.Repo.EditProposal(ctx, proposalID, upd, proposal.Version)
}

// GetTenderProposals возвращает предложения тендера его владельцу.
func (s *ProposalService) GetTenderProposals(ctx context.Context, tenderID string, actor models.Actor) ([]models.Proposal, error) {
	tender, err := s.Tenders.GetTenderByID(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor, tender) {
		return nil, access.ErrHiddenTender()
	}
	if !access.CanManage(actor, tender) {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
			"you are not authorized to view proposals for this tender")
	}
	return s.Repo.GetTenderProposals(ctx, tenderID)
}

// GetUserProposals возвращает предложения автора.
func (s *ProposalService) GetUserProposals(ctx context.Context, actor models.Actor) ([]models.Proposal, error) {
	return s.Repo.GetUserProposals(ctx, actor.ID)
}
