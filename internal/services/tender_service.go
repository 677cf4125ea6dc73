package services

import (
	"context"
	"net/http"
	"time"

	"github.com/senyabanana/marketplace-service/internal/access"
	"github.com/senyabanana/marketplace-service/internal/events"
	"github.com/senyabanana/marketplace-service/internal/metrics"
	"github.com/senyabanana/marketplace-service/internal/models"
	"github.com/senyabanana/marketplace-service/internal/repository"
	"github.com/senyabanana/marketplace-service/internal/utils"
	"github.com/senyabanana/marketplace-service/internal/validation"

	"go.uber.org/zap"
)

// SystemActor - служебный участник для каскадных и фоновых операций.
var SystemActor = models.Actor{ID: "system", Role: models.AdminRole}

// TenderService управляет жизненным циклом тендеров.
type TenderService struct {
	Repo      repository.TenderRepository
	Proposals repository.ProposalRepository
	Sink      events.Sink
	logger    *zap.Logger
	now       func() time.Time
}

// NewTenderService создаёт новый экземпляр TenderService.
func NewTenderService(repo repository.TenderRepository, proposals repository.ProposalRepository, sink events.Sink, logger *zap.Logger) *TenderService {
	return &TenderService{
		Repo:      repo,
		Proposals: proposals,
		Sink:      sink,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateTender создает новый тендер в статусе draft.
func (s *TenderService) CreateTender(ctx context.Context, tenderReq models.TenderRequest, actor models.Actor) (*models.Tender, error) {
	if actor.Role != models.CompanyRole && !actor.IsAdmin() {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
			"only companies may create tenders")
	}
	if tenderReq.Title == "" || tenderReq.Description == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
			"missing required fields: title or description")
	}
	if _, ok := models.ValidTenderVisibilities[tenderReq.Visibility]; !ok {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
			"visibility must be public or invite_only")
	}

	var errs []*models.ErrorResponse
	errs = append(errs, validation.ValidateBudget(tenderReq.Budget)...)
	errs = append(errs, validation.ValidateSchedule(tenderReq.Deadline, tenderReq.DurationDays, s.now())...)
	if err := models.JoinErrorResponses(errs); err != nil {
		return nil, err
	}

	// Список приглашённых имеет смысл только для invite_only.
	if tenderReq.Visibility == models.PublicTender {
		tenderReq.InvitedParties = nil
	}

	tender, err := s.Repo.CreateTender(ctx, tenderReq, actor.ID)
	if err != nil {
		return nil, err
	}

	s.Sink.Publish(ctx, events.NewEvent(models.EventTenderCreated, tender.ID, "", actor.ID, ""))
	return tender, nil
}

// FetchTenders получает страницу тендеров, видимых участнику.
func (s *TenderService) FetchTenders(ctx context.Context, filter models.TenderFilter, actor models.Actor) ([]models.Tender, error) {
	if filter.Status != "" {
		if _, ok := models.TenderStatusTransitions[filter.Status]; !ok {
			return nil, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
				"unsupported status filter: "+string(filter.Status))
		}
	}
	return s.Repo.GetTenders(ctx, filter, actor)
}

// GetUserTenders получает список тендеров владельца.
func (s *TenderService) GetUserTenders(ctx context.Context, limitStr, offsetStr string, actor models.Actor) ([]models.Tender, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest, err.Error())
	}
	return s.Repo.GetUserTenders(ctx, limit, offset, actor.ID)
}

// GetTender возвращает тендер после проверки видимости и увеличивает счётчик просмотров.
// Счётчик растёт только после успешной проверки, чтобы зондирование
// закрытого тендера не оставляло наблюдаемых следов.
func (s *TenderService) GetTender(ctx context.Context, tenderID string, actor models.Actor) (*models.Tender, error) {
	tender, err := s.Repo.GetTenderByID(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor, tender) {
		return nil, access.ErrHiddenTender()
	}

	if err := s.Repo.IncrementViews(ctx, tenderID); err != nil {
		// Потеря одного просмотра не повод ронять запрос.
		s.logger.Warn("failed to increment tender views", zap.String("tenderId", tenderID), zap.Error(err))
	} else {
		tender.Views++
		metrics.TenderViews.Inc()
	}
	return tender, nil
}

// EditTender применяет частичное обновление тендера владельца.
func (s *TenderService) EditTender(ctx context.Context, tenderID string, upd models.TenderUpdate, actor models.Actor) (*models.Tender, error) {
	tender, err := s.Repo.GetTenderByID(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor, tender) {
		return nil, access.ErrHiddenTender()
	}
	if !access.CanManage(actor, tender) {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
			"you are not authorized to edit this tender")
	}
	if tender.Status.IsTerminal() {
		return nil, models.NewErrorResponse(http.StatusConflict, models.KindInvalidTransition,
			"tender in a terminal status is immutable")
	}

	var errs []*models.ErrorResponse
	if upd.Budget != nil {
		errs = append(errs, validation.ValidateBudget(*upd.Budget)...)
	}
	if upd.Deadline != nil || upd.DurationDays != nil {
		deadline := tender.Deadline
		duration := tender.DurationDays
		if upd.Deadline != nil {
			deadline = *upd.Deadline
		}
		if upd.DurationDays != nil {
			duration = *upd.DurationDays
		}
		errs = append(errs, validation.ValidateSchedule(deadline, duration, s.now())...)
	}
	if upd.Visibility != nil {
		if _, ok := models.ValidTenderVisibilities[*upd.Visibility]; !ok {
			errs = append(errs, models.NewErrorResponse(http.StatusBadRequest, models.KindBadRequest,
				"visibility must be public or invite_only"))
		}
	}
	if err := models.JoinErrorResponses(errs); err != nil {
		return nil, err
	}

	return s.Repo.EditTender(ctx, tenderID, upd, tender.Version)
}

// Transition переводит тендер в новый статус от имени участника.
// Переход completed охраняется: все предложения должны быть в терминальных
// статусах. Переход cancelled каскадно отзывает открытые предложения.
func (s *TenderService) Transition(ctx context.Context, tenderID string, target models.TenderStatus, actor models.Actor) (*models.TransitionResult, error) {
	tender, err := s.Repo.GetTenderByID(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor, tender) {
		return nil, access.ErrHiddenTender()
	}
	if !access.CanManage(actor, tender) {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.KindNotAuthorized,
			"you are not authorized to change this tender's status")
	}

	validTransitions := models.TenderStatusTransitions[tender.Status]
	if !utils.ContainsTenderStatus(validTransitions, target) {
		return nil, models.NewInvalidTransition(string(tender.Status), string(target))
	}

	var knownOpen []string
	switch target {
	case models.PublishedTender:
		// Черновик мог пролежать долго: бюджет и дедлайн перепроверяются
		// на момент публикации, а не только при создании.
		var errs []*models.ErrorResponse
		errs = append(errs, validation.ValidateBudget(tender.Budget)...)
		errs = append(errs, validation.ValidateSchedule(tender.Deadline, tender.DurationDays, s.now())...)
		if err := models.JoinErrorResponses(errs); err != nil {
			return nil, err
		}
	case models.CompletedTender:
		openIDs, err := s.Proposals.ListOpenProposalIDs(ctx, tenderID)
		if err != nil {
			return nil, err
		}
		if len(openIDs) > 0 {
			return nil, models.NewPendingDecisions(openIDs)
		}
	case models.CancelledTender:
		// Список снимается до фиксации перехода: если после неё перечитать
		// открытые предложения не удастся, эти id вернутся как Failed.
		knownOpen, err = s.Proposals.ListOpenProposalIDs(ctx, tenderID)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.Repo.UpdateTenderStatus(ctx, tenderID, target, tender.Version)
	if err != nil {
		if models.IsKind(err, models.KindStaleState) {
			metrics.StaleStateConflicts.WithLabelValues("tender").Inc()
		}
		return nil, err
	}
	metrics.TenderTransitions.WithLabelValues(string(target)).Inc()

	result := &models.TransitionResult{Tender: updated}
	if target == models.CancelledTender {
		result.Withdrawn, result.Failed = s.cascadeWithdraw(ctx, tenderID, knownOpen, actor)
	}

	s.Sink.Publish(ctx, events.NewEvent(transitionEventType(target), tenderID, "", actor.ID, ""))
	return result, nil
}

// cascadeWithdraw отзывает открытые предложения отменённого тендера.
// Каждое предложение отзывается под собственной защитой версии; уже
// отозванное считается успехом, а не ошибкой - конкурентный отзыв
// автором и каскад сходятся к одному терминальному состоянию.
// knownOpen - предложения, открытые на момент перед фиксацией отмены;
// они попадают в Failed, если перечитать список после неё не удалось.
func (s *TenderService) cascadeWithdraw(ctx context.Context, tenderID string, knownOpen []string, actor models.Actor) (withdrawn, failed []string) {
	openIDs, err := s.Proposals.ListOpenProposalIDs(ctx, tenderID)
	if err != nil {
		s.logger.Error("failed to list open proposals for cascade withdraw",
			zap.String("tenderId", tenderID), zap.Error(err))
		return nil, knownOpen
	}

	for _, proposalID := range openIDs {
		if err := s.withdrawOne(ctx, proposalID); err != nil {
			s.logger.Error("cascade withdraw failed",
				zap.String("tenderId", tenderID),
				zap.String("proposalId", proposalID),
				zap.Error(err))
			failed = append(failed, proposalID)
			continue
		}
		withdrawn = append(withdrawn, proposalID)
		s.Sink.Publish(ctx, events.NewEvent(models.EventProposalWithdrawn, tenderID, proposalID, actor.ID,
			models.WithdrawnBySystemNote))
	}
	return withdrawn, failed
}

func (s *TenderService) withdrawOne(ctx context.Context, proposalID string) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		proposal, err := s.Proposals.GetProposalByID(ctx, proposalID)
		if err != nil {
			return err
		}
		if proposal.Status == models.WithdrawnProposal {
			return nil
		}
		if proposal.Status.IsTerminal() {
			// Решение уже принято, отзывать нечего.
			return nil
		}
		_, err = s.Proposals.UpdateProposalStatus(ctx, proposalID, models.WithdrawnProposal,
			models.WithdrawnBySystemNote, proposal.Version)
		if err == nil {
			metrics.ProposalTransitions.WithLabelValues(string(models.WithdrawnProposal)).Inc()
			return nil
		}
		if !models.IsKind(err, models.KindStaleState) {
			return err
		}
		metrics.StaleStateConflicts.WithLabelValues("proposal").Inc()
		lastErr = err
	}
	return lastErr
}

// CloseExpired отменяет активные тендеры с истёкшим дедлайном.
// Вызывается внешней регулярной зачисткой и идёт через тот же
// контракт перехода, что и запросы владельцев.
func (s *TenderService) CloseExpired(ctx context.Context) ([]models.TransitionResult, error) {
	ids, err := s.Repo.ListExpiredTenderIDs(ctx, s.now())
	if err != nil {
		return nil, err
	}

	var results []models.TransitionResult
	for _, id := range ids {
		result, err := s.Transition(ctx, id, models.CancelledTender, SystemActor)
		if err != nil {
			// Проигрыш гонки владельцу - штатная ситуация для зачистки.
			s.logger.Warn("expired tender sweep skipped tender",
				zap.String("tenderId", id), zap.Error(err))
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

func transitionEventType(target models.TenderStatus) models.EventType {
	switch target {
	case models.PublishedTender:
		return models.EventTenderPublished
	case models.OpenTender:
		return models.EventTenderOpened
	case models.CompletedTender:
		return models.EventTenderCompleted
	default:
		return models.EventTenderCancelled
	}
}
