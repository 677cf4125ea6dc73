package services

import (
	"context"

	"github.com/senyabanana/marketplace-service/internal/access"
	"github.com/senyabanana/marketplace-service/internal/models"
	"github.com/senyabanana/marketplace-service/internal/repository"
)

// BookmarkService управляет закладками тендеров.
type BookmarkService struct {
	Repo    repository.BookmarkRepository
	Tenders repository.TenderRepository
}

// NewBookmarkService создаёт новый экземпляр BookmarkService.
func NewBookmarkService(repo repository.BookmarkRepository, tenders repository.TenderRepository) *BookmarkService {
	return &BookmarkService{Repo: repo, Tenders: tenders}
}

// ToggleSave переключает закладку участника и возвращает итоговое состояние.
// Терминальный статус тендера закладкам не мешает: savedBy остаётся
// изменяемым и после завершения.
func (s *BookmarkService) ToggleSave(ctx context.Context, tenderID string, actor models.Actor) (bool, error) {
	tender, err := s.Tenders.GetTenderByID(ctx, tenderID)
	if err != nil {
		return false, err
	}
	if !access.CanView(actor, tender) {
		return false, access.ErrHiddenTender()
	}
	return s.Repo.Toggle(ctx, actor.ID, tenderID)
}

// IsSaved сообщает, сохранён ли тендер участником.
func (s *BookmarkService) IsSaved(ctx context.Context, tenderID string, actor models.Actor) (bool, error) {
	return s.Repo.IsSaved(ctx, actor.ID, tenderID)
}

// SavedCount возвращает число участников, сохранивших тендер.
func (s *BookmarkService) SavedCount(ctx context.Context, tenderID string) (int64, error) {
	return s.Repo.SavedCount(ctx, tenderID)
}
