package access

import (
	"net/http"

	"github.com/senyabanana/marketplace-service/internal/models"
)

// ErrHiddenTender - ответ для посторонних по закрытому тендеру.
// Намеренно выглядит как not-found, чтобы не раскрывать сам факт существования.
func ErrHiddenTender() *models.ErrorResponse {
	return models.NewErrorResponse(http.StatusNotFound, models.KindNotFound, "tender not found")
}

// invited проверяет, входит ли участник в список приглашённых.
func invited(actorID string, tender *models.Tender) bool {
	for _, id := range tender.InvitedParties {
		if id == actorID {
			return true
		}
	}
	return false
}

// CanView решает, может ли участник видеть тендер.
func CanView(actor models.Actor, tender *models.Tender) bool {
	if actor.IsAdmin() || actor.ID == tender.Owner {
		return true
	}
	if tender.Visibility == models.PublicTender {
		return true
	}
	return invited(actor.ID, tender)
}

// CanPropose решает, может ли участник подать предложение по тендеру.
// Владелец тендера подавать предложения по нему не может.
func CanPropose(actor models.Actor, tender *models.Tender) bool {
	if actor.ID == tender.Owner {
		return false
	}
	if actor.Role != models.FreelancerRole {
		return false
	}
	if tender.Visibility == models.PublicTender {
		return true
	}
	return invited(actor.ID, tender)
}

// CanManage решает, может ли участник управлять тендером и решениями по его предложениям.
func CanManage(actor models.Actor, tender *models.Tender) bool {
	return actor.IsAdmin() || actor.ID == tender.Owner
}
