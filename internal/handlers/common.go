package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/senyabanana/marketplace-service/internal/models"
	"github.com/senyabanana/marketplace-service/internal/utils"

	"go.uber.org/zap"
)

const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

// actorFromRequest извлекает проверенную личность участника из заголовков.
// Заголовки проставляет внешний слой аутентификации; пустой id означает
// неаутентифицированный запрос.
func actorFromRequest(r *http.Request) (models.Actor, *models.ErrorResponse) {
	actor := models.Actor{
		ID:   r.Header.Get(headerUserID),
		Role: models.ActorRole(r.Header.Get(headerUserRole)),
	}
	if actor.ID == "" {
		return models.Actor{}, models.NewErrorResponse(http.StatusUnauthorized, models.KindNotAuthorized,
			"missing verified actor identity")
	}
	if _, ok := models.ValidActorRoles[actor.Role]; !ok {
		return models.Actor{}, models.NewErrorResponse(http.StatusUnauthorized, models.KindNotAuthorized,
			"missing or unknown actor role")
	}
	return actor, nil
}

// decodeStrict декодирует тело запроса, отклоняя неизвестные поля.
func decodeStrict(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeJSON отправляет успешный ответ в формате JSON.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// handleServiceError отправляет ошибку сервиса с её кодом и видом,
// пряча внутренние ошибки за общим сообщением.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	if errorResponse, ok := err.(*models.ErrorResponse); ok {
		logger.Info("request rejected",
			zap.String("kind", string(errorResponse.Kind)),
			zap.String("reason", errorResponse.Message))
		utils.SendErrorResponse(w, errorResponse)
		return
	}
	logger.Error(fallback, zap.Error(err))
	utils.SendError(w, http.StatusInternalServerError, models.KindInternal, fallback)
}
