package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorKind string // Машиночитаемый вид ошибки

const (
	KindNotAuthorized     ErrorKind = "NotAuthorized"
	KindNotFound          ErrorKind = "NotFound"
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindStaleState        ErrorKind = "StaleState"
	KindPendingDecisions  ErrorKind = "PendingDecisions"
	KindDuplicateProposal ErrorKind = "DuplicateProposal"
	KindBidOutOfRange     ErrorKind = "BidOutOfRange"
	KindTextLengthInvalid ErrorKind = "TextLengthInvalid"
	KindInvalidCurrency   ErrorKind = "InvalidCurrency"
	KindDeadlineInPast    ErrorKind = "DeadlineInPast"
	KindAlreadyAccepted   ErrorKind = "AlreadyAccepted"
	KindTenderNotOpen     ErrorKind = "TenderNotOpen"
	KindBadRequest        ErrorKind = "BadRequest"
	KindInternal          ErrorKind = "Internal"
)

// ErrorResponse описывает ошибку с HTTP-кодом, видом и сообщением.
type ErrorResponse struct {
	StatusCode  int       `json:"-"`
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"reason"`
	ProposalIDs []string  `json:"proposalIds,omitempty"`
}

// NewErrorResponse создает новую ошибку с кодом, видом и сообщением.
func NewErrorResponse(statusCode int, kind ErrorKind, message string) *ErrorResponse {
	return &ErrorResponse{
		StatusCode: statusCode,
		Kind:       kind,
		Message:    message}
}

// Реализация метода Error() для удовлетворения интерфейса error.
func (e *ErrorResponse) Error() string {
	return e.Message
}

// NewInvalidTransition создает ошибку недопустимого перехода, называя текущий и запрошенный статусы.
func NewInvalidTransition(current, requested string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, KindInvalidTransition,
		fmt.Sprintf("invalid transition from %q to %q", current, requested))
}

// NewStaleState создает ошибку конфликта версий; вызывающий должен перечитать состояние.
func NewStaleState(entity, id string) *ErrorResponse {
	return NewErrorResponse(http.StatusConflict, KindStaleState,
		fmt.Sprintf("%s %s was modified concurrently, re-read and retry", entity, id))
}

// NewPendingDecisions создает ошибку завершения тендера с нерешёнными предложениями.
func NewPendingDecisions(proposalIDs []string) *ErrorResponse {
	e := NewErrorResponse(http.StatusConflict, KindPendingDecisions,
		fmt.Sprintf("tender has %d proposals awaiting a decision", len(proposalIDs)))
	e.ProposalIDs = proposalIDs
	return e
}

// IsKind сообщает, является ли err ошибкой ErrorResponse указанного вида.
func IsKind(err error, kind ErrorKind) bool {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp.Kind == kind
	}
	return false
}

// JoinErrorResponses сводит список ошибок валидации в одну,
// чтобы вызывающий увидел все нарушения сразу.
func JoinErrorResponses(errs []*ErrorResponse) *ErrorResponse {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, string(e.Kind)+": "+e.Message)
	}
	return NewErrorResponse(errs[0].StatusCode, errs[0].Kind, strings.Join(msgs, "; "))
}
