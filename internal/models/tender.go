package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	TenderStatus     string // Статус тендера
	TenderVisibility string // Видимость тендера
)

const (
	DraftTender     TenderStatus = "draft"     // Тендер создан и не опубликован
	PublishedTender TenderStatus = "published" // Тендер опубликован
	OpenTender      TenderStatus = "open"      // Тендер активно принимает предложения
	CompletedTender TenderStatus = "completed" // Тендер завершён
	CancelledTender TenderStatus = "cancelled" // Тендер отменён

	PublicTender     TenderVisibility = "public"      // Тендер виден всем исполнителям
	InviteOnlyTender TenderVisibility = "invite_only" // Тендер виден только приглашённым
)

// TenderStatusTransitions описывает допустимые переходы статусов тендера.
var TenderStatusTransitions = map[TenderStatus][]TenderStatus{
	DraftTender:     {PublishedTender, CancelledTender},
	PublishedTender: {OpenTender, CancelledTender},
	OpenTender:      {CompletedTender, CancelledTender},
	CompletedTender: {},
	CancelledTender: {},
}

// IsTerminal сообщает, что у статуса нет исходящих переходов.
func (s TenderStatus) IsTerminal() bool {
	return s == CompletedTender || s == CancelledTender
}

// ValidTenderVisibilities список валидных режимов видимости.
var ValidTenderVisibilities = map[TenderVisibility]struct{}{
	PublicTender:     {},
	InviteOnlyTender: {},
}

// Budget представляет бюджетные границы тендера.
type Budget struct {
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Currency string          `json:"currency"`
}

// Tender представляет модель тендера.
type Tender struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Category       string           `json:"category"`
	Skills         []string         `json:"skills"`
	Budget         Budget           `json:"budget"`
	Deadline       time.Time        `json:"deadline"`
	DurationDays   int              `json:"durationDays"`
	Status         TenderStatus     `json:"status"`
	Visibility     TenderVisibility `json:"visibility"`
	InvitedParties []string         `json:"invitedParties,omitempty"`
	Owner          string           `json:"owner"`
	ProposalIDs    []string         `json:"proposalIds"`
	Views          int64            `json:"views"`
	Version        int32            `json:"version"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// TenderRequest представляет структуру запроса для создания тендера.
type TenderRequest struct {
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Category       string           `json:"category"`
	Skills         []string         `json:"skills"`
	Budget         Budget           `json:"budget"`
	Deadline       time.Time        `json:"deadline"`
	DurationDays   int              `json:"durationDays"`
	Visibility     TenderVisibility `json:"visibility"`
	InvitedParties []string         `json:"invitedParties"`
}

// TenderUpdate представляет частичное обновление тендера.
// Nil-поля не трогаются; неизвестные поля отклоняются декодером.
type TenderUpdate struct {
	Title          *string           `json:"title"`
	Description    *string           `json:"description"`
	Category       *string           `json:"category"`
	Skills         *[]string         `json:"skills"`
	Budget         *Budget           `json:"budget"`
	Deadline       *time.Time        `json:"deadline"`
	DurationDays   *int              `json:"durationDays"`
	Visibility     *TenderVisibility `json:"visibility"`
	InvitedParties *[]string         `json:"invitedParties"`
}

// TenderFilter описывает фильтры списка тендеров.
type TenderFilter struct {
	Category  string
	Skills    []string
	BudgetMin *decimal.Decimal
	BudgetMax *decimal.Decimal
	Search    string
	Status    TenderStatus
	Sort      string
	Limit     int
	Offset    int
}

// TenderDetails - тендер с состоянием закладки для запрашивающего.
type TenderDetails struct {
	*Tender
	Saved      bool  `json:"saved"`
	SavedCount int64 `json:"savedCount"`
}

// TransitionResult - итог перехода статуса тендера.
// Withdrawn и Failed заполняются только при каскадной отмене.
type TransitionResult struct {
	Tender    *Tender  `json:"tender"`
	Withdrawn []string `json:"withdrawnProposalIds,omitempty"`
	Failed    []string `json:"failedProposalIds,omitempty"`
}
