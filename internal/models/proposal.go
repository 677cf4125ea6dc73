package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	ProposalStatus   string // Статус предложения
	ProposalTimeline string // Оценка сроков исполнения
)

const (
	SubmittedProposal   ProposalStatus = "submitted"    // Предложение подано
	UnderReviewProposal ProposalStatus = "under_review" // Предложение на рассмотрении
	ShortlistedProposal ProposalStatus = "shortlisted"  // Предложение в шорт-листе
	AcceptedProposal    ProposalStatus = "accepted"     // Предложение принято
	RejectedProposal    ProposalStatus = "rejected"     // Предложение отклонено
	WithdrawnProposal   ProposalStatus = "withdrawn"    // Предложение отозвано

	TimelineUnderWeek   ProposalTimeline = "less_than_1_week"
	TimelineOneTwoWeeks ProposalTimeline = "1_2_weeks"
	TimelineTwoFourWeek ProposalTimeline = "2_4_weeks"
	TimelineOneThreeMon ProposalTimeline = "1_3_months"
	TimelineOverThreeMo ProposalTimeline = "3_plus_months"
)

const (
	// ProposalTextMinLen и ProposalTextMaxLen ограничивают длину текста предложения.
	ProposalTextMinLen = 50
	ProposalTextMaxLen = 5000
)

// ProposalStatusTransitions описывает допустимые переходы статусов предложения.
// Переходы в withdrawn разрешены только автору предложения.
var ProposalStatusTransitions = map[ProposalStatus][]ProposalStatus{
	SubmittedProposal:   {UnderReviewProposal, WithdrawnProposal},
	UnderReviewProposal: {ShortlistedProposal, RejectedProposal, WithdrawnProposal},
	ShortlistedProposal: {AcceptedProposal, RejectedProposal, WithdrawnProposal},
	AcceptedProposal:    {},
	RejectedProposal:    {},
	WithdrawnProposal:   {},
}

// IsTerminal сообщает, что у статуса нет исходящих переходов.
func (s ProposalStatus) IsTerminal() bool {
	return s == AcceptedProposal || s == RejectedProposal || s == WithdrawnProposal
}

// ValidProposalTimelines список валидных сроков исполнения.
var ValidProposalTimelines = map[ProposalTimeline]struct{}{
	TimelineUnderWeek:   {},
	TimelineOneTwoWeeks: {},
	TimelineTwoFourWeek: {},
	TimelineOneThreeMon: {},
	TimelineOverThreeMo: {},
}

// Proposal представляет модель предложения по тендеру.
type Proposal struct {
	ID                string           `json:"id"`
	TenderID          string           `json:"tenderId"`
	Bidder            string           `json:"bidder"`
	BidAmount         decimal.Decimal  `json:"bidAmount"`
	Status            ProposalStatus   `json:"status"`
	ProposalText      string           `json:"proposalText"`
	EstimatedTimeline ProposalTimeline `json:"estimatedTimeline"`
	Attachments       []string         `json:"attachments,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	Version           int32            `json:"version"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// ProposalRequest представляет структуру запроса для создания предложения.
type ProposalRequest struct {
	TenderID          string           `json:"tenderId"`
	BidAmount         decimal.Decimal  `json:"bidAmount"`
	ProposalText      string           `json:"proposalText"`
	EstimatedTimeline ProposalTimeline `json:"estimatedTimeline"`
	Attachments       []string         `json:"attachments"`
}

// ProposalUpdate представляет частичное обновление предложения автором.
type ProposalUpdate struct {
	BidAmount         *decimal.Decimal  `json:"bidAmount"`
	ProposalText      *string           `json:"proposalText"`
	EstimatedTimeline *ProposalTimeline `json:"estimatedTimeline"`
	Attachments       *[]string         `json:"attachments"`
}

// WithdrawnBySystemNote - примечание, проставляемое при каскадном отзыве.
const WithdrawnBySystemNote = "withdrawn by system: tender cancelled"
