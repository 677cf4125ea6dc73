package models

import "time"

type EventType string // Тип доменного события

const (
	EventTenderCreated         EventType = "TenderCreated"
	EventTenderPublished       EventType = "TenderPublished"
	EventTenderOpened          EventType = "TenderOpened"
	EventTenderCompleted       EventType = "TenderCompleted"
	EventTenderCancelled       EventType = "TenderCancelled"
	EventProposalSubmitted     EventType = "ProposalSubmitted"
	EventProposalStatusChanged EventType = "ProposalStatusChanged"
	EventProposalAccepted      EventType = "ProposalAccepted"
	EventProposalWithdrawn     EventType = "ProposalWithdrawn"
)

// Event представляет доменное событие движка.
// Движок только публикует события; форматирование и доставка - забота потребителя.
type Event struct {
	Type       EventType `json:"type"`
	TenderID   string    `json:"tenderId,omitempty"`
	ProposalID string    `json:"proposalId,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
