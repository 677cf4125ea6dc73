package events

import (
	"context"
	"sync"
	"time"

	"github.com/senyabanana/marketplace-service/internal/models"

	"go.uber.org/zap"
)

// Sink принимает доменные события движка.
// Движок никогда не форматирует пользовательские сообщения:
// доставка уведомлений - забота внешнего потребителя.
type Sink interface {
	Publish(ctx context.Context, event models.Event)
}

// LogSink публикует события в структурированный лог.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink создаёт новый экземпляр LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event models.Event) {
	s.logger.Info("domain event",
		zap.String("type", string(event.Type)),
		zap.String("tenderId", event.TenderID),
		zap.String("proposalId", event.ProposalID),
		zap.String("actor", event.Actor),
		zap.String("detail", event.Detail),
		zap.Time("occurredAt", event.OccurredAt))
}

// MemorySink накапливает события в памяти (для тестов).
type MemorySink struct {
	mu     sync.Mutex
	events []models.Event
}

// NewMemorySink создаёт новый экземпляр MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events возвращает копию накопленных событий.
func (s *MemorySink) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// NewEvent собирает событие с текущим временем.
func NewEvent(eventType models.EventType, tenderID, proposalID, actor, detail string) models.Event {
	return models.Event{
		Type:       eventType,
		TenderID:   tenderID,
		ProposalID: proposalID,
		Actor:      actor,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
}
