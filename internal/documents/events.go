package documents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventKind string

const (
	EventReviewRequested EventKind = "review_requested"
	EventTurnReached     EventKind = "turn_reached"
	EventReminder        EventKind = "review_reminder"
	EventDocApproved     EventKind = "document_approved"
	EventDocRejected     EventKind = "document_rejected"
)

// Event is what collaborators receive after a transition commits
type Event struct {
	Kind         EventKind `json:"kind"`
	RecipientID  string    `json:"recipient_id"`
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Version      int       `json:"version"`
	ActorID      string    `json:"actor_id"`
	Remark       string    `json:"remark,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventHandler receives workflow events. Returned errors are logged only.
type EventHandler func(ctx context.Context, event Event) error

// EventBus is the hook notification collaborators subscribe to
type EventBus struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *zap.Logger
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{logger: logger}
}

func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish delivers events to every subscriber in order. Delivery failures
// never propagate to the caller.
func (b *EventBus) Publish(ctx context.Context, events ...Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, event := range events {
		for _, handler := range handlers {
			if err := handler(ctx, event); err != nil {
				b.logger.Warn("Event delivery failed",
					zap.String("kind", string(event.Kind)),
					zap.String("document_id", event.DocumentID.String()),
					zap.String("recipient_id", event.RecipientID),
					zap.Error(err))
			}
		}
	}
}

// eventsFor derives the notifications implied by a committed transition list
func eventsFor(doc *Document, records []TransitionRecord, now time.Time) []Event {
	base := Event{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		Version:      doc.ReviewVersion,
		OccurredAt:   now,
	}
	var events []Event
	for _, record := range records {
		base.ActorID = record.Actor
		switch record.Event {
		case EventSubmit:
			for _, entry := range doc.Chain.Others() {
				e := base
				e.Kind = EventReviewRequested
				e.RecipientID = entry.EmployeeID
				events = append(events, e)
			}
		case EventApprove:
			if _, step := doc.CurrentStep(); step != nil {
				e := base
				e.Kind = EventTurnReached
				e.RecipientID = step.ReviewerID
				events = append(events, e)
			}
		case EventComplete:
			e := base
			e.Kind = EventDocApproved
			e.RecipientID = doc.OwnerID
			events = append(events, e)
		case EventReject:
			e := base
			e.Kind = EventDocRejected
			e.RecipientID = doc.OwnerID
			if doc.Remark != nil {
				e.Remark = *doc.Remark
			}
			events = append(events, e)
		}
	}
	if len(records) > 0 && records[0].Event == EventSubmit {
		if _, step := doc.CurrentStep(); step != nil {
			e := base
			e.ActorID = records[0].Actor
			e.Kind = EventTurnReached
			e.RecipientID = step.ReviewerID
			events = append(events, e)
		}
	}
	return events
}
