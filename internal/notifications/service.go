package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"review-portal/review-portal-backend/internal/documents"
)

var errNotConnected = errors.New("recipient not connected")

// Service turns workflow events into inbox entries and pushes them out
type Service struct {
	store    Store
	channels []Channel
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, logger *zap.Logger, channels ...Channel) *Service {
	return &Service{
		store:    store,
		channels: channels,
		logger:   logger,
		now:      time.Now,
	}
}

// Notify is the documents.EventHandler subscribed to the workflow event bus
func (s *Service) Notify(ctx context.Context, event documents.Event) error {
	subject, content := render(event)
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	n := &Notification{
		ID:          uuid.New(),
		RecipientID: event.RecipientID,
		Kind:        string(event.Kind),
		DocumentID:  event.DocumentID,
		Subject:     subject,
		Content:     content,
		Data:        datatypes.JSON(data),
		Status:      StatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return err
	}

	preferences, err := s.store.ListPreferences(ctx, n.RecipientID)
	if err != nil {
		s.logger.Warn("Failed to load preferences, using every channel",
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
		preferences = nil
	}

	attempted, failed := 0, 0
	for _, channel := range filterChannelsByPreferences(s.channels, preferences, n.Kind) {
		providerID, err := channel.Send(ctx, n)
		entry := &DeliveryLog{
			ID:                uuid.New(),
			NotificationID:    n.ID,
			Channel:           channel.Name(),
			Status:            StatusSent,
			ProviderMessageID: providerID,
			Timestamp:         s.now(),
		}
		switch {
		case errors.Is(err, errNotConnected):
			entry.Status = StatusSkipped
		case err != nil:
			attempted++
			failed++
			entry.Status = StatusFailed
			entry.Error = err.Error()
			s.logger.Warn("Notification channel failed",
				zap.String("channel", channel.Name()),
				zap.String("notification_id", n.ID.String()),
				zap.Error(err))
		default:
			attempted++
		}
		if err := s.store.LogDelivery(ctx, entry); err != nil {
			s.logger.Warn("Failed to log delivery", zap.Error(err))
		}
	}

	status := deliveryStatus(attempted, failed)
	if err := s.store.UpdateStatus(ctx, n.ID, status); err != nil {
		return err
	}
	if status == StatusFailed {
		return fmt.Errorf("all channels failed for notification %s", n.ID)
	}
	return nil
}

// deliveryStatus summarizes the channels that were actually tried. Skipped
// channels do not count; the inbox entry itself is always stored.
func deliveryStatus(attempted, failed int) string {
	switch {
	case failed == 0:
		return StatusSent
	case failed < attempted:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func (s *Service) Inbox(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListForRecipient(ctx, recipientID, unreadOnly, limit)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	return s.store.MarkRead(ctx, id, recipientID, s.now())
}

func render(event documents.Event) (string, string) {
	name := event.DocumentName
	switch event.Kind {
	case documents.EventReviewRequested:
		return fmt.Sprintf("Review requested: %s", name),
			fmt.Sprintf("%s added you as a reviewer of %s (version %d).", event.ActorID, name, event.Version)
	case documents.EventTurnReached:
		return fmt.Sprintf("Your review is needed: %s", name),
			fmt.Sprintf("%s (version %d) is waiting for your decision.", name, event.Version)
	case documents.EventReminder:
		return fmt.Sprintf("Overdue review: %s", name),
			fmt.Sprintf("%s (version %d) is past its review due date and still waiting for your decision.", name, event.Version)
	case documents.EventDocApproved:
		return fmt.Sprintf("Approved: %s", name),
			fmt.Sprintf("All reviewers approved %s (version %d).", name, event.Version)
	case documents.EventDocRejected:
		return fmt.Sprintf("Rejected: %s", name),
			fmt.Sprintf("%s rejected %s (version %d): %s", event.ActorID, name, event.Version, event.Remark)
	default:
		return name, string(event.Kind)
	}
}
