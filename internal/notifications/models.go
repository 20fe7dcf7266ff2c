package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Notification is one inbox entry for an employee
type Notification struct {
	ID          uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	RecipientID string         `json:"recipient_id" gorm:"not null;index"`
	Kind        string         `json:"kind" gorm:"not null"`
	DocumentID  uuid.UUID      `json:"document_id" gorm:"type:uuid;index"`
	Subject     string         `json:"subject" gorm:"not null"`
	Content     string         `json:"content" gorm:"not null"`
	Data        datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Status      string         `json:"status" gorm:"not null"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// DeliveryLog records one attempt to push a notification through a channel
type DeliveryLog struct {
	ID                uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	NotificationID    uuid.UUID `json:"notification_id" gorm:"type:uuid;not null;index"`
	Channel           string    `json:"channel" gorm:"not null"`
	Status            string    `json:"status" gorm:"not null"`
	ProviderMessageID string    `json:"provider_message_id"`
	Error             string    `json:"error,omitempty"`
	Timestamp         time.Time `json:"timestamp" gorm:"autoCreateTime"`
}

const (
	ChannelEmail     = "EMAIL"
	ChannelWebSocket = "WEBSOCKET"
	ChannelSNS       = "SNS"

	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusPartial = "PARTIAL"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"

	// AllCategories is the preference category matching every event kind
	AllCategories = "*"
)

// UserPreference turns one channel on or off for a recipient, either for
// every event kind or for a single one.
type UserPreference struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_user_channel_category"`
	Channel   string    `json:"channel" gorm:"not null;uniqueIndex:idx_user_channel_category"`
	Category  string    `json:"category" gorm:"not null;uniqueIndex:idx_user_channel_category"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NotificationPreferences is the API view of a recipient's preference rows.
// Channels applies to every event kind; Categories overrides per kind.
type NotificationPreferences struct {
	UserID     string                     `json:"user_id"`
	Channels   map[string]bool            `json:"channels"`
	Categories map[string]map[string]bool `json:"categories,omitempty"`
	UpdatedAt  *time.Time                 `json:"updated_at,omitempty"`
}
