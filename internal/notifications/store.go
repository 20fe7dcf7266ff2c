package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a notification does not exist for the recipient
var ErrNotFound = errors.New("notification not found")

// Store persists the inbox
type Store interface {
	Create(ctx context.Context, n *Notification) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	LogDelivery(ctx context.Context, entry *DeliveryLog) error
	ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string, at time.Time) error
	ListPreferences(ctx context.Context, userID string) ([]UserPreference, error)
	SavePreferences(ctx context.Context, userID string, rows []UserPreference) error
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the inbox tables and returns a Store backed by db
func NewGormStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Notification{}, &DeliveryLog{}, &UserPreference{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) Create(ctx context.Context, n *Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification record: %w", err)
	}
	return nil
}

func (s *gormStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s *gormStore) LogDelivery(ctx context.Context, entry *DeliveryLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *gormStore) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	var notifications []Notification

	query := s.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}
	return notifications, nil
}

func (s *gormStore) MarkRead(ctx context.Context, id uuid.UUID, recipientID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListPreferences(ctx context.Context, userID string) ([]UserPreference, error) {
	var prefs []UserPreference
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("category, channel").
		Find(&prefs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user preferences: %w", err)
	}
	return prefs, nil
}

func (s *gormStore) SavePreferences(ctx context.Context, userID string, rows []UserPreference) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&UserPreference{}).Error; err != nil {
			return fmt.Errorf("failed to clear user preferences: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to save user preferences: %w", err)
		}
		return nil
	})
}

type memoryStore struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*Notification
	deliveries    []DeliveryLog
	preferences   map[string][]UserPreference
}

// NewMemoryStore keeps the inbox in process memory
func NewMemoryStore() Store {
	return &memoryStore{
		notifications: make(map[uuid.UUID]*Notification),
		preferences:   make(map[string][]UserPreference),
	}
}

func (s *memoryStore) Create(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	c := *n
	s.notifications[n.ID] = &c
	return nil
}

func (s *memoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Status = status
	return nil
}

func (s *memoryStore) LogDelivery(ctx context.Context, entry *DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, *entry)
	return nil
}

func (s *memoryStore) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Notification
	for _, n := range s.notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		result = append(result, *n)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *memoryStore) MarkRead(ctx context.Context, id uuid.UUID, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotFound
	}
	n.ReadAt = &at
	return nil
}

func (s *memoryStore) ListPreferences(ctx context.Context, userID string) ([]UserPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]UserPreference(nil), s.preferences[userID]...), nil
}

func (s *memoryStore) SavePreferences(ctx context.Context, userID string, rows []UserPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rows) == 0 {
		delete(s.preferences, userID)
		return nil
	}
	s.preferences[userID] = append([]UserPreference(nil), rows...)
	return nil
}
