package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"review-portal/review-portal-backend/internal/documents"
)

// ErrInvalidPreference is returned for unknown channels or event kinds
var ErrInvalidPreference = errors.New("invalid notification preference")

var preferenceChannels = map[string]bool{
	ChannelEmail:     true,
	ChannelWebSocket: true,
	ChannelSNS:       true,
}

var preferenceCategories = map[string]bool{
	string(documents.EventReviewRequested): true,
	string(documents.EventTurnReached):     true,
	string(documents.EventReminder):        true,
	string(documents.EventDocApproved):     true,
	string(documents.EventDocRejected):     true,
}

func (s *Service) Preferences(ctx context.Context, userID string) (*NotificationPreferences, error) {
	rows, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toPreferences(userID, rows), nil
}

// UpdatePreferences replaces every preference row of prefs.UserID
func (s *Service) UpdatePreferences(ctx context.Context, prefs *NotificationPreferences) (*NotificationPreferences, error) {
	rows, err := fromPreferences(prefs)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range rows {
		rows[i].UpdatedAt = now
	}
	if err := s.store.SavePreferences(ctx, prefs.UserID, rows); err != nil {
		return nil, err
	}
	return toPreferences(prefs.UserID, rows), nil
}

// filterChannelsByPreferences drops the channels the recipient switched off
// for kind. A kind-specific row wins over the catch-all row; channels
// without any row stay on.
func filterChannelsByPreferences(channels []Channel, preferences []UserPreference, kind string) []Channel {
	if len(preferences) == 0 {
		return channels
	}
	enabled := make([]Channel, 0, len(channels))
	for _, channel := range channels {
		on := true
		for _, pref := range preferences {
			if pref.Channel != channel.Name() {
				continue
			}
			if pref.Category == kind {
				on = pref.Enabled
				break
			}
			if pref.Category == AllCategories {
				on = pref.Enabled
			}
		}
		if on {
			enabled = append(enabled, channel)
		}
	}
	return enabled
}

func toPreferences(userID string, rows []UserPreference) *NotificationPreferences {
	prefs := &NotificationPreferences{
		UserID:   userID,
		Channels: make(map[string]bool, len(preferenceChannels)),
	}
	for channel := range preferenceChannels {
		prefs.Channels[channel] = true
	}
	for _, row := range rows {
		if prefs.UpdatedAt == nil || row.UpdatedAt.After(*prefs.UpdatedAt) {
			updated := row.UpdatedAt
			prefs.UpdatedAt = &updated
		}
		if row.Category == AllCategories {
			prefs.Channels[row.Channel] = row.Enabled
			continue
		}
		if prefs.Categories == nil {
			prefs.Categories = make(map[string]map[string]bool)
		}
		if prefs.Categories[row.Category] == nil {
			prefs.Categories[row.Category] = make(map[string]bool)
		}
		prefs.Categories[row.Category][row.Channel] = row.Enabled
	}
	return prefs
}

func fromPreferences(prefs *NotificationPreferences) ([]UserPreference, error) {
	if strings.TrimSpace(prefs.UserID) == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidPreference)
	}
	var rows []UserPreference
	seen := make(map[string]bool)
	add := func(category string, channels map[string]bool) error {
		for name, enabled := range channels {
			channel := strings.ToUpper(strings.TrimSpace(name))
			if !preferenceChannels[channel] {
				return fmt.Errorf("%w: unknown channel %q", ErrInvalidPreference, name)
			}
			if seen[category+"/"+channel] {
				return fmt.Errorf("%w: channel %s listed twice", ErrInvalidPreference, channel)
			}
			seen[category+"/"+channel] = true
			rows = append(rows, UserPreference{
				ID:       uuid.New(),
				UserID:   prefs.UserID,
				Channel:  channel,
				Category: category,
				Enabled:  enabled,
			})
		}
		return nil
	}

	if err := add(AllCategories, prefs.Channels); err != nil {
		return nil, err
	}
	for category, channels := range prefs.Categories {
		if !preferenceCategories[category] {
			return nil, fmt.Errorf("%w: unknown event kind %q", ErrInvalidPreference, category)
		}
		if err := add(category, channels); err != nil {
			return nil, err
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Channel < rows[j].Channel
	})
	return rows, nil
}
