package storage

import (
	"github.com/grovetools/tabwatt/pkg/models"
)

// PartialUpdateError reports settings keys that could not be decoded. The
// rest of the update was applied and persisted.
type PartialUpdateError struct {
	Cause error
}

func (e *PartialUpdateError) Error() string {
	return "some settings were ignored: " + e.Cause.Error()
}

func (e *PartialUpdateError) Unwrap() error { return e.Cause }

// Settings returns the stored settings, or the defaults.
func (s *Storage) Settings() (models.Settings, error) {
	out := models.DefaultSettings()
	if _, err := s.getJSON(KeySettings, &out); err != nil {
		return models.DefaultSettings(), err
	}
	return out.Sanitize(), nil
}

// UpdateSettings merges patch into the stored settings, sanitizes the result
// and persists it in one read-merge-write.
func (s *Storage) UpdateSettings(patch map[string]interface{}) (models.Settings, error) {
	var (
		result   models.Settings
		mergeErr error
	)
	err := updateJSONFrom(s, KeySettings, models.DefaultSettings(), func(cur models.Settings, _ bool) (models.Settings, error) {
		merged, err := models.MergeSettings(cur, patch)
		if err != nil {
			// Wrong-typed keys keep their current value.
			mergeErr = err
		}
		result = merged.Sanitize()
		return result, nil
	})
	if err == nil && mergeErr != nil {
		return result, &PartialUpdateError{Cause: mergeErr}
	}
	return result, err
}

// NotificationSettings returns the stored tip settings, or the defaults.
func (s *Storage) NotificationSettings() (models.NotificationSettings, error) {
	out := models.DefaultNotificationSettings()
	if _, err := s.getJSON(KeyNotificationSettings, &out); err != nil {
		return models.DefaultNotificationSettings(), err
	}
	return out.Sanitize(), nil
}

// UpdateNotificationSettings is UpdateSettings for the tip settings.
func (s *Storage) UpdateNotificationSettings(patch map[string]interface{}) (models.NotificationSettings, error) {
	var (
		result   models.NotificationSettings
		mergeErr error
	)
	err := updateJSONFrom(s, KeyNotificationSettings, models.DefaultNotificationSettings(), func(cur models.NotificationSettings, _ bool) (models.NotificationSettings, error) {
		merged, err := models.MergeNotificationSettings(cur, patch)
		if err != nil {
			// Wrong-typed keys keep their current value.
			mergeErr = err
		}
		result = merged.Sanitize()
		return result, nil
	})
	if err == nil && mergeErr != nil {
		return result, &PartialUpdateError{Cause: mergeErr}
	}
	return result, err
}
