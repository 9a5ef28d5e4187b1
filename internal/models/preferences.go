package models

import (
	"fmt"
)

// Preferences is the per-user settings blob stored in users.preferences
type Preferences struct {
	Theme              string `json:"theme"`
	FontSize           string `json:"fontSize"`
	ShowUnreadOnly     bool   `json:"showUnreadOnly"`
	MarkReadOnScroll   bool   `json:"markReadOnScroll"`
	SyncEnabled        bool   `json:"syncEnabled"`
	MaxArticlesPerSync int    `json:"maxArticlesPerSync"`
}

// PreferencesUpdate is a partial update; nil fields are left untouched
type PreferencesUpdate struct {
	Theme              *string `json:"theme"`
	FontSize           *string `json:"fontSize"`
	ShowUnreadOnly     *bool   `json:"showUnreadOnly"`
	MarkReadOnScroll   *bool   `json:"markReadOnScroll"`
	SyncEnabled        *bool   `json:"syncEnabled"`
	MaxArticlesPerSync *int    `json:"maxArticlesPerSync"`
}

const (
	MinArticlesPerSync = 10
	MaxArticlesPerSync = 1000
)

var (
	validThemes    = map[string]bool{"light": true, "dark": true, "system": true}
	validFontSizes = map[string]bool{"small": true, "medium": true, "large": true}
)

// DefaultPreferences returns the settings used before a user saves anything
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:              "system",
		FontSize:           "medium",
		ShowUnreadOnly:     true,
		MarkReadOnScroll:   false,
		SyncEnabled:        true,
		MaxArticlesPerSync: 100,
	}
}

// Validate checks a partial update before it is applied
func (u PreferencesUpdate) Validate() error {
	if u.Theme != nil && !validThemes[*u.Theme] {
		return fmt.Errorf("invalid theme %q: must be one of light, dark, system", *u.Theme)
	}
	if u.FontSize != nil && !validFontSizes[*u.FontSize] {
		return fmt.Errorf("invalid fontSize %q: must be one of small, medium, large", *u.FontSize)
	}
	if u.MaxArticlesPerSync != nil {
		n := *u.MaxArticlesPerSync
		if n < MinArticlesPerSync || n > MaxArticlesPerSync {
			return fmt.Errorf("invalid maxArticlesPerSync %d: must be between %d and %d", n, MinArticlesPerSync, MaxArticlesPerSync)
		}
	}
	return nil
}

// Apply returns p with the non-nil fields of u applied
func (p Preferences) Apply(u PreferencesUpdate) Preferences {
	if u.Theme != nil {
		p.Theme = *u.Theme
	}
	if u.FontSize != nil {
		p.FontSize = *u.FontSize
	}
	if u.ShowUnreadOnly != nil {
		p.ShowUnreadOnly = *u.ShowUnreadOnly
	}
	if u.MarkReadOnScroll != nil {
		p.MarkReadOnScroll = *u.MarkReadOnScroll
	}
	if u.SyncEnabled != nil {
		p.SyncEnabled = *u.SyncEnabled
	}
	if u.MaxArticlesPerSync != nil {
		p.MaxArticlesPerSync = *u.MaxArticlesPerSync
	}
	return p
}
