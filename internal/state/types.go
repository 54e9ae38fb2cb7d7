// Package state manages the shared vocaris state file.
//
// The state file (~/.local/state/vocaris/state.json) holds the single active
// meeting session slot, its readiness flags, and the credentials and
// preferences the client remembers between runs. All writes are serialized
// through file locking so two terminals watching the same meeting cannot
// clobber each other.
package state

import "time"

// State represents the persisted state file.
type State struct {
	Session      *Session  `json:"session,omitempty"`
	Readiness    Readiness `json:"readiness"`
	Token        string    `json:"token,omitempty"`
	User         string    `json:"user,omitempty"`
	ClickUpToken string    `json:"clickup_active_token,omitempty"`
	Theme        Theme     `json:"theme,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Session correlates a bot, a meeting URL, and scrum mode for one meeting lifecycle.
type Session struct {
	BotID      string    `json:"bot_id"`
	SessionID  string    `json:"session_id,omitempty"`
	MeetingURL string    `json:"meeting_url"`
	IsScrum    bool      `json:"is_scrum"`
	StartedAt  time.Time `json:"started_at"`
	// EndedAt is set once the meeting is finalized.
	EndedAt time.Time `json:"ended_at,omitempty"`
}

// Ended reports whether the meeting has been finalized.
func (s Session) Ended() bool {
	return !s.EndedAt.IsZero()
}

// Readiness records which generated artifacts are available for a bot.
type Readiness struct {
	BotID      string `json:"bot_id,omitempty"`
	ChatReady  bool   `json:"chat_ready"`
	ScrumReady bool   `json:"scrum_ready"`
}

// Theme is the stored display preference.
type Theme string

const (
	// ThemeSystem follows the terminal.
	ThemeSystem Theme = "system"
	// ThemeLight forces light styling.
	ThemeLight Theme = "light"
	// ThemeDark forces dark styling.
	ThemeDark Theme = "dark"
)

// ValidThemes returns all valid theme values.
func ValidThemes() []Theme {
	return []Theme{ThemeSystem, ThemeLight, ThemeDark}
}

// IsValid returns true if the theme is a known value.
func (t Theme) IsValid() bool {
	for _, valid := range ValidThemes() {
		if t == valid {
			return true
		}
	}
	return false
}
