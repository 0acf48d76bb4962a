package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/meetbroker/internal/schedule"
)

// Config holds the per-mailbox agent configuration. It is read once at
// startup; the agent never reloads it mid-negotiation.
type Config struct {
	// Account is the Google account name the token file is stored under.
	Account string

	// SelfEmail is the mailbox the agent negotiates on behalf of. When
	// empty it is discovered from the Gmail profile at startup.
	SelfEmail string

	// SelfName is the display name used in outgoing email bodies.
	SelfName string

	// EarliestStart and LatestEnd are the daily meeting boundaries in
	// "HH:MM" form.
	EarliestStart string
	LatestEnd     string

	// SkipWeekends excludes Saturday and Sunday from candidate slots.
	SkipWeekends bool

	// RequireKnownContacts makes the agent decline schedule requests
	// from senders not listed in KnownContacts.
	RequireKnownContacts bool

	// KnownContacts are the email addresses the agent negotiates with
	// when RequireKnownContacts is set.
	KnownContacts []string

	// HorizonDays is how many days ahead the availability resolver
	// searches for free slots.
	HorizonDays int

	// PollInterval is how often the agent checks the inbox.
	PollInterval time.Duration

	// SessionTimeout is how long an idle negotiation survives before it
	// expires.
	SessionTimeout time.Duration

	// AddMeetLink attaches a Google Meet conference to booked events.
	AddMeetLink bool
}

// defaultConfig returns the working-day defaults.
func defaultConfig() Config {
	return Config{
		Account:        "default",
		EarliestStart:  "09:00",
		LatestEnd:      "17:00",
		SkipWeekends:   true,
		HorizonDays:    7,
		PollInterval:   time.Minute,
		SessionTimeout: 48 * time.Hour,
	}
}

// FromEnv builds a Config from MEETBROKER_* environment variables,
// falling back to working-day defaults.
func FromEnv() Config {
	c := defaultConfig()
	c.applyEnv()
	return c
}

// Load builds the effective configuration: working-day defaults, then
// the JSON preference file (if one exists in the user config dir), then
// MEETBROKER_* environment variables on top.
func Load() (Config, error) {
	c := defaultConfig()
	if path := configFilePath(); path != "" {
		if err := c.applyFile(path); err != nil && !os.IsNotExist(err) {
			return c, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, nil
}

// FromFile reads the JSON preference file at path on top of the
// defaults. Environment variables are not consulted.
func FromFile(path string) (Config, error) {
	c := defaultConfig()
	if err := c.applyFile(path); err != nil {
		return c, fmt.Errorf("reading %s: %w", path, err)
	}
	return c, nil
}

// applyEnv overrides fields for which a MEETBROKER_* variable is set.
func (c *Config) applyEnv() {
	c.Account = getEnvOrDefault("MEETBROKER_ACCOUNT", c.Account)
	if v := strings.TrimSpace(os.Getenv("MEETBROKER_SELF_EMAIL")); v != "" {
		c.SelfEmail = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("MEETBROKER_SELF_NAME")); v != "" {
		c.SelfName = v
	}
	c.EarliestStart = getEnvOrDefault("MEETBROKER_EARLIEST_START", c.EarliestStart)
	c.LatestEnd = getEnvOrDefault("MEETBROKER_LATEST_END", c.LatestEnd)
	c.SkipWeekends = getEnvBoolOrDefault("MEETBROKER_SKIP_WEEKENDS", c.SkipWeekends)
	c.RequireKnownContacts = getEnvBoolOrDefault("MEETBROKER_REQUIRE_KNOWN_CONTACTS", c.RequireKnownContacts)
	if v := os.Getenv("MEETBROKER_KNOWN_CONTACTS"); v != "" {
		c.KnownContacts = splitList(v)
	}
	c.HorizonDays = getEnvIntOrDefault("MEETBROKER_HORIZON_DAYS", c.HorizonDays)
	c.PollInterval = getEnvDurationOrDefault("MEETBROKER_POLL_INTERVAL", c.PollInterval)
	c.SessionTimeout = getEnvDurationOrDefault("MEETBROKER_SESSION_TIMEOUT", c.SessionTimeout)
	c.AddMeetLink = getEnvBoolOrDefault("MEETBROKER_ADD_MEET_LINK", c.AddMeetLink)
}

// fileConfig is the JSON schema of the preference file. Pointer fields
// distinguish "absent" from zero values; durations are Go duration
// strings ("90s", "2h").
type fileConfig struct {
	Account              *string  `json:"account"`
	SelfEmail            *string  `json:"self_email"`
	SelfName             *string  `json:"self_name"`
	EarliestStart        *string  `json:"earliest_start"`
	LatestEnd            *string  `json:"latest_end"`
	SkipWeekends         *bool    `json:"skip_weekends"`
	RequireKnownContacts *bool    `json:"require_known_contacts"`
	KnownContacts        []string `json:"known_contacts"`
	HorizonDays          *int     `json:"horizon_days"`
	PollInterval         *string  `json:"poll_interval"`
	SessionTimeout       *string  `json:"session_timeout"`
	AddMeetLink          *bool    `json:"add_meet_link"`
}

// applyFile overrides fields present in the JSON file at path.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("invalid preference file: %w", err)
	}

	if fc.Account != nil {
		c.Account = *fc.Account
	}
	if fc.SelfEmail != nil {
		c.SelfEmail = strings.ToLower(strings.TrimSpace(*fc.SelfEmail))
	}
	if fc.SelfName != nil {
		c.SelfName = strings.TrimSpace(*fc.SelfName)
	}
	if fc.EarliestStart != nil {
		c.EarliestStart = *fc.EarliestStart
	}
	if fc.LatestEnd != nil {
		c.LatestEnd = *fc.LatestEnd
	}
	if fc.SkipWeekends != nil {
		c.SkipWeekends = *fc.SkipWeekends
	}
	if fc.RequireKnownContacts != nil {
		c.RequireKnownContacts = *fc.RequireKnownContacts
	}
	if fc.KnownContacts != nil {
		c.KnownContacts = fc.KnownContacts
	}
	if fc.HorizonDays != nil {
		c.HorizonDays = *fc.HorizonDays
	}
	if fc.PollInterval != nil {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if fc.SessionTimeout != nil {
		d, err := time.ParseDuration(*fc.SessionTimeout)
		if err != nil {
			return fmt.Errorf("session_timeout: %w", err)
		}
		c.SessionTimeout = d
	}
	if fc.AddMeetLink != nil {
		c.AddMeetLink = *fc.AddMeetLink
	}
	return nil
}

// configFilePath locates the preference file in the user config dir.
func configFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "meetbroker", "config.json")
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	start, err := schedule.ParseClockTime(c.EarliestStart)
	if err != nil {
		return fmt.Errorf("MEETBROKER_EARLIEST_START: %w", err)
	}
	end, err := schedule.ParseClockTime(c.LatestEnd)
	if err != nil {
		return fmt.Errorf("MEETBROKER_LATEST_END: %w", err)
	}
	if start.Minutes() >= end.Minutes() {
		return fmt.Errorf("earliest start %s must precede latest end %s", start, end)
	}
	if c.HorizonDays < 1 {
		return fmt.Errorf("MEETBROKER_HORIZON_DAYS must be at least 1, got %d", c.HorizonDays)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("MEETBROKER_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("MEETBROKER_SESSION_TIMEOUT must be positive, got %s", c.SessionTimeout)
	}
	if c.RequireKnownContacts && len(c.KnownContacts) == 0 {
		return fmt.Errorf("MEETBROKER_REQUIRE_KNOWN_CONTACTS is set but MEETBROKER_KNOWN_CONTACTS is empty")
	}
	return nil
}

// Schedule converts the configured boundaries into the resolver's
// preference set. Call Validate first; unparseable boundaries fall
// back to the defaults here.
func (c Config) Schedule() schedule.Preferences {
	p := schedule.DefaultPreferences()
	if start, err := schedule.ParseClockTime(c.EarliestStart); err == nil {
		p.EarliestStart = start
	}
	if end, err := schedule.ParseClockTime(c.LatestEnd); err == nil {
		p.LatestEnd = end
	}
	p.SkipWeekends = c.SkipWeekends
	p.RequireKnownContacts = c.RequireKnownContacts
	return p
}

// Horizon returns how far ahead the resolver searches.
func (c Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// Contacts returns the contact policy derived from the configuration:
// an allow-list when known contacts are required, otherwise open.
func (c Config) Contacts() *AllowList {
	list := &AllowList{open: !c.RequireKnownContacts, emails: make(map[string]struct{})}
	for _, e := range c.KnownContacts {
		list.emails[strings.ToLower(e)] = struct{}{}
	}
	return list
}

// AllowList decides whether the agent negotiates with a sender. The
// zero value allows nobody; use Config.Contacts to build one.
type AllowList struct {
	open   bool
	emails map[string]struct{}
}

// Allows reports whether the agent may negotiate with the sender.
// Matching is case-insensitive.
func (l *AllowList) Allows(email string) bool {
	if l.open {
		return true
	}
	_, ok := l.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the boolean value of an environment variable or a default value.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of an environment variable or a default value.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the duration value of an environment variable or a default value.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
