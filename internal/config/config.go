package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CalendarConfig describes a single calendar source to merge.
type CalendarConfig struct {
	// URI is the source descriptor: file://, http(s)://, webcal:// or data://.
	URI string `yaml:"uri" json:"uri"`
	// Name is a human-friendly label used only for logging.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Anonymize replaces event summaries from this source with the
	// configured placeholder.
	Anonymize bool `yaml:"anonymize" json:"anonymize"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the feed endpoint.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the merged feed.
	Listen string `yaml:"listen" json:"listen"`

	// Name becomes the PRODID of the merged calendar.
	Name string `yaml:"name" json:"name"`

	// Domain scopes the obfuscated event UIDs (<digest>@<domain>).
	Domain string `yaml:"domain" json:"domain"`

	// Placeholder replaces event summaries of anonymized sources.
	Placeholder string `yaml:"placeholder" json:"placeholder"`

	// KnownEmails are the calendar owner's addresses across accounts; used
	// to derive event status from attendee responses.
	KnownEmails []string `yaml:"known_emails" json:"known_emails"`

	// SkipEventsBefore drops non-recurring events that ended before this
	// date, formatted YYYY-MM-DD. Empty keeps everything.
	SkipEventsBefore string `yaml:"skip_events_before,omitempty" json:"skip_events_before,omitempty"`

	// SkipExpiredRecurring additionally drops recurring events whose rule
	// is exhausted before SkipEventsBefore.
	SkipExpiredRecurring bool `yaml:"skip_expired_recurring" json:"skip_expired_recurring"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// re-warming the merged feed cache.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir enables the conditional-GET disk cache for HTTP sources.
	// Empty disables caching.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`

	// Calendars is the list of sources to merge, in output order.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Name:        "Merged Calendar",
		Domain:      "camerge",
		Placeholder: "busy",
		KnownEmails: []string{},
		RefreshCron: "*/15 * * * *",
		Calendars:   []CalendarConfig{},
	}
}

// Normalize fills missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Name == "" {
		c.Name = "Merged Calendar"
	}
	if c.Domain == "" {
		c.Domain = "camerge"
	}
	if c.Placeholder == "" {
		c.Placeholder = "busy"
	}
	if c.KnownEmails == nil {
		c.KnownEmails = []string{}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
}

// Cutoff parses SkipEventsBefore into a date, or nil when unset.
func (c *Config) Cutoff() (*time.Time, error) {
	if c.SkipEventsBefore == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", c.SkipEventsBefore)
	if err != nil {
		return nil, fmt.Errorf("invalid skip_events_before %q: %w", c.SkipEventsBefore, err)
	}
	return &t, nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (parent
// directory created as needed) and returned, so a first run leaves an
// editable file behind.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	// Fail early on an unparseable cutoff instead of silently merging
	// everything.
	if _, err := cfg.Cutoff(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to path atomically (temp file + rename)
// with 0600 permissions; feed URLs and credentials live in this file.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".camerge-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
