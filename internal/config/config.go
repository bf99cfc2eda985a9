// Package config loads calsweep's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
	BackendGmail  = "gmail"
	BackendIMAP   = "imap"

	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

// Config holds all calsweep configuration.
type Config struct {
	Google   GoogleConfig   `toml:"google"`
	Calendar CalendarConfig `toml:"calendar"`
	CalDAV   CalDAVConfig   `toml:"caldav"`
	Inbox    InboxConfig    `toml:"inbox"`
	IMAP     IMAPConfig     `toml:"imap"`
	Sweep    SweepConfig    `toml:"sweep"`
	Log      LogConfig      `toml:"log"`
	Journal  JournalConfig  `toml:"journal"`
}

// GoogleConfig locates the OAuth client secret and the stored token.
type GoogleConfig struct {
	Credentials string `toml:"credentials"`
	TokenStore  string `toml:"token_store"`
	TokenPath   string `toml:"token_path"`
}

// CalendarConfig selects the calendar and the event window.
type CalendarConfig struct {
	Backend    string   `toml:"backend"`
	CalendarID string   `toml:"calendar_id"`
	Lookback   Duration `toml:"lookback"`
	Horizon    Duration `toml:"horizon"`
	MaxResults int      `toml:"max_results"`
	OrderBy    string   `toml:"order_by"`
}

type CalDAVConfig struct {
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	PasswordEnv string `toml:"password_env"`
}

// InboxConfig selects where spam is read from.
type InboxConfig struct {
	Backend      string `toml:"backend"`
	Label        string `toml:"label"`
	IncludeTrash bool   `toml:"include_trash"`
	MaxResults   int    `toml:"max_results"`
	Concurrency  int    `toml:"concurrency"`
}

type IMAPConfig struct {
	Address     string `toml:"address"`
	Username    string `toml:"username"`
	Mailbox     string `toml:"mailbox"`
	Auth        string `toml:"auth"`
	PasswordEnv string `toml:"password_env"`
}

// SweepConfig controls deletion. DryRun and Notify have no default and
// must be set by the file or a flag.
type SweepConfig struct {
	DryRun *bool `toml:"dry_run"`
	Notify *bool `toml:"notify"`
	RPS    int   `toml:"rps"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// JournalConfig enables the run journal when Path is set.
type JournalConfig struct {
	Path string `toml:"path"`
}

// Duration decodes TOML strings such as "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	dir := ConfigDir()
	return Config{
		Google: GoogleConfig{
			Credentials: filepath.Join(dir, "credentials.json"),
			TokenStore:  TokenStoreFile,
			TokenPath:   filepath.Join(dir, "token.json"),
		},
		Calendar: CalendarConfig{
			Backend:    BackendGoogle,
			CalendarID: "primary",
			Lookback:   Duration{24 * time.Hour},
			Horizon:    Duration{365 * 24 * time.Hour},
			MaxResults: 10,
			OrderBy:    "startTime",
		},
		CalDAV: CalDAVConfig{
			PasswordEnv: "CALSWEEP_CALDAV_PASSWORD",
		},
		Inbox: InboxConfig{
			Backend:      BackendGmail,
			Label:        "SPAM",
			IncludeTrash: true,
			MaxResults:   25,
			Concurrency:  4,
		},
		IMAP: IMAPConfig{
			Address:     "imap.gmail.com:993",
			Mailbox:     "[Gmail]/Spam",
			Auth:        "oauth",
			PasswordEnv: "CALSWEEP_IMAP_PASSWORD",
		},
		Sweep: SweepConfig{RPS: 4},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads config from path over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
	}
	return &cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Sweep.DryRun == nil {
		errs = append(errs, errors.New("sweep.dry_run must be set (config or --dry-run)"))
	}
	if c.Sweep.Notify == nil {
		errs = append(errs, errors.New("sweep.notify must be set (config or --notify)"))
	}
	if c.Sweep.RPS < 0 {
		errs = append(errs, fmt.Errorf("sweep.rps must not be negative, got %d", c.Sweep.RPS))
	}

	switch c.Calendar.Backend {
	case BackendGoogle:
	case BackendCalDAV:
		if c.CalDAV.URL == "" {
			errs = append(errs, errors.New("caldav.url is required for the caldav backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("calendar.backend %q is not one of google, caldav", c.Calendar.Backend))
	}
	if c.Calendar.CalendarID == "" {
		errs = append(errs, errors.New("calendar.calendar_id is required"))
	}
	if c.Calendar.Lookback.Duration < 0 {
		errs = append(errs, errors.New("calendar.lookback must not be negative"))
	}
	if c.Calendar.Horizon.Duration < 0 {
		errs = append(errs, errors.New("calendar.horizon must not be negative"))
	}
	if c.Calendar.MaxResults < 0 {
		errs = append(errs, errors.New("calendar.max_results must not be negative"))
	}

	switch c.Inbox.Backend {
	case BackendGmail:
	case BackendIMAP:
		if c.IMAP.Username == "" {
			errs = append(errs, errors.New("imap.username is required for the imap backend"))
		}
		if c.IMAP.Auth != "oauth" && c.IMAP.Auth != "password" {
			errs = append(errs, fmt.Errorf("imap.auth %q is not one of oauth, password", c.IMAP.Auth))
		}
	default:
		errs = append(errs, fmt.Errorf("inbox.backend %q is not one of gmail, imap", c.Inbox.Backend))
	}
	if c.Inbox.MaxResults < 0 {
		errs = append(errs, errors.New("inbox.max_results must not be negative"))
	}

	if c.NeedsGoogleAuth() {
		switch c.Google.TokenStore {
		case TokenStoreFile:
			if c.Google.TokenPath == "" {
				errs = append(errs, errors.New("google.token_path is required for the file token store"))
			}
		case TokenStoreKeyring:
		default:
			errs = append(errs, fmt.Errorf("google.token_store %q is not one of file, keyring", c.Google.TokenStore))
		}
		if c.Google.Credentials == "" {
			errs = append(errs, errors.New("google.credentials is required"))
		}
	}
	return errors.Join(errs...)
}

// NeedsGoogleAuth reports whether any backend uses Google OAuth.
func (c *Config) NeedsGoogleAuth() bool {
	return c.Calendar.Backend == BackendGoogle ||
		c.Inbox.Backend == BackendGmail ||
		(c.Inbox.Backend == BackendIMAP && c.IMAP.Auth == "oauth")
}

// ConfigDir returns the calsweep config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "calsweep")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "calsweep")
}

// DataDir returns the calsweep data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "calsweep")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "calsweep")
}
