package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/perbu/calreceipt/applog"
)

const (
	configFile      = "config.toml"
	preferencesFile = "pref.json"
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
	envFile         = ".env"

	// HomeEnv overrides the config directory.
	HomeEnv = "CALRECEIPT_HOME"
)

// Config holds the application configuration.
type Config struct {
	Printer   PrinterConfig `toml:"printer"`
	Report    ReportConfig  `toml:"report"`
	Calendars []string      `toml:"calendars"`
	// Schedule is the cron expression the daemon prints on.
	Schedule string    `toml:"schedule"`
	LogLevel string    `toml:"log_level"`
	ICS      []ICSFeed `toml:"ics"`
}

// PrinterConfig describes how to reach the receipt printer.
type PrinterConfig struct {
	// Port is the serial or USB character device, e.g. /dev/ttyUSB0 or /dev/usb/lp0.
	Port     string `toml:"port"`
	Baud     int    `toml:"baud"`
	CodePage string `toml:"code_page"`
	// Cut sends a paper cut after each report.
	Cut bool `toml:"cut"`
}

// ReportConfig selects which event details are printed.
type ReportConfig struct {
	EventLength      bool   `toml:"event_length"`
	EventLocation    bool   `toml:"event_location"`
	EventDescription bool   `toml:"event_description"`
	Order            string `toml:"order"`
}

// ICSFeed is an ICS subscription, referenced from Calendars as "ics:<name>".
type ICSFeed struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// Preferences are the user's personal settings from pref.json.
type Preferences struct {
	Name string `json:"name"`
}

// DefaultConfig returns the configuration used when config.toml is absent.
func DefaultConfig() *Config {
	return &Config{
		Printer: PrinterConfig{
			Port:     "/dev/ttyUSB0",
			Baud:     9600,
			CodePage: "cp437",
		},
		Report: ReportConfig{
			EventLength:      true,
			EventLocation:    true,
			EventDescription: true,
			Order:            "date_time",
		},
		Calendars: []string{"primary"},
		Schedule:  "0 7 * * *",
		LogLevel:  "info",
	}
}

// Normalize fills in zero values left by a partial config file.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Printer.Port == "" {
		c.Printer.Port = def.Printer.Port
	}
	if c.Printer.Baud <= 0 {
		c.Printer.Baud = def.Printer.Baud
	}
	if c.Printer.CodePage == "" {
		c.Printer.CodePage = def.Printer.CodePage
	}
	if c.Report.Order == "" {
		c.Report.Order = def.Report.Order
	}
	if len(c.Calendars) == 0 {
		c.Calendars = def.Calendars
	}
	if c.Schedule == "" {
		c.Schedule = def.Schedule
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// FeedByName returns the ICS feed with the given name.
func (c *Config) FeedByName(name string) (ICSFeed, bool) {
	for _, f := range c.ICS {
		if f.Name == name {
			return f, true
		}
	}
	return ICSFeed{}, false
}

// Loader defines methods to load configuration, preferences, credentials, and token.
type Loader interface {
	LoadConfig() (*Config, error)
	LoadPreferences() (*Preferences, error)
	LoadCredentials() ([]byte, error)
	LoadToken() ([]byte, error)
	SaveToken(token []byte) error
}

// FileLoader implements Loader by reading from the filesystem.
type FileLoader struct {
	configDir string
	// lookupEnv defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
}

// NewFileLoader initializes a FileLoader on $CALRECEIPT_HOME, or ~/.calreceipt.
func NewFileLoader() (*FileLoader, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return NewFileLoaderAt(dir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("unable to find user home directory: %w", err)
	}
	return NewFileLoaderAt(filepath.Join(homeDir, ".calreceipt")), nil
}

// NewFileLoaderAt returns a FileLoader on the given directory.
func NewFileLoaderAt(dir string) *FileLoader {
	return &FileLoader{configDir: dir, lookupEnv: os.LookupEnv}
}

// Dir is the config directory.
func (f *FileLoader) Dir() string {
	return f.configDir
}

// LoadConfig reads config.toml, applies .env and environment overrides and
// fills defaults. A missing config.toml gives the defaults.
func (f *FileLoader) LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	configPath := filepath.Join(f.configDir, configFile)
	md, err := toml.DecodeFile(configPath, cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		applog.Debug("no config file, using defaults", "path", configPath)
	case err != nil:
		return nil, fmt.Errorf("toml.DecodeFile(%s): %w", configPath, err)
	default:
		for _, key := range md.Undecoded() {
			applog.Info("ignoring unknown config key", "key", key.String(), "path", configPath)
		}
	}

	if err := f.applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// applyEnv overrides settings from the process environment and the optional
// .env file in the config directory. The process environment wins.
func (f *FileLoader) applyEnv(cfg *Config) error {
	envPath := filepath.Join(f.configDir, envFile)
	dotenv, err := godotenv.Read(envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("godotenv.Read(%s): %w", envPath, err)
	}
	lookup := func(key string) (string, bool) {
		if f.lookupEnv != nil {
			if v, ok := f.lookupEnv(key); ok {
				return v, true
			}
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if v, ok := lookup("CALRECEIPT_PRINTER_PORT"); ok {
		cfg.Printer.Port = v
	}
	if v, ok := lookup("CALRECEIPT_PRINTER_BAUD"); ok {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CALRECEIPT_PRINTER_BAUD: %w", err)
		}
		cfg.Printer.Baud = baud
	}
	if v, ok := lookup("CALRECEIPT_CALENDARS"); ok {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Calendars = ids
	}
	if v, ok := lookup("CALRECEIPT_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return nil
}

// LoadPreferences reads the pref.json file.
func (f *FileLoader) LoadPreferences() (*Preferences, error) {
	prefPath := filepath.Join(f.configDir, preferencesFile)
	b, err := os.ReadFile(prefPath)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s): %w", prefPath, err)
	}

	var prefs Preferences
	if err := json.Unmarshal(b, &prefs); err != nil {
		return nil, fmt.Errorf("json.Unmarshal(%s): %w", prefPath, err)
	}
	return &prefs, nil
}

// LoadCredentials reads the credentials.json file.
func (f *FileLoader) LoadCredentials() ([]byte, error) {
	credentialsPath := filepath.Join(f.configDir, credentialsFile)
	bytes, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s): %w", credentialsPath, err)
	}
	return bytes, nil
}

// LoadToken reads the token.json file. The error is returned unwrapped so
// callers can test for fs.ErrNotExist.
func (f *FileLoader) LoadToken() ([]byte, error) {
	return os.ReadFile(filepath.Join(f.configDir, tokenFile))
}

// SaveToken replaces token.json atomically, readable by the owner only.
func (f *FileLoader) SaveToken(token []byte) error {
	if err := os.MkdirAll(f.configDir, 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(f.configDir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(token); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to save token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.configDir, tokenFile)); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}
	return nil
}
