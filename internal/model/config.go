package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AccountConfig holds the IMAP settings for a single mailbox account.
type AccountConfig struct {
	// Name is the user-defined label for this account. Defaults to the
	// username when empty.
	Name string `mapstructure:"name" yaml:"name"`

	// Host is the IMAP server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the IMAP server port.
	Port string `mapstructure:"port" yaml:"port"`

	// TLS selects implicit TLS; when false, STARTTLS is used.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// Username is the login name and the account identity recorded on
	// every indexed document.
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the IMAP password. When empty it is resolved from the
	// system keyring at startup.
	Password string `mapstructure:"password" yaml:"password"`

	// Mailbox is the folder to watch.
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// SyncConfig holds the timing knobs for the synchronization engine.
type SyncConfig struct {
	// ReconnectDelay is the fixed pause before a reconnect attempt.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`

	// KeepaliveInterval is how often a NOOP is issued while connected.
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval"`

	// LivenessInterval is how often the session state is checked for
	// silent hangs not reported as errors.
	LivenessInterval time.Duration `mapstructure:"liveness_interval" yaml:"liveness_interval"`

	// FetchBatchLimit caps how many messages one notification batch may
	// fetch. Zero means no cap.
	FetchBatchLimit int `mapstructure:"fetch_batch_limit" yaml:"fetch_batch_limit"`
}

// ClassifierConfig holds settings for the embedding service.
type ClassifierConfig struct {
	// Endpoint is the URL of the embedding HTTP service.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Model is the embedding model name sent with each request.
	Model string `mapstructure:"model" yaml:"model"`

	// Timeout bounds a single embedding request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StoreConfig holds settings for the local search index.
type StoreConfig struct {
	// Path is the SQLite database file location.
	Path string `mapstructure:"path" yaml:"path"`
}

// HTTPConfig holds settings for the JSON API server.
type HTTPConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Accounts   []AccountConfig  `mapstructure:"accounts" yaml:"accounts"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailindex/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailindex", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Sync: SyncConfig{
			ReconnectDelay:    5 * time.Second,
			KeepaliveInterval: 5 * time.Minute,
			LivenessInterval:  10 * time.Minute,
			FetchBatchLimit:   50,
		},
		Classifier: ClassifierConfig{
			Endpoint: "http://localhost:11434/api/embed",
			Model:    "nomic-embed-text",
			Timeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Path: filepath.Join(".", "mailindex.db"),
		},
		HTTP: HTTPConfig{Port: 5000},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper, layering MAILINDEX_* environment variables on top. If the file
// does not exist, defaults plus environment values are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("mailindex")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("sync.reconnect_delay", "5s")
	v.SetDefault("sync.keepalive_interval", "5m")
	v.SetDefault("sync.liveness_interval", "10m")
	v.SetDefault("sync.fetch_batch_limit", 50)
	v.SetDefault("classifier.endpoint", "http://localhost:11434/api/embed")
	v.SetDefault("classifier.model", "nomic-embed-text")
	v.SetDefault("classifier.timeout", "30s")
	v.SetDefault("store.path", "./mailindex.db")
	v.SetDefault("http.port", 5000)

	if err := v.ReadInConfig(); err != nil {
		switch err.(type) {
		case *os.PathError, viper.ConfigFileNotFoundError:
			// Fall through to defaults + environment.
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Allow a single account to be configured purely via environment
	// (MAILINDEX_IMAP_HOST, MAILINDEX_IMAP_USERNAME, ...).
	if len(cfg.Accounts) == 0 {
		envAccount := AccountConfig{
			Host:     v.GetString("imap.host"),
			Port:     v.GetString("imap.port"),
			TLS:      true,
			Username: v.GetString("imap.username"),
			Password: v.GetString("imap.password"),
		}
		if envAccount.Host != "" || envAccount.Username != "" {
			cfg.Accounts = append(cfg.Accounts, envAccount)
		}
	}

	for i := range cfg.Accounts {
		if cfg.Accounts[i].Mailbox == "" {
			cfg.Accounts[i].Mailbox = "INBOX"
		}
		if cfg.Accounts[i].Port == "" {
			cfg.Accounts[i].Port = "993"
			cfg.Accounts[i].TLS = true
		}
		if cfg.Accounts[i].Name == "" {
			cfg.Accounts[i].Name = cfg.Accounts[i].Username
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is complete enough to start.
// Credential resolution (keyring lookup) must run before validation.
func (c *AppConfig) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	for i, a := range c.Accounts {
		if a.Host == "" {
			return fmt.Errorf("account %d (%s): missing IMAP host", i, a.Name)
		}
		if a.Username == "" {
			return fmt.Errorf("account %d: missing username", i)
		}
		if a.Password == "" {
			return fmt.Errorf("account %d (%s): missing password and no keyring entry", i, a.Username)
		}
	}
	if c.Sync.ReconnectDelay <= 0 {
		return fmt.Errorf("sync.reconnect_delay must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	return nil
}
