package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoConfigPath is returned when the client config path cannot be determined.
var ErrNoConfigPath = errors.New("cannot determine config path")

// DefaultRemoteTimeout bounds every remote call when the file sets none.
const DefaultRemoteTimeout = 10 * time.Second

// Client is the terminal client's persisted configuration. An empty
// RemoteURL means local mode.
type Client struct {
	RemoteURL string `yaml:"remote_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"` // Go duration, e.g. "10s"

	// MaxContentSize caps uploads in local mode; 0 = DefaultMaxContentSize.
	MaxContentSize int `yaml:"max_content_size,omitempty"`

	// path is the file this config was loaded from (for Save)
	path string
}

// ClientPath returns $XDG_CONFIG_HOME/sipp/config.yaml, falling back to
// ~/.config/sipp/config.yaml.
func ClientPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "sipp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sipp", "config.yaml")
}

// LoadClient reads the client config at path. A missing file is not an
// error: it yields an empty config (local mode) bound to path.
func LoadClient(path string) (*Client, error) {
	if path == "" {
		return nil, ErrNoConfigPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Client{path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Client
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w\n\nTo fix: edit the file to correct the YAML syntax, or delete it to use defaults", path, err)
	}
	cfg.path = path

	if _, err := cfg.TimeoutDuration(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Path returns the file this config is bound to.
func (c *Client) Path() string { return c.path }

// TimeoutDuration parses Timeout, defaulting to DefaultRemoteTimeout.
func (c *Client) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return DefaultRemoteTimeout, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
	if err != nil {
		return 0, fmt.Errorf("%w: timeout must be a duration like 10s, got %q", ErrInvalidValue, c.Timeout)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: timeout must be positive, got %q", ErrInvalidValue, c.Timeout)
	}
	return d, nil
}

// Save writes the config back to its file. The file holds a credential,
// so it is created 0600 inside a 0700 directory.
func (c *Client) Save() error {
	if c.path == "" {
		return ErrNoConfigPath
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config file %s: %w", c.path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(c.path, 0o600); err != nil {
		return fmt.Errorf("cannot restrict config file %s: %w", c.path, err)
	}
	return nil
}

// ClientOverrides carries values that take precedence over the file:
// command-line flags first, then environment variables.
type ClientOverrides struct {
	FlagRemoteURL string
	FlagAPIKey    string
	FlagTimeout   time.Duration

	Getenv func(string) string // normally os.Getenv
}

// Resolved is the effective client setting after applying overrides.
type Resolved struct {
	RemoteURL string
	APIKey    string
	Timeout   time.Duration

	// MaxContentSize is enforced by the local backend. A remote server
	// enforces its own limit.
	MaxContentSize int
}

// Remote reports whether the resolved setting selects remote mode.
func (r Resolved) Remote() bool { return r.RemoteURL != "" }

// Resolve merges flag > env (SIPP_REMOTE_URL, SIPP_CLIENT_API_KEY,
// SIPP_MAX_CONTENT_SIZE) > file.
//
// The key comes from SIPP_CLIENT_API_KEY, not SIPP_API_KEY: the server reads
// the latter as its secret, which may be a bcrypt hash rather than the key.
func (c *Client) Resolve(o ClientOverrides) (Resolved, error) {
	getenv := o.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	timeout, err := c.TimeoutDuration()
	if err != nil {
		return Resolved{}, err
	}
	if o.FlagTimeout > 0 {
		timeout = o.FlagTimeout
	}

	maxSize, err := c.maxContentSize(getenv("SIPP_MAX_CONTENT_SIZE"))
	if err != nil {
		return Resolved{}, err
	}

	return Resolved{
		RemoteURL:      strings.TrimRight(first(o.FlagRemoteURL, getenv("SIPP_REMOTE_URL"), c.RemoteURL), "/"),
		APIKey:         first(o.FlagAPIKey, getenv("SIPP_CLIENT_API_KEY"), c.APIKey),
		Timeout:        timeout,
		MaxContentSize: maxSize,
	}, nil
}

// maxContentSize applies the same rules as the server's SIPP_MAX_CONTENT_SIZE
// so a local client and a server sharing one file agree on the limit.
func (c *Client) maxContentSize(fromEnv string) (int, error) {
	if v := strings.TrimSpace(fromEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: SIPP_MAX_CONTENT_SIZE must be an integer, got %q", ErrInvalidValue, v)
		}
		if n <= 0 {
			return 0, fmt.Errorf("%w: SIPP_MAX_CONTENT_SIZE must be positive, got %d", ErrInvalidValue, n)
		}
		return n, nil
	}
	switch {
	case c.MaxContentSize < 0:
		return 0, fmt.Errorf("%w: max_content_size must be positive, got %d", ErrInvalidValue, c.MaxContentSize)
	case c.MaxContentSize == 0:
		return DefaultMaxContentSize, nil
	}
	return c.MaxContentSize, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
