package redditcore

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jamesprial/redditcore/internal"
)

// Config collects everything needed to build a Session: app credentials,
// the grant flow to authenticate with, and the ambient knobs (user agent,
// timeout, base URLs) that every grant flow shares.
type Config struct {
	ClientID     string `env:"CLIENT_ID" yaml:"client_id"`
	ClientSecret string `env:"CLIENT_SECRET" yaml:"client_secret"`
	RedirectURI  string `env:"REDIRECT_URI" yaml:"redirect_uri"`
	UserAgent    string `env:"USER_AGENT" yaml:"user_agent"`
	Username     string `env:"USERNAME" yaml:"username"`
	Password     string `env:"PASSWORD" yaml:"password"`

	RequestTimeoutSeconds int `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30" yaml:"request_timeout_seconds"`

	OAuthURL  string `env:"OAUTH_URL" envDefault:"https://oauth.reddit.com/" yaml:"oauth_url"`
	RedditURL string `env:"REDDIT_URL" envDefault:"https://www.reddit.com/" yaml:"reddit_url"`

	// Logger for structured diagnostics. Optional; if set, a Session built
	// from this Config logs each request/response at debug level. Not
	// populated by LoadConfigFromEnv/LoadConfigFromYAML - set it after
	// loading.
	Logger *slog.Logger `yaml:"-"`
}

// Timeout converts RequestTimeoutSeconds to a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LoadConfigFromEnv builds a Config from environment variables. prefix, if
// non-empty, is prepended to every variable name (e.g. prefix "REDDIT_"
// reads "REDDIT_CLIENT_ID").
func LoadConfigFromEnv(prefix string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: prefix}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads key=value pairs from a .env-style file into the process
// environment, for local development. It is a thin wrapper over godotenv so
// callers don't need a second import just to find this one function.
func LoadDotEnv(path string) error {
	return godotenv.Load(path)
}

// LoadConfigFromYAML reads a YAML credentials file into a Config. Fields left
// unset in the file keep their Go zero values; callers wanting the same
// defaults LoadConfigFromEnv applies (timeout, OAuth/Reddit URLs) should set
// them after loading, or fill a Config from env first and override from YAML.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reddit: reading config file %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("reddit: parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// NewTrustedReadOnlySession builds a Session authenticated with the
// client_credentials grant: the common case for apps that only read public
// data and never act as a specific user.
func NewTrustedReadOnlySession(cfg *Config, httpClient *http.Client) (*Session, error) {
	requestor := internal.NewRequestor(httpClient)
	authenticator, err := NewTrustedAuthenticator(requestor, cfg.ClientID, cfg.ClientSecret, cfg.UserAgent, WithRedditURL(cfg.RedditURL))
	if err != nil {
		return nil, err
	}
	authorizer := NewReadOnlyAuthorizer(authenticator)
	return NewSession(authorizer, requestor,
		WithUserAgent(cfg.UserAgent),
		WithOAuthURL(cfg.OAuthURL),
		WithSessionRedditURL(cfg.RedditURL),
		WithTimeout(cfg.Timeout()),
		WithLogger(cfg.Logger),
	), nil
}

// NewScriptSession builds a Session authenticated with the password grant,
// acting as a specific Reddit account. twoFactorCallback may be nil for
// accounts without two-factor authentication enabled.
func NewScriptSession(cfg *Config, twoFactorCallback func() string, httpClient *http.Client) (*Session, error) {
	requestor := internal.NewRequestor(httpClient)
	authenticator, err := NewTrustedAuthenticator(requestor, cfg.ClientID, cfg.ClientSecret, cfg.UserAgent, WithRedditURL(cfg.RedditURL))
	if err != nil {
		return nil, err
	}
	authorizer := NewScriptAuthorizer(authenticator, cfg.Username, cfg.Password, twoFactorCallback)
	return NewSession(authorizer, requestor,
		WithUserAgent(cfg.UserAgent),
		WithOAuthURL(cfg.OAuthURL),
		WithSessionRedditURL(cfg.RedditURL),
		WithTimeout(cfg.Timeout()),
	), nil
}
