//nolint:lll // struct tags can't be split
package guildsweep

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
)

const (
	EnvvarSetEnvPrefix = "GUILDSWEEP_ENV_PREFIX"
	DefaultEnvPrefix   = "GS"

	// EnvvarDiscordToken is the bare variable name the token is also
	// read from, for compatibility with existing .env files.
	EnvvarDiscordToken = "DISCORD_TOKEN"

	DefaultLogLevel          = slog.LevelWarn
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultShutdownTimeout   = 5 * time.Second

	DefaultDiscordRequestTimeout = 20 * time.Second

	DefaultRefreshEnabled  = true
	DefaultRefreshInterval = time.Second

	DefaultLeavePaceDelay         = time.Second
	DefaultLeaveDefaultRetryAfter = 5 * time.Second
)

var (
	DefaultDiscordAPIBase = discordgo.EndpointAPI

	structValidator = validator.New()
)

// Config holds everything needed to list and leave guilds.
type Config struct {
	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// ShutdownTimeout bounds how long to wait for the background refresher
	// to stop after the menu exits.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout" binding:"min=0"`

	// NoColor disables colored console output, regardless of whether
	// stdout is a terminal.
	NoColor bool `yaml:"no_color" mapstructure:"no_color" json:"no_color"`

	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord" binding:"required"`

	Refresh *RefreshConfig `yaml:"refresh" mapstructure:"refresh" json:"refresh" binding:"required"`

	Leave *LeaveConfig `yaml:"leave" mapstructure:"leave" json:"leave" binding:"required"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures access to the Discord REST API.
type DiscordConfig struct {
	// Account token. Not validated at startup: a missing or bad token
	// surfaces as an authorization failure on the first request.
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// If true, the token is sent as "Bot <token>"
	BotToken bool `yaml:"bot_token" mapstructure:"bot_token" json:"bot_token"`

	// Base URL of the REST API, including the version path
	APIBase string `yaml:"api_base" mapstructure:"api_base" json:"api_base" binding:"required,url"`

	// Per-request timeout. 0 disables the timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout" binding:"min=0"`

	// Log level for guild directory requests
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`
}

// authorization returns the value sent in the Authorization header
func (c DiscordConfig) authorization() string {
	if c.Token == "" {
		return ""
	}
	if c.BotToken {
		return "Bot " + c.Token
	}
	return c.Token
}

// RefreshConfig configures the background guild list refresher.
type RefreshConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// Wait between the end of one refresh and the start of the next
	Interval time.Duration `yaml:"interval" mapstructure:"interval" json:"interval" binding:"required_if=Enabled true,min=0"`
}

// LeaveConfig configures pacing of leave runs.
type LeaveConfig struct {
	// Delay after every guild in a run, whatever the outcome
	PaceDelay time.Duration `yaml:"pace_delay" mapstructure:"pace_delay" json:"pace_delay" binding:"min=0"`

	// Wait used when a 429 response has no usable Retry-After header
	DefaultRetryAfter time.Duration `yaml:"default_retry_after" mapstructure:"default_retry_after" json:"default_retry_after" binding:"min=0"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)

	return &Config{
		LogLevel:        mainLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			APIBase:           DefaultDiscordAPIBase,
			RequestTimeout:    DefaultDiscordRequestTimeout,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		Refresh: &RefreshConfig{
			Enabled:  DefaultRefreshEnabled,
			Interval: DefaultRefreshInterval,
		},
		Leave: &LeaveConfig{
			PaceDelay:         DefaultLeavePaceDelay,
			DefaultRetryAfter: DefaultLeaveDefaultRetryAfter,
		},
	}
}

// ValidateConfig checks the given config against its `binding` tags.
func ValidateConfig(cfg *Config) error {
	return structValidator.Struct(cfg)
}

//nolint:gochecknoinits // gotta register the validators
func init() {
	structValidator.SetTagName("binding")
}
