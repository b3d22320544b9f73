package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Rcon     RconConfig     `yaml:"rcon"`
	Listener ListenerConfig `yaml:"listener"`
	Store    StoreConfig    `yaml:"store"`
	Verify   VerifyConfig   `yaml:"verify"`
	HTTP     HTTPConfig     `yaml:"http"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// DiscordConfig identifies the bot and the channels and role it manages
type DiscordConfig struct {
	BotToken         string `yaml:"bot_token" env:"DISCORD_BOT_TOKEN"`
	ChannelID        string `yaml:"channel_id" env:"DISCORD_CHANNEL_ID"`
	GuildID          string `yaml:"guild_id" env:"DISCORD_GUILD_ID"`
	VerifiedRoleID   string `yaml:"verified_role_id" env:"DISCORD_VERIFIED_ROLE_ID"`
	CommandChannelID string `yaml:"command_channel_id" env:"DISCORD_COMMAND_CHANNEL_ID"`
}

// RconConfig holds remote console settings
type RconConfig struct {
	Host     string        `yaml:"host" env:"RCON_HOST"`
	Port     int           `yaml:"port" env:"RCON_PORT"`
	Password string        `yaml:"password" env:"RCON_PASSWORD"`
	Timeout  time.Duration `yaml:"timeout" env:"RCON_TIMEOUT"`
}

// Address joins host and port
func (r RconConfig) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// ListenerConfig is where the game server log stream connects. When
// LogPath is set the log file is tailed instead.
type ListenerConfig struct {
	Host    string `yaml:"host" env:"LISTEN_HOST"`
	Port    int    `yaml:"port" env:"LISTEN_PORT"`
	LogPath string `yaml:"log_path" env:"MINECRAFT_LOG_PATH"`
}

// Address joins host and port
func (l ListenerConfig) Address() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// StoreConfig locates the whitelist mapping store
type StoreConfig struct {
	Path string `yaml:"path" env:"WHITELIST_STORE_PATH"`
}

// VerifyConfig tunes the verification flow
type VerifyConfig struct {
	GracePeriod    time.Duration `yaml:"grace_period" env:"VERIFY_GRACE_PERIOD"`
	PromptTTL      time.Duration `yaml:"prompt_ttl" env:"VERIFY_PROMPT_TTL"`
	BootstrapDelay time.Duration `yaml:"bootstrap_delay" env:"BOOTSTRAP_DELAY"`
}

// HTTPConfig holds admin API settings. An empty Addr disables the API.
type HTTPConfig struct {
	Addr          string        `yaml:"addr" env:"HTTP_ADDR"`
	JWTSecret     string        `yaml:"jwt_secret" env:"HTTP_JWT_SECRET"`
	TokenDuration time.Duration `yaml:"token_duration" env:"HTTP_TOKEN_DURATION"`
}

// NATSConfig holds event mirror settings. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url" env:"NATS_URL"`
	Subject string `yaml:"subject" env:"NATS_SUBJECT"`
}

// LogConfig selects log verbosity and format
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Load reads configuration from an optional YAML file, then lets
// environment variables override it
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// Set defaults
	if cfg.Store.Path == "" {
		cfg.Store.Path = "/data/discord_mappings.json"
	}
	if cfg.Listener.Host == "" {
		cfg.Listener.Host = "0.0.0.0"
	}
	if cfg.Listener.Port == 0 {
		cfg.Listener.Port = 9999
	}
	if cfg.Rcon.Timeout == 0 {
		cfg.Rcon.Timeout = 10 * time.Second
	}
	if cfg.Verify.GracePeriod == 0 {
		cfg.Verify.GracePeriod = 10 * time.Second
	}
	if cfg.Verify.PromptTTL == 0 {
		cfg.Verify.PromptTTL = 5 * time.Minute
	}
	if cfg.Verify.BootstrapDelay == 0 {
		cfg.Verify.BootstrapDelay = 200 * time.Millisecond
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "minebridge.events"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Auth defaults
	if cfg.HTTP.TokenDuration == 0 {
		cfg.HTTP.TokenDuration = 24 * time.Hour
	}

	return &cfg, nil
}

// ErrMissing is wrapped by Validate when required settings are absent
var ErrMissing = errors.New("missing required configuration")

// Validate reports every required setting that is unset, by its
// environment variable name
func (c *Config) Validate() error {
	required := []struct {
		name string
		set  bool
	}{
		{"DISCORD_BOT_TOKEN", c.Discord.BotToken != ""},
		{"DISCORD_CHANNEL_ID", c.Discord.ChannelID != ""},
		{"DISCORD_GUILD_ID", c.Discord.GuildID != ""},
		{"DISCORD_VERIFIED_ROLE_ID", c.Discord.VerifiedRoleID != ""},
		{"DISCORD_COMMAND_CHANNEL_ID", c.Discord.CommandChannelID != ""},
		{"RCON_HOST", c.Rcon.Host != ""},
		{"RCON_PORT", c.Rcon.Port != 0},
		{"RCON_PASSWORD", c.Rcon.Password != ""},
	}
	var missing []string
	for _, r := range required {
		if !r.set {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	if c.HTTP.Addr != "" && c.HTTP.JWTSecret == "" {
		return fmt.Errorf("%w: HTTP_JWT_SECRET (required when HTTP_ADDR is set)", ErrMissing)
	}
	return nil
}

// ValidateRcon checks only the remote console settings, for one-shot
// commands that never touch the chat platform
func (c *Config) ValidateRcon() error {
	if c.Rcon.Host == "" || c.Rcon.Port == 0 {
		return fmt.Errorf("%w: RCON_HOST, RCON_PORT", ErrMissing)
	}
	return nil
}
