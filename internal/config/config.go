package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// one entry per bot identity; the order fixes each identity's index
	BotTokens []string `env:"BOT_TOKENS,required" envSeparator:","`
	// indexes of the identities this process logs in; empty means all of them
	LocalIdentities []int    `env:"LOCAL_IDENTITIES" envSeparator:","`
	DeveloperIDs    []string `env:"DEVELOPER_IDS" envSeparator:","`
	DefaultPrefix   string   `env:"DEFAULT_PREFIX" envDefault:"!"`

	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	LavalinkNodeName string `env:"LAVALINK_NODE_NAME" envDefault:"main"`
	LavalinkAddress  string `env:"LAVALINK_ADDRESS" envDefault:"localhost:2333"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD" envDefault:"youshallnotpass"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE" envDefault:"false"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	// empty keeps the session registry in memory, which only works when one
	// process runs every identity
	RedisURL    string        `env:"REDIS_URL"`
	RedisPrefix string        `env:"REDIS_PREFIX" envDefault:"kumaswarm"`
	SessionTTL  time.Duration `env:"SESSION_TTL" envDefault:"2m"`

	StatusAddr string `env:"STATUS_ADDR"`

	CommandRate   float64       `env:"COMMAND_RATE" envDefault:"1"`
	CommandBurst  int           `env:"COMMAND_BURST" envDefault:"3"`
	SearchTimeout time.Duration `env:"SEARCH_TIMEOUT" envDefault:"15s"`

	EnableSponsorBlock bool `env:"ENABLE_SPONSORBLOCK" envDefault:"false"`
	// how long to stop asking SponsorBlock after it times out
	SponsorBlockBackoff time.Duration `env:"SPONSORBLOCK_BACKOFF" envDefault:"5m"`

	BotStatus   string `env:"BOT_STATUS" envDefault:"online"` // online/dnd/idle
	BotActivity string `env:"BOT_ACTIVITY" envDefault:"music"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads the environment, after loading envFiles when given. A missing
// default .env is not an error.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	tokens := c.BotTokens[:0]
	for _, t := range c.BotTokens {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	c.BotTokens = tokens
	if len(c.BotTokens) == 0 {
		return ErrConfig("BOT_TOKENS requires at least one token")
	}
	seen := make(map[int]bool)
	for _, i := range c.LocalIdentities {
		if i < 0 || i >= len(c.BotTokens) {
			return ErrConfig(fmt.Sprintf("LOCAL_IDENTITIES: index %d out of range (0-%d)", i, len(c.BotTokens)-1))
		}
		if seen[i] {
			return ErrConfig(fmt.Sprintf("LOCAL_IDENTITIES: index %d listed twice", i))
		}
		seen[i] = true
	}
	if len(c.LocalIdentities) > 0 && len(c.LocalIdentities) < len(c.BotTokens) && c.RedisURL == "" {
		return ErrConfig("REDIS_URL is required when this process runs only part of the pool")
	}
	if c.DefaultPrefix == "" {
		return ErrConfig("DEFAULT_PREFIX cannot be empty")
	}
	if c.CommandBurst < 1 {
		c.CommandBurst = 1
	}
	return nil
}

// Local returns the identity indexes this process runs.
func (c *Config) Local() []int {
	if len(c.LocalIdentities) > 0 {
		return c.LocalIdentities
	}
	out := make([]int, len(c.BotTokens))
	for i := range out {
		out[i] = i
	}
	return out
}

func (c *Config) IsDeveloper(userID string) bool {
	for _, id := range c.DeveloperIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "kumaswarm.db")
}

func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
