package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/heuristic"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix prefixes every environment override, e.g. CARO_GAME_TURN_TIMEOUT.
const EnvPrefix = "CARO"

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Logging LoggingConfig `mapstructure:"logging"`
	Seats   SeatsConfig   `mapstructure:"seats"`
}

type ServerConfig struct {
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
}

type WebSocketConfig struct {
	Address        string        `mapstructure:"address"`
	Path           string        `mapstructure:"path"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
}

type GRPCConfig struct {
	Address              string        `mapstructure:"address"`
	MaxConcurrentStreams int           `mapstructure:"max_concurrent_streams"`
	KeepaliveTime        time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout     time.Duration `mapstructure:"keepalive_timeout"`
}

// GameConfig tunes the match engine.
type GameConfig struct {
	BoardSize   int           `mapstructure:"board_size"`
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
	BotDelay    time.Duration `mapstructure:"bot_delay"`
	BotFollowUp time.Duration `mapstructure:"bot_follow_up"`
	// Difficulty applies to automated seats that do not pick one.
	Difficulty string `mapstructure:"difficulty"`
}

// CatalogConfig selects where piece types come from: "file" reads Path, "postgres" reads
// the piece_types table at DatabaseURL, "builtin" uses the compiled-in set.
type CatalogConfig struct {
	Source      string `mapstructure:"source"`
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SeatsConfig struct {
	// BcryptCost is the work factor for hashed seat tokens.
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// Load reads path (optional) and applies defaults and CARO_ environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.websocket.send_buffer", 256)
	v.SetDefault("server.websocket.ping_interval", 30*time.Second)

	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.grpc.keepalive_time", 30*time.Second)
	v.SetDefault("server.grpc.keepalive_timeout", 10*time.Second)

	v.SetDefault("game.board_size", board.DefaultSize)
	v.SetDefault("game.turn_timeout", 120*time.Second)
	v.SetDefault("game.bot_delay", time.Second)
	v.SetDefault("game.bot_follow_up", 300*time.Millisecond)
	v.SetDefault("game.difficulty", heuristic.Normal.String())

	v.SetDefault("catalog.source", "builtin")
	v.SetDefault("catalog.path", "config/pieces.yaml")
	v.SetDefault("catalog.database_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("seats.bcrypt_cost", bcrypt.DefaultCost)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	if c.Game.BoardSize < 5 {
		problems = append(problems, fmt.Sprintf("game.board_size %d is below 5", c.Game.BoardSize))
	}
	if c.Game.TurnTimeout <= 0 {
		problems = append(problems, "game.turn_timeout must be positive")
	}
	if c.Game.BotDelay < 0 || c.Game.BotFollowUp < 0 {
		problems = append(problems, "bot delays must not be negative")
	}
	if _, err := heuristic.ParseDifficulty(c.Game.Difficulty); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Catalog.Source {
	case "builtin":
	case "file":
		if c.Catalog.Path == "" {
			problems = append(problems, "catalog.path is required for source file")
		}
	case "postgres":
		if c.Catalog.DatabaseURL == "" {
			problems = append(problems, "catalog.database_url is required for source postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown catalog.source %q", c.Catalog.Source))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging.level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging.format %q", c.Logging.Format))
	}
	if c.Seats.BcryptCost < bcrypt.MinCost || c.Seats.BcryptCost > bcrypt.MaxCost {
		problems = append(problems, fmt.Sprintf("seats.bcrypt_cost %d outside [%d, %d]", c.Seats.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Server.WebSocket.SendBuffer <= 0 {
		problems = append(problems, "server.websocket.send_buffer must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// DefaultDifficulty parses Game.Difficulty. Validate has already accepted it.
func (c *Config) DefaultDifficulty() heuristic.Difficulty {
	d, err := heuristic.ParseDifficulty(c.Game.Difficulty)
	if err != nil {
		return heuristic.Normal
	}
	return d
}
