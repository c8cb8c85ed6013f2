package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Room        RoomConfig        `mapstructure:"room"`
	Game        GameConfig        `mapstructure:"game"`
	Reconnect   ReconnectConfig   `mapstructure:"reconnect"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Log         LogConfig         `mapstructure:"log"`
}

type RoomConfig struct {
	MaxPlayers int `mapstructure:"max_players"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
	// MaxDrops is how many state updates a slow client may miss before it is kicked.
	MaxDrops int `mapstructure:"max_drops"`
}

type GameConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SequenceLength int           `mapstructure:"sequence_length"`
}

type ReconnectConfig struct {
	Window time.Duration `mapstructure:"window"`
}

type LeaderboardConfig struct {
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	MaxLength int           `mapstructure:"max_length"`
	Limit     int           `mapstructure:"limit"`
	Interval  time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")

	v.SetDefault("room.max_players", 5)
	v.SetDefault("room.send_buffer", 32)
	v.SetDefault("room.max_drops", 10)
	v.SetDefault("game.tick_interval", "1s")
	v.SetDefault("game.sweep_interval", "30s")
	v.SetDefault("game.sequence_length", 1000)
	v.SetDefault("reconnect.window", "5m")
	v.SetDefault("leaderboard.dsn", "tetris.db")
	v.SetDefault("leaderboard.timeout", "5s")
	v.SetDefault("chat.max_length", 200)
	v.SetDefault("chat.limit", 5)
	v.SetDefault("chat.interval", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads config/config.<CONFIG_ENV>.yaml when present; TETRIS_* env
// variables override single keys (TETRIS_GAME_TICK_INTERVAL=500ms).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("tetris")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

// ApplyLogging configures the global zerolog logger from cfg.
func (cfg *Config) ApplyLogging() {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Log.JSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
