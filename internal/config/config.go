package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AIRWAVE"

// Config is the relay server configuration.
type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	Secret         string        `mapstructure:"secret"`
	LogLevel       string        `mapstructure:"log_level"`
	JoinRateLimit  int           `mapstructure:"join_rate_limit"`
	JoinRateWindow time.Duration `mapstructure:"join_rate_window"`
	ICEServers     []string      `mapstructure:"ice_servers"`
}

// ListenerConfig is the headless listener client configuration.
type ListenerConfig struct {
	ServerURL   string        `mapstructure:"server_url"`
	Codecs      []string      `mapstructure:"codecs"`
	HighWater   time.Duration `mapstructure:"high_water"`
	LowWater    time.Duration `mapstructure:"low_water"`
	MaxPending  int           `mapstructure:"max_pending"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MaxBuffered time.Duration `mapstructure:"max_buffered"`
	Output      string        `mapstructure:"output"`
	Broadcaster string        `mapstructure:"broadcaster"`
	LogLevel    string        `mapstructure:"log_level"`
}

var ErrInvalid = errors.New("invalid config")

func newViper(name string) *viper.Viper {
	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("load .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/%s.%s.yaml", name, env))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper) {
	if err := v.ReadInConfig(); err != nil {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("config file not found, using defaults")
		return
	}
	log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
}

func Load() (*Config, error) {
	v := newViper("config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "airwave-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("join_rate_limit", 20)
	v.SetDefault("join_rate_window", "10s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	readFile(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d", ErrInvalid, cfg.Port)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("server config")
	return &cfg, nil
}

// ListenerFlags declares the listener command line. Flags override the file
// and the environment when set.
func ListenerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("listener", pflag.ContinueOnError)
	fs.String("server-url", "ws://localhost:8080/api/ws", "relay WebSocket URL")
	fs.StringSlice("codecs", nil, "codec candidates in preference order")
	fs.Duration("high-water", 10*time.Second, "trim when the sink holds more than this")
	fs.Duration("low-water", 5*time.Second, "media kept after a trim")
	fs.Int("max-pending", 100, "frames queued while no sink is open")
	fs.Duration("retry-delay", 100*time.Millisecond, "resume delay after a decode error or drop")
	fs.Duration("max-buffered", 15*time.Second, "sink quota")
	fs.StringP("output", "o", "", "raw PCM output file (empty discards)")
	fs.StringP("broadcaster", "b", "", "broadcaster id or name to tune in to")
	fs.String("log-level", "info", "log level")
	return fs
}

// LoadListener merges defaults, config/listener.<env>.yaml, AIRWAVE_*
// variables and the parsed flags.
func LoadListener(flags *pflag.FlagSet) (*ListenerConfig, error) {
	v := newViper("listener")

	v.SetDefault("server_url", "ws://localhost:8080/api/ws")
	v.SetDefault("codecs", []string{})
	v.SetDefault("high_water", "10s")
	v.SetDefault("low_water", "5s")
	v.SetDefault("max_pending", 100)
	v.SetDefault("retry_delay", "100ms")
	v.SetDefault("max_buffered", "15s")
	v.SetDefault("log_level", "info")

	readFile(v)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg ListenerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse listener config: %w", err)
	}
	if cfg.LowWater <= 0 || cfg.HighWater <= cfg.LowWater {
		return nil, fmt.Errorf("%w: high_water %s must exceed low_water %s", ErrInvalid, cfg.HighWater, cfg.LowWater)
	}
	if cfg.MaxBuffered > 0 && cfg.MaxBuffered < cfg.HighWater {
		return nil, fmt.Errorf("%w: max_buffered %s below high_water %s", ErrInvalid, cfg.MaxBuffered, cfg.HighWater)
	}
	return &cfg, nil
}

// ParseLevel maps a config level to zerolog, falling back to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
