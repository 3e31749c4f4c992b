package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tycoon/internal/economy"
)

const envPrefix = "TYCOON"

type StoreConfig struct {
	Driver      string `mapstructure:"driver" validate:"required,oneof=file postgres sqlite"`
	Dir         string `mapstructure:"dir" validate:"required_if=Driver file"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Driver postgres"`
	SQLitePath  string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
	MaxConns    int32  `mapstructure:"max_conns" validate:"min=1"`
	MinConns    int32  `mapstructure:"min_conns" validate:"min=0,ltefield=MaxConns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

type GameConfig struct {
	// TablesPath replaces the built-in content tables when set.
	TablesPath string        `mapstructure:"tables_path"`
	OfflineCap time.Duration `mapstructure:"offline_cap" validate:"min=0"`
}

type SessionConfig struct {
	TickEvery     time.Duration `mapstructure:"tick_every" validate:"required"`
	AutosaveEvery time.Duration `mapstructure:"autosave_every" validate:"required"`
	SaveRetries   int           `mapstructure:"save_retries" validate:"min=0,max=10"`
	SaveBackoff   time.Duration `mapstructure:"save_backoff" validate:"required"`
	QueuePath     string        `mapstructure:"queue_path" validate:"required"`
	ReplayEvery   time.Duration `mapstructure:"replay_every" validate:"required"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`
	WSRate         float64       `mapstructure:"ws_rate" validate:"gt=0"`
	WSBurst        int           `mapstructure:"ws_burst" validate:"min=1"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" validate:"required"`
	Store          StoreConfig   `mapstructure:"store"`
	Log            LogConfig     `mapstructure:"log"`
	Game           GameConfig    `mapstructure:"game"`
	Session        SessionConfig `mapstructure:"session"`
}

type CLIConfig struct {
	APIBaseURL string        `mapstructure:"api_base_url" validate:"required,url"`
	Store      StoreConfig   `mapstructure:"store"`
	Log        LogConfig     `mapstructure:"log"`
	Game       GameConfig    `mapstructure:"game"`
	Session    SessionConfig `mapstructure:"session"`
}

// HomeDir is where the CLI keeps saves, the retry queue and the profile.
func HomeDir() string {
	if v := strings.TrimSpace(os.Getenv("TYCOON_HOME")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tycoon"
	}
	return filepath.Join(home, ".tycoon")
}

func setShared(v *viper.Viper) {
	home := HomeDir()
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", filepath.Join(home, "saves"))
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", filepath.Join(home, "tycoon.db"))
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("game.tables_path", "")
	v.SetDefault("game.offline_cap", 0)
	v.SetDefault("session.tick_every", "200ms")
	v.SetDefault("session.autosave_every", "10s")
	v.SetDefault("session.save_retries", 3)
	v.SetDefault("session.save_backoff", "250ms")
	v.SetDefault("session.queue_path", filepath.Join(home, "queue.json"))
	v.SetDefault("session.replay_every", "1m")
}

func newViper(path string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tycoon")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(HomeDir())
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setShared(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		v.Set("store.database_url", url)
	}
	return v, nil
}

func LoadServer(path string) (ServerConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return ServerConfig{}, err
	}
	v.SetDefault("addr", ":8080")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("ws_rate", 20)
	v.SetDefault("ws_burst", 40)
	v.SetDefault("idle_timeout", "10m")
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		v.Set("addr", port)
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadCLI(path string) (CLIConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return CLIConfig{}, err
	}
	v.SetDefault("api_base_url", "http://localhost:8080")

	var cfg CLIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg any) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", strings.ToLower(e.Namespace()), e.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Catalog loads the content tables: the built-in set, or TablesPath when
// set, with OfflineCap overriding the tables' cap if positive.
func (c GameConfig) Catalog() (*economy.Catalog, error) {
	cat, err := economy.Default()
	if path := strings.TrimSpace(c.TablesPath); path != "" {
		raw, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("read tables: %w", rerr)
		}
		cat, err = economy.Parse(raw)
	}
	if err != nil {
		return nil, err
	}
	if c.OfflineCap > 0 {
		t := cat.Tuning
		t.OfflineCap = c.OfflineCap
		cat = cat.WithTuning(t)
	}
	return cat, nil
}
