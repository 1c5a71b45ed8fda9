// Package config loads the server configuration from the environment and
// an optional round durations file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mcdev12/studysprint/go/internal/dbconfig"
	"github.com/mcdev12/studysprint/go/internal/studysession/guard"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the server configuration.
type Config struct {
	Port      string `env:"STUDYSPRINT_PORT" envDefault:"8080"`
	LogLevel  string `env:"STUDYSPRINT_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"STUDYSPRINT_LOG_PRETTY" envDefault:"true"`

	Store      string          `env:"STUDYSPRINT_STORE" envDefault:"memory"`
	SQLitePath string          `env:"STUDYSPRINT_SQLITE_PATH" envDefault:"studysprint.db"`
	DB         dbconfig.Config `envPrefix:"STUDYSPRINT_"`

	// NATSURL enables JetStream fan-out between instances when set.
	NATSURL string `env:"STUDYSPRINT_NATS_URL"`

	JWTSecret   string `env:"STUDYSPRINT_JWT_SECRET,required,notEmpty"`
	JWTIssuer   string `env:"STUDYSPRINT_JWT_ISSUER" envDefault:"studysprint"`
	JWTAudience string `env:"STUDYSPRINT_JWT_AUDIENCE"`

	ActorIdleTimeout time.Duration `env:"STUDYSPRINT_ACTOR_IDLE_TIMEOUT" envDefault:"5m"`
	ActorMailbox     int           `env:"STUDYSPRINT_ACTOR_MAILBOX" envDefault:"64"`

	DurationsFile string `env:"STUDYSPRINT_DURATIONS_FILE"`
	// Durations is filled from DurationsFile, or the defaults.
	Durations guard.Durations
}

// durationsFile is the YAML layout of DurationsFile.
type durationsFile struct {
	Rounds guard.Durations `yaml:"rounds"`
}

// Load reads .env if present, then the environment, then the durations
// file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return Config{}, fmt.Errorf("STUDYSPRINT_STORE must be one of memory, sqlite, postgres; got %q", cfg.Store)
	}

	cfg.Durations = guard.DefaultDurations()
	if cfg.DurationsFile != "" {
		d, err := LoadDurations(cfg.DurationsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Durations = d
	}
	return cfg, nil
}

// LoadDurations reads round phase durations from a YAML file. Phases the
// file leaves out keep their defaults; a zero duration means no deadline.
func LoadDurations(path string) (guard.Durations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return guard.Durations{}, fmt.Errorf("failed to read durations file: %w", err)
	}

	file := durationsFile{Rounds: guard.DefaultDurations()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return guard.Durations{}, fmt.Errorf("failed to parse durations file: %w", err)
	}
	d := file.Rounds
	if d.Voting < 0 || d.Discussing < 0 || d.Revoting < 0 || d.Explaining < 0 {
		return guard.Durations{}, fmt.Errorf("round durations must not be negative")
	}
	return d, nil
}
