package config

import (
	"strings"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CERTIFY_CHAIN_RPC_URL
const EnvPrefix = "CERTIFY"

const (
	BackendRPC    = "rpc"
	BackendMemory = "memory"
)

// Config is the service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Proof     ProofConfig     `mapstructure:"proof"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ChainConfig struct {
	ID              int64  `mapstructure:"id"`
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
}

// LedgerConfig selects and tunes the ledger backend. Seed is only used by
// the memory backend.
type LedgerConfig struct {
	Backend        string        `mapstructure:"backend"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxParallel    int           `mapstructure:"max_parallel"`
	MaxCourses     int           `mapstructure:"max_courses"`
	CourseCacheTTL time.Duration `mapstructure:"course_cache_ttl"`
	Seed           []SeedCourse  `mapstructure:"seed"`
}

// SeedCourse is a course created at startup in memory mode, minted to holders.
type SeedCourse struct {
	Code             string   `mapstructure:"code"`
	Name             string   `mapstructure:"name"`
	ImageURI         string   `mapstructure:"image_uri"`
	ValidityDuration uint64   `mapstructure:"validity_duration"`
	Holders          []string `mapstructure:"holders"`
}

type ChallengeConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	MaxSkew   time.Duration `mapstructure:"max_skew"`
	SingleUse bool          `mapstructure:"single_use"`
}

// ProofConfig enables shareable proofs. SigningKey is a PEM P-256 key; an
// empty key signs with a key generated at startup.
type ProofConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	SigningKey string        `mapstructure:"signing_key"`
}

// RedisConfig enables the Redis replay guard and event stream when URL is set.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("chain.id", 11155111)
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.contract_address", "")

	v.SetDefault("ledger.backend", BackendRPC)
	v.SetDefault("ledger.timeout", 15*time.Second)
	v.SetDefault("ledger.max_parallel", 8)
	v.SetDefault("ledger.max_courses", 10000)
	v.SetDefault("ledger.course_cache_ttl", 10*time.Minute)

	v.SetDefault("challenge.ttl", 5*time.Minute)
	v.SetDefault("challenge.max_skew", 30*time.Second)
	v.SetDefault("challenge.single_use", false)

	v.SetDefault("proof.enabled", true)
	v.SetDefault("proof.ttl", 24*time.Hour)
	v.SetDefault("proof.signing_key", "")

	v.SetDefault("redis.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads defaults, then the optional file at path, then CERTIFY_*
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "couldn't read the config file '%s'", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal the configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot fix.
func (c *Config) Validate() error {
	if _, err := eth.ParseAddress(c.Chain.ContractAddress); err != nil {
		return errors.Wrap(err, "chain.contract_address")
	}

	switch c.Ledger.Backend {
	case BackendRPC:
		if c.Chain.RPCURL == "" {
			return errors.Wrap(core.ErrInvalidArgument, "chain.rpc_url is required for the rpc ledger")
		}
	case BackendMemory:
		for i, seed := range c.Ledger.Seed {
			if _, err := eth.ParseAddresses(seed.Holders); err != nil {
				return errors.Wrapf(err, "ledger.seed[%d].holders", i)
			}
		}
	default:
		return errors.Wrapf(core.ErrInvalidArgument, "ledger.backend must be %q or %q, got %q", BackendRPC, BackendMemory, c.Ledger.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Wrapf(core.ErrInvalidArgument, "server.port %d out of range", c.Server.Port)
	}
	if c.Ledger.Timeout <= 0 {
		return errors.Wrap(core.ErrInvalidArgument, "ledger.timeout must be positive")
	}
	if c.Ledger.MaxCourses < 0 {
		return errors.Wrap(core.ErrInvalidArgument, "ledger.max_courses must not be negative")
	}
	if c.Challenge.TTL < 0 || c.Challenge.MaxSkew < 0 {
		return errors.Wrap(core.ErrInvalidArgument, "challenge durations must not be negative")
	}
	return nil
}
