// Package config loads credentials and logging settings for the maker.
// Credentials are read from a YAML file (default: ./credentials.yaml) with
// sensitive fields overridable via KALSHI_* environment variables. Strategy
// profiles are a separate extension point (see StrategyStore) because the
// source of truth for "which markets to quote" is deployment-specific.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"marketmaker/pkg/types"
)

// ConfigError marks a fatal startup misconfiguration: missing file or
// malformed YAML. Callers print Error() to stderr and exit non-zero. An
// unknown profile name is not a ConfigError: GetStrategy reports it as
// not found.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// LoggingConfig controls the slog handler built in cmd/marketmaker.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig sets where per-market controller state is persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// Config is the top-level settings document, independent of credentials.
type Config struct {
	DryRun  bool          `mapstructure:"dry_run"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Load reads settings from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MAKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if os.Getenv("MAKER_DRY_RUN") == "true" || os.Getenv("MAKER_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// LoadCredentials reads the credentials file, one block per Environment.
// KALSHI_EMAIL / KALSHI_PASSWORD / KALSHI_ADVANCED_API, when set, override
// every environment's loaded values — convenient for single-environment
// deployments that never touch the file.
func LoadCredentials(path string) (map[types.Environment]types.Credentials, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("credentials file not found: %s", path)}
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("malformed credentials file: %v", err)}
	}

	var raw map[string]struct {
		Email       string `mapstructure:"email"`
		Password    string `mapstructure:"password"`
		AdvancedAPI bool   `mapstructure:"advanced_api"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("malformed credentials file: %v", err)}
	}

	creds := make(map[types.Environment]types.Credentials, len(raw))
	for env, block := range raw {
		creds[types.Environment(env)] = types.Credentials{
			Email:       block.Email,
			Password:    block.Password,
			AdvancedAPI: block.AdvancedAPI,
		}
	}

	if email := os.Getenv("KALSHI_EMAIL"); email != "" {
		for env, c := range creds {
			c.Email = email
			creds[env] = c
		}
	}
	if password := os.Getenv("KALSHI_PASSWORD"); password != "" {
		for env, c := range creds {
			c.Password = password
			creds[env] = c
		}
	}
	if adv := os.Getenv("KALSHI_ADVANCED_API"); adv != "" {
		advanced := adv == "true" || adv == "1"
		for env, c := range creds {
			c.AdvancedAPI = advanced
			creds[env] = c
		}
	}

	return creds, nil
}

// StrategyStore is the extension point named in spec §6: GetStrategies
// returns the profile_name -> StrategyProfile map the scheduler drives.
// Strategy-file parsing itself is a collaborator concern; this type exists
// so cmd/marketmaker has one place to point at whatever that collaborator
// produces (YAML, JSON, a remote config service, …).
type StrategyStore struct {
	profiles map[string]types.StrategyProfile
}

// NewStrategyStore wraps an already-loaded profile map.
func NewStrategyStore(profiles map[string]types.StrategyProfile) *StrategyStore {
	return &StrategyStore{profiles: profiles}
}

// LoadStrategies reads strategy profiles from a YAML file shaped as:
//
//	<profile_name>:
//	  env: demo|prod
//	  markets:
//	    - market_ticker: ...
//	      instant_liquidity_cents: ...
//	      ...
func LoadStrategies(path string) (*StrategyStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("strategy file not found: %s", path)}
	}

	var raw map[string]types.StrategyProfile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("malformed strategy file: %v", err)}
	}

	return &StrategyStore{profiles: raw}, nil
}

// GetStrategies returns the profile_name -> StrategyProfile map.
func (s *StrategyStore) GetStrategies() map[string]types.StrategyProfile {
	return s.profiles
}

// GetStrategy looks up a single profile by name.
func (s *StrategyStore) GetStrategy(name string) (types.StrategyProfile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}
