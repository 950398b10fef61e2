// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config builds the process configuration from defaults, an
// optional YAML file, environment variables and the .secrets/ directory.
//
// Precedence, highest first: explicitly set viper values (flags), the
// environment, the config file, secrets (for keys still empty), defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// EnvPrefix prefixes every environment variable, with "." in keys
// replaced by "_" (PAPER_EXTRACTOR_FETCH_API_KEY).
const EnvPrefix = "PAPER_EXTRACTOR"

// Secret file names read from the secrets directory.
const (
	SecretNCBIKey   = "ncbi-api-key"
	SecretServerKey = "api-key"
)

// legacyEnv maps configuration keys to the unprefixed variable names
// accepted for compatibility with older deployments.
var legacyEnv = map[string]string{
	"fetch.api_key":     "NCBI_API_KEY",
	"server.api_key":    "API_KEY",
	"annotator.enabled": "ENABLE_ENTITY_EXTRACTION",
	"store.sqlite_path": "DUCKDB_PATH",
	"log.level":         "LOG_LEVEL",
}

// Bind registers defaults and environment lookups on v. Call it before
// ReadInConfig so file values override defaults.
func Bind(v *viper.Viper) error {
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// Load decodes v into a Config, fills empty keys from secrets and
// validates the result.
func Load(v *viper.Viper, secrets map[string]string) (*types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applySecrets(&cfg, secrets)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "yaml"
	dc.Squash = true
}

func applySecrets(cfg *types.Config, secrets map[string]string) {
	if cfg.Fetch.APIKey == "" {
		cfg.Fetch.APIKey = secrets[SecretNCBIKey]
	}
	if cfg.Server.APIKey == "" {
		cfg.Server.APIKey = secrets[SecretServerKey]
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func Validate(cfg *types.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Masked returns a copy of cfg with credentials obscured, for display.
func Masked(cfg types.Config) types.Config {
	cfg.Fetch.APIKey = mask(cfg.Fetch.APIKey)
	cfg.Server.APIKey = mask(cfg.Server.APIKey)
	return cfg
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:2] + "****" + s[len(s)-2:]
	}
}
