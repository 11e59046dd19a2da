// Package config loads server configuration from a file, with environment
// variables overriding file values (dots in keys map to underscores, so
// HTTP_PORT overrides http.port).
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load fills config, which must be a pointer to a struct, from the given
// file. Values already set on the struct act as defaults.
func Load(file string, config any) error {
	v := viper.New()

	// Seed viper with the struct's current values so zero-value fields in
	// the file fall back to the compiled defaults.
	defaults := make(map[string]any)
	if err := mapstructure.Decode(config, &defaults); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return fmt.Errorf("merge defaults: %w", err)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %w", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	return nil
}
