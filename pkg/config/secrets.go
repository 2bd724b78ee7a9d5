package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var secretsExtensions = []string{".yaml", ".yml", ".json", ".toml"}

// LoadWithSecrets is Load plus an optional secrets file, for example
//
//	auth:
//	  jwt_secret: change-me
//	aws:
//	  secret_access_key: ...
//
// merged above the config file and below the environment. The file is
// <PREFIX>_SECRETS_FILE when set, else secrets.<ext> next to the config
// file, else secrets.{yaml,yml,json,toml} in the working directory.
//
// The second result holds only what the secrets file set, so that printing
// the configuration can mask those values.
func (l *ViperLoader) LoadWithSecrets() (*Config, *Config, error) {
	return l.load(true)
}

func (l *ViperLoader) mergeSecrets(v *viper.Viper) (*Config, error) {
	path, err := l.secretsFile()
	if err != nil || path == "" {
		return nil, err
	}

	sv := viper.New()
	sv.SetConfigFile(path)
	if err := sv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}
	var secrets Config
	if err := sv.Unmarshal(&secrets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secrets file %s: %w", path, err)
	}
	if err := v.MergeConfigMap(sv.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to merge secrets: %w", err)
	}
	return &secrets, nil
}

// secretsFile returns "" when no secrets file exists. An explicitly named
// file must exist.
func (l *ViperLoader) secretsFile() (string, error) {
	env := l.prefixedEnv("SECRETS_FILE")
	if explicit, ok := os.LookupEnv(env); ok {
		explicit = strings.TrimSpace(explicit)
		if explicit == "" {
			return "", fmt.Errorf("%s is set but empty", env)
		}
		if err := regularFile(explicit); err != nil {
			return "", fmt.Errorf("%s: %w", env, err)
		}
		return explicit, nil
	}

	var candidates []string
	if l.configFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile)))
	}
	for _, ext := range secretsExtensions {
		candidates = append(candidates, "secrets"+ext)
	}
	for _, c := range candidates {
		if regularFile(c) == nil {
			return c, nil
		}
	}
	return "", nil
}

func regularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("secrets file %s is not accessible: %w", path, err)
	}
	if info.IsDir() {
		return errors.New("secrets file " + path + " is a directory")
	}
	return nil
}
