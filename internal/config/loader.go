package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"agenthook/pkg/logging"
)

const (
	userConfigDir  = ".config/agenthook"
	configFileName = "config.yaml"
	envFileName    = ".env"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "AGENTHOOK_"
)

// osUserHomeDir and environ are variables so tests can replace them.
var (
	osUserHomeDir = os.UserHomeDir
	environ       = os.Environ
)

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// GetDefaultConfigPath returns ~/.config/agenthook.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml and .env from configPath on top of the
// defaults and applies AGENTHOOK_* overrides. A missing file is not an error.
func LoadConfig(configPath string) (Config, error) {
	config := GetDefaultConfig()
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, ConfigurationError{
			FilePath:  configFilePath,
			Source:    "file",
			Category:  "config",
			ErrorType: "io",
			Message:   err.Error(),
			Err:       err,
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, ConfigurationError{
				FilePath:    configFilePath,
				Source:      "file",
				Category:    "config",
				ErrorType:   "parse",
				Message:     fmt.Sprintf("error loading config: %v", err),
				Suggestions: []string{"Check the YAML syntax and field names"},
				Err:         err,
			}
		}
		logging.Info("Config", "Loaded configuration from %s", configFilePath)
	}

	env, err := loadEnv(configPath)
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&config, env); err != nil {
		return Config{}, err
	}
	config.applyAgentDefaults()
	return config, nil
}

// loadEnv merges the .env file, if present, with the process environment.
// The process environment wins.
func loadEnv(configPath string) (map[string]string, error) {
	env := make(map[string]string)

	envFilePath := filepath.Join(configPath, envFileName)
	if _, err := os.Stat(envFilePath); err == nil {
		vars, err := godotenv.Read(envFilePath)
		if err != nil {
			return nil, ConfigurationError{
				FilePath:  envFilePath,
				Source:    "dotenv",
				Category:  "config",
				ErrorType: "parse",
				Message:   err.Error(),
				Err:       err,
			}
		}
		for k, v := range vars {
			env[k] = v
		}
		logging.Debug("Config", "Loaded %d variables from %s", len(vars), envFilePath)
	}

	for _, kv := range environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}

// applyEnv applies AGENTHOOK_* overrides and expands ${VAR} references.
func applyEnv(config *Config, env map[string]string) error {
	errs := NewConfigurationErrorCollection()

	lookup := func(key string) (string, bool) {
		v, ok := env[EnvPrefix+key]
		return v, ok
	}
	invalid := func(key, value, want string, err error) {
		errs.Add(ConfigurationError{
			FilePath:  EnvPrefix + key,
			Source:    "env",
			Category:  "env",
			Field:     EnvPrefix + key,
			ErrorType: "parse",
			Message:   fmt.Sprintf("value %q is not a valid %s", value, want),
			Err:       err,
		})
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				invalid(key, v, "integer", err)
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := cast.ToBoolE(strings.TrimSpace(v))
			if err != nil {
				invalid(key, v, "boolean", err)
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := cast.ToDurationE(strings.TrimSpace(v))
			if err != nil {
				invalid(key, v, "duration", err)
				return
			}
			*dst = d
		}
	}

	setString("WEBHOOK_HOST", &config.Webhook.Host)
	setInt("WEBHOOK_PORT", &config.Webhook.Port)
	setString("WEBHOOK_PATH", &config.Webhook.Path)
	setString("WEBHOOK_URL_TEMPLATE", &config.Webhook.URLTemplate)
	setString("WEBHOOK_PUBLIC_URL", &config.Webhook.PublicURL)
	setString("WEBHOOK_SECRET", &config.Webhook.Secret)
	setString("WEBHOOK_SIGNATURE_HEADER", &config.Webhook.SignatureHeader)
	setBool("WEBHOOK_REQUIRE_SIGNATURE", &config.Webhook.RequireSignature)
	setDuration("WEBHOOK_TIMEOUT", &config.Webhook.Timeout)

	setBool("TUNNEL_ENABLED", &config.Tunnel.Enabled)
	setString("TUNNEL_COMMAND", &config.Tunnel.Command)
	setDuration("TUNNEL_DISCOVERY_TIMEOUT", &config.Tunnel.DiscoveryTimeout)

	setInt("OAUTH_CALLBACK_PORT", &config.OAuth.CallbackPort)
	setString("OAUTH_STORAGE_DIR", &config.OAuth.StorageDir)
	setBool("OAUTH_FILE_MODE", &config.OAuth.FileMode)
	setDuration("OAUTH_TIMEOUT", &config.OAuth.Timeout)

	expand := func(field, value string) string {
		return varPattern.ReplaceAllStringFunc(value, func(ref string) string {
			name := varPattern.FindStringSubmatch(ref)[1]
			v, ok := env[name]
			if !ok {
				errs.Add(ConfigurationError{
					Source:      "env",
					Category:    "env",
					Field:       field,
					ErrorType:   "validation",
					Message:     fmt.Sprintf("variable %q referenced in configuration is not set", name),
					Suggestions: []string{fmt.Sprintf("Export %s or add it to %s", name, envFileName)},
				})
				return ref
			}
			return v
		})
	}

	config.Webhook.Secret = expand("webhook.secret", config.Webhook.Secret)
	for i := range config.Agents {
		a := &config.Agents[i]
		setString("AGENT_"+envKey(a.ID)+"_TOKEN", &a.AuthToken)
		a.AuthToken = expand(fmt.Sprintf("agents[%d].authToken", i), a.AuthToken)
		for name, value := range a.Headers {
			a.Headers[name] = expand(fmt.Sprintf("agents[%d].headers.%s", i, name), value)
		}
	}

	return errs.errOrNil()
}

// envKey turns an agent ID into an environment variable fragment.
func envKey(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
}
