package config

import (
	"fmt"
	"strings"
)

const (
	// EnvPrefix is prepended to every settings key when reading the environment.
	EnvPrefix = "OPENPROJECT"

	// DefaultEnvFile is the dotenv file consulted when no other file is given.
	DefaultEnvFile = ".env"

	DefaultURL          = "http://77.232.130.90:8085"
	DefaultQueryIDBugs  = 1390 // "Баги" column
	DefaultQueryIDReady = 1378 // "Готово к разработке" column
	DefaultAIDevField   = "customField2"
)

// Settings keys, as used by viper and as the suffix of the environment variables.
const (
	keyURL          = "url"
	keyAPIKey       = "api_key"
	keyQueryIDBugs  = "query_id_bugs"
	keyQueryIDReady = "query_id_ready"
	keyAIDevField   = "ai_dev_field"
)

// Settings holds the OpenProject connection settings.
type Settings struct {
	// URL is the base URL of the OpenProject instance, without the /api/v3 prefix.
	URL string `mapstructure:"url" validate:"required,url"`

	// APIKey is the personal access token sent as the basic auth password.
	APIKey string `mapstructure:"api_key"`

	// QueryIDBugs and QueryIDReady identify the saved queries that back the
	// two board columns tasks are collected from.
	QueryIDBugs  int `mapstructure:"query_id_bugs" validate:"gt=0"`
	QueryIDReady int `mapstructure:"query_id_ready" validate:"gt=0"`

	// AIDevField is the custom field key (e.g. "customField2") flagging a
	// work package as ready for AI development.
	AIDevField string `mapstructure:"ai_dev_field" validate:"required"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		URL:          DefaultURL,
		QueryIDBugs:  DefaultQueryIDBugs,
		QueryIDReady: DefaultQueryIDReady,
		AIDevField:   DefaultAIDevField,
	}
}

// Load reads settings from the environment, falling back to envFile and then
// to the defaults. A missing envFile is not an error; pass "" to skip it.
func Load(envFile string) (Settings, error) {
	l, err := NewLoader(envFile)
	if err != nil {
		return Settings{}, err
	}
	return l.Settings()
}

// Settings binds the OPENPROJECT_* keys and decodes them.
func (l *Loader) Settings() (Settings, error) {
	def := Default()
	l.Bind(keyURL, def.URL, envName(keyURL))
	l.Bind(keyAPIKey, def.APIKey, envName(keyAPIKey))
	l.Bind(keyQueryIDBugs, def.QueryIDBugs, envName(keyQueryIDBugs))
	l.Bind(keyQueryIDReady, def.QueryIDReady, envName(keyQueryIDReady))
	l.Bind(keyAIDevField, def.AIDevField, envName(keyAIDevField))

	var s Settings
	if err := l.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// Validate checks the settings and reports every invalid field at once.
func (s Settings) Validate() error {
	if err := ValidateStruct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// HasAPIKey reports whether an API key was configured.
func (s Settings) HasAPIKey() bool {
	return s.APIKey != ""
}
