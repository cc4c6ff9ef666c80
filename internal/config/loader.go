package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Loader resolves configuration keys from environment variables, then from
// an optional dotenv file, then from defaults. Settings and the
// instrumentation config are both read through one Loader.
type Loader struct {
	v    *viper.Viper
	file *viper.Viper // nil when no env file was read
}

// NewLoader creates a Loader. A missing envFile is ignored; pass "" to skip it.
func NewLoader(envFile string) (*Loader, error) {
	l := &Loader{v: viper.New()}
	if envFile == "" {
		return l, nil
	}

	file := viper.New()
	file.SetConfigFile(envFile)
	file.SetConfigType("env")
	if err := file.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}
	l.file = file
	return l, nil
}

// Bind registers key with its default and the environment variables it is
// read from. The first non-empty variable wins; the same names are looked up
// in the env file when none is set.
func (l *Loader) Bind(key string, def any, envs ...string) {
	l.v.SetDefault(key, def)
	if l.file != nil {
		for _, env := range envs {
			if name := strings.ToLower(env); l.file.IsSet(name) {
				l.v.SetDefault(key, l.file.Get(name))
				break
			}
		}
	}
	if len(envs) > 0 {
		_ = l.v.BindEnv(append([]string{key}, envs...)...)
	}
}

// Decode unmarshals the bound keys into out, a pointer to a struct with
// mapstructure tags, and validates it.
func (l *Loader) Decode(out any) error {
	if err := l.v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return ValidateStruct(out)
}

var validate = validator.New()

// ValidateStruct checks the validate tags of s and reports every invalid
// field at once.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required but was not set", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s has invalid value %v: %s", fe.Field(), fe.Value(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
