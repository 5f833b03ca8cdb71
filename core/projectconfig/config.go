package projectconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

const DefaultPath = ".gwdeck/config.yaml"

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	Solver  SolverDefaults  `yaml:"solver"`
	Write   WriteDefaults   `yaml:"write"`
	Cache   CacheDefaults   `yaml:"cache"`
	Log     LogDefaults     `yaml:"log"`
	Runfile RunfileDefaults `yaml:"runfile"`
}

type SolverDefaults struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args" validate:"dive,required"`
	Timeout    string   `yaml:"timeout"`
}

type WriteDefaults struct {
	Directory string `yaml:"directory"`
	Seawat    bool   `yaml:"seawat"`
	Workers   int    `yaml:"workers" validate:"gte=0,lte=256"`
}

type CacheDefaults struct {
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

type LogDefaults struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// RunfileDefaults overrides run file settings for every deck written from
// this project.
type RunfileDefaults struct {
	Settings map[string]any `yaml:"settings"`
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	if err := configuration.Validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

// Validate checks field constraints and that the solver timeout parses.
func (configuration Config) Validate() error {
	if err := validate.Struct(configuration); err != nil {
		return fmt.Errorf("validate project config: %w", err)
	}
	if _, err := configuration.Solver.TimeoutDuration(); err != nil {
		return fmt.Errorf("validate project config: %w", err)
	}
	return nil
}

// TimeoutDuration parses the solver timeout. An empty timeout is zero, which
// means no limit.
func (defaults SolverDefaults) TimeoutDuration() (time.Duration, error) {
	if defaults.Timeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(defaults.Timeout)
	if err != nil {
		return 0, fmt.Errorf("solver.timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("solver.timeout must not be negative")
	}
	return timeout, nil
}

func (configuration *Config) normalize() {
	configuration.Solver.Executable = strings.TrimSpace(configuration.Solver.Executable)
	configuration.Solver.Timeout = strings.TrimSpace(configuration.Solver.Timeout)
	for i, arg := range configuration.Solver.Args {
		configuration.Solver.Args[i] = strings.TrimSpace(arg)
	}
	configuration.Write.Directory = strings.TrimSpace(configuration.Write.Directory)
	configuration.Cache.Dir = strings.TrimSpace(configuration.Cache.Dir)
	configuration.Log.Level = strings.ToLower(strings.TrimSpace(configuration.Log.Level))
	configuration.Log.Format = strings.ToLower(strings.TrimSpace(configuration.Log.Format))
	if len(configuration.Runfile.Settings) > 0 {
		settings := make(map[string]any, len(configuration.Runfile.Settings))
		for key, value := range configuration.Runfile.Settings {
			settings[strings.ToLower(strings.TrimSpace(key))] = value
		}
		configuration.Runfile.Settings = settings
	}
}
