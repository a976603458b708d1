package sandboxjscmd

import (
	"os"

	"github.com/mstoykov/envconfig"
	"gopkg.in/yaml.v3"
)

// config is the GlobalOptions-style struct every subcommand reads from
// (spec §4.K): defaults, then an optional YAML file, then SANDBOXJS_*
// env vars, then CLI flags — each layer overriding the last, the same
// precedence order the teacher's cmd/state.GlobalOptions resolves
// through (defaults -> env -> flags), with a config file layer added
// ahead of env per spec §4.K.
type config struct {
	ConfigFilePath string `yaml:"-" envconfig:"SANDBOXJS_CONFIG"`
	FeaturePreset  string `yaml:"featurePreset" envconfig:"SANDBOXJS_FEATURE_PRESET"`
	NoColor        bool   `yaml:"noColor" envconfig:"SANDBOXJS_NO_COLOR"`
	LogFormat      string `yaml:"logFormat" envconfig:"SANDBOXJS_LOG_FORMAT"`
	Verbose        bool   `yaml:"verbose" envconfig:"SANDBOXJS_VERBOSE"`
	SanitizeErrors bool   `yaml:"sanitizeErrors" envconfig:"SANDBOXJS_SANITIZE_ERRORS"`
}

func defaultConfig() config {
	return config{
		FeaturePreset:  "",
		LogFormat:      "text",
		SanitizeErrors: true,
	}
}

// loadConfig resolves defaults -> YAML file (if present) -> environment
// variables, in that order; CLI flags are applied afterward by the
// caller, since cobra only knows which flags were explicitly set once
// the command runs.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}
	if err := envconfig.Process("SANDBOXJS", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
