package strategy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config represents a strategy configuration entry in YAML.
type Config struct {
	Name       string                 `yaml:"name"`
	Type       string                 `yaml:"type"`
	Parameters map[string]interface{} `yaml:"parameters"`
	IsActive   bool                   `yaml:"is_active"`
}

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// Types lists the bundled strategy types
func Types() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var builders = map[string]func(params map[string]interface{}) (Strategy, error){
	"tick_diff": func(params map[string]interface{}) (Strategy, error) {
		p := DefaultTickDiffParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewTickDiff(p), nil
	},
	"slope": func(params map[string]interface{}) (Strategy, error) {
		p := DefaultSlopeParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewSlope(p), nil
	},
	"candle_pattern": func(params map[string]interface{}) (Strategy, error) {
		p := DefaultCandlePatternParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.Mode != "follow" && p.Mode != "fade" {
			return nil, fmt.Errorf("candle_pattern: mode must be follow or fade, got %q", p.Mode)
		}
		return NewCandlePattern(p), nil
	},
	"markov": func(params map[string]interface{}) (Strategy, error) {
		p := DefaultMarkovParams()
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewMarkov(p), nil
	},
}

// Build creates a strategy of the given type; params override its defaults
func Build(typ string, params map[string]interface{}) (Strategy, error) {
	build, ok := builders[typ]
	if !ok {
		return nil, fmt.Errorf("unknown strategy type %q", typ)
	}
	return build(params)
}

// decodeParams overlays params onto the defaults already in out
func decodeParams(params map[string]interface{}, out interface{}) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("strategy parameters: %w", err)
	}
	return nil
}

// LoadConfig reads strategies from a YAML file. A missing file yields one
// default entry per bundled type.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfigs(), nil
	}
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for _, cfg := range file.Strategies {
		if _, ok := builders[cfg.Type]; !ok {
			return nil, fmt.Errorf("strategy %s: unknown type %q", cfg.Name, cfg.Type)
		}
	}
	return file.Strategies, nil
}

// DefaultConfigs returns one entry per bundled type, tick_diff active
func DefaultConfigs() []Config {
	var out []Config
	for _, typ := range Types() {
		out = append(out, Config{Name: typ, Type: typ, IsActive: typ == "tick_diff"})
	}
	return out
}

// Select builds the entry called name (matched by name, then type), or the
// first active entry when name is empty
func Select(configs []Config, name string) (Strategy, error) {
	for _, cfg := range configs {
		if name == "" && cfg.IsActive {
			return Build(cfg.Type, cfg.Parameters)
		}
		if name != "" && cfg.Name == name {
			return Build(cfg.Type, cfg.Parameters)
		}
	}
	if name != "" {
		for _, cfg := range configs {
			if cfg.Type == name {
				return Build(cfg.Type, cfg.Parameters)
			}
		}
		if _, ok := builders[name]; ok {
			return Build(name, nil)
		}
		return nil, fmt.Errorf("no strategy named %q", name)
	}
	return nil, errors.New("no active strategy configured")
}
