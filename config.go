package structured

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Options collects the framework-wide behavior switches, passed
// explicitly into the components that consume them.
type Options struct {
	// StochasticResampling makes class rebalancing draw rows by
	// uniform random sampling with replacement instead of
	// deterministic cyclic repetition.
	StochasticResampling bool `yaml:"stochastic_resampling"`
	// TrainerVerbose asks the external sequence trainer for verbose
	// logging; callers consult it when constructing their trainer.
	TrainerVerbose bool `yaml:"trainer_verbose"`
}

// TrainerConfig configures one CRF training run.
type TrainerConfig struct {
	// Algorithm names the external trainer's training algorithm.
	Algorithm string `yaml:"algorithm"`
	// Params maps hyperparameter names to values, passed through to
	// the trainer untouched.
	Params map[string]any `yaml:"params"`
	// ModelPath is where the trainer persists the opaque model file.
	ModelPath string `yaml:"model_path"`
	// SaveModelInfo captures the tagger's model diagnostics after
	// training completes.
	SaveModelInfo bool `yaml:"save_model_info"`
}

// LoadOptions reads Options from a YAML file.
func LoadOptions(path string) (*Options, error) {
	var options Options
	if err := loadYAML(path, &options); err != nil {
		return nil, err
	}
	return &options, nil
}

// LoadTrainerConfig reads a TrainerConfig from a YAML file.
func LoadTrainerConfig(path string) (*TrainerConfig, error) {
	var config TrainerConfig
	if err := loadYAML(path, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func loadYAML(path string, value any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("unable to parse config %s: %w", path, err)
	}
	return nil
}
