package feed

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Dataset kinds accepted in run files.
const (
	DatasetCIFAR10   = "cifar10"
	DatasetSynthetic = "synthetic"
)

// configValidate is the validator instance for run configuration.
var configValidate = validator.New()

// PolicyConfig is the run-file form of an arrival policy.
// Only the parameters of the selected Kind are read.
type PolicyConfig struct {
	Kind string `yaml:"kind" validate:"required,oneof=constant random increasing"`
	Size int    `yaml:"size,omitempty"`
	Low  int    `yaml:"low,omitempty"`
	High int    `yaml:"high,omitempty"`
	Step int    `yaml:"step,omitempty"`
}

// Build converts the run-file form into a typed ArrivalPolicy.
func (p PolicyConfig) Build() (ArrivalPolicy, error) {
	switch p.Kind {
	case PolicyConstant:
		return NewConstant(p.Size)
	case PolicyRandom:
		return NewRandomRange(p.Low, p.High)
	case PolicyIncreasing:
		return NewIncreasing(p.Step)
	default:
		return nil, fmt.Errorf("%w: unknown policy kind %q; valid: constant, random, increasing", ErrInvalidConfig, p.Kind)
	}
}

// DatasetConfig selects the sample loader.
type DatasetConfig struct {
	Kind       string `yaml:"kind" validate:"required,oneof=cifar10 synthetic"`
	Path       string `yaml:"path,omitempty" validate:"required_if=Kind cifar10"`
	LabelNames bool   `yaml:"label_names,omitempty"`
	Size       int    `yaml:"size,omitempty" validate:"gte=0"`
}

// RunConfig is everything a run needs, fixed at start.
type RunConfig struct {
	Policy      PolicyConfig  `yaml:"policy"`
	Interval    time.Duration `yaml:"interval" validate:"gte=0s"`
	Stop        int           `yaml:"stop" validate:"gt=0"`
	Seed        *int64        `yaml:"seed,omitempty"`
	Env         string        `yaml:"env" validate:"required"`
	OutputDir   string        `yaml:"output_dir" validate:"required"`
	TrackerPath string        `yaml:"tracker_path" validate:"required"`
	ArchiveDir  string        `yaml:"archive_dir,omitempty"`
	Dataset     DatasetConfig `yaml:"dataset"`
}

// DefaultRunConfig returns the stock producer settings: an increasing policy
// with step 5, a 5s interval and 16 ticks.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Policy:      PolicyConfig{Kind: PolicyIncreasing, Size: 50, Low: 50, High: 200, Step: 5},
		Interval:    5 * time.Second,
		Stop:        16,
		Env:         DefaultEnv(),
		OutputDir:   "streams/input/",
		TrackerPath: "logs/tracker.json",
		ArchiveDir:  "streams/archive",
		Dataset:     DatasetConfig{Kind: DatasetCIFAR10, Path: "cifar-10-batches-bin"},
	}
}

// DefaultEnv returns the environment tag written to tracker records.
func DefaultEnv() string {
	if runtime.GOOS == "darwin" {
		return "mac_cpu"
	}
	return runtime.GOOS + "_cpu"
}

// LoadRunFile reads a YAML run file on top of DefaultRunConfig.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadRunFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}
	cfg := DefaultRunConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing run file %s: %v", ErrInvalidConfig, path, err)
	}
	return &cfg, nil
}

// Validate checks field constraints and builds the policy to surface its errors.
func (c *RunConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	policy, err := c.Policy.Build()
	if err != nil {
		return err
	}
	return CheckHorizon(policy, c.Stop)
}
