// Package config defines the scenario configuration of a simulation run.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents a complete scenario loaded from YAML.
type Config struct {
	Simulation struct {
		TotalRounds int     `yaml:"total_rounds"` // 0 runs until a battery is exhausted
		Frequency   float64 `yaml:"frequency"`    // rounds per simulated second
		Seed        uint64  `yaml:"seed"`
		Pacing      string  `yaml:"pacing"`   // accelerated | real_time
		Protocol    string  `yaml:"protocol"` // explicit | sentinel
	} `yaml:"simulation"`
	Nodes struct {
		Total    int `yaml:"total"`
		Mobile   int `yaml:"mobile"` // nodes with ID < mobile are mobile
		Sentinel int `yaml:"sentinel"`
	} `yaml:"nodes"`
	Battery struct {
		Static           float64 `yaml:"static"`
		Mobile           float64 `yaml:"mobile"`
		TerminationCheck string  `yaml:"termination_check"` // per_node | end_of_pass
	} `yaml:"battery"`
	Area struct {
		Width  float64 `yaml:"width"`
		Height float64 `yaml:"height"`
	} `yaml:"area"`
	Placement struct {
		Model             string  `yaml:"model"` // grid | uniform | normal
		StandardDeviation float64 `yaml:"standard_deviation,omitempty"`
	} `yaml:"placement"`
	Speed struct {
		Model             string  `yaml:"model"` // constant | uniform | normal
		Speed             float64 `yaml:"speed,omitempty"`
		Min               float64 `yaml:"min,omitempty"`
		Max               float64 `yaml:"max,omitempty"`
		Mean              float64 `yaml:"mean,omitempty"`
		StandardDeviation float64 `yaml:"standard_deviation,omitempty"`
	} `yaml:"speed"`
	Mobility struct {
		Policy         string  `yaml:"policy"`              // none | dispatch
		Algorithm      string  `yaml:"algorithm,omitempty"` // hba | tba
		BatteryAware   bool    `yaml:"battery_aware,omitempty"`
		SensingRange   float64 `yaml:"sensing_range,omitempty"`
		HoleSpacing    float64 `yaml:"hole_spacing,omitempty"`
		MoveCost       float64 `yaml:"move_cost,omitempty"` // battery units per metre
		ReplanInterval int     `yaml:"replan_interval,omitempty"`
	} `yaml:"mobility"`
	Logging struct {
		Level   string `yaml:"level,omitempty"`
		Format  string `yaml:"format,omitempty"`
		Backend string `yaml:"backend,omitempty"` // slog | logrus
	} `yaml:"logging"`
	Metrics struct {
		Addr string `yaml:"addr,omitempty"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled,omitempty"`
		Exporter    string  `yaml:"exporter,omitempty"` // stdout | otlp
		Endpoint    string  `yaml:"endpoint,omitempty"`
		SampleRatio float64 `yaml:"sample_ratio,omitempty"`
	} `yaml:"tracing"`
	Output struct {
		RoundsCSV string `yaml:"rounds_csv,omitempty"`
	} `yaml:"output"`
}

// Default returns the built-in scenario: a 250 m square with 100 nodes on a
// grid, half of them mobile.
func Default() *Config {
	cfg := &Config{}
	cfg.Simulation.TotalRounds = 0
	cfg.Simulation.Frequency = 1
	cfg.Simulation.Seed = 1
	cfg.Simulation.Pacing = "accelerated"
	cfg.Simulation.Protocol = "explicit"

	cfg.Nodes.Total = 100
	cfg.Nodes.Mobile = 50
	cfg.Nodes.Sentinel = 0

	cfg.Battery.Static = 100
	cfg.Battery.Mobile = 1000
	cfg.Battery.TerminationCheck = "per_node"

	cfg.Area.Width = 250
	cfg.Area.Height = 250

	cfg.Placement.Model = "grid"
	cfg.Placement.StandardDeviation = 0.2

	cfg.Speed.Model = "constant"
	cfg.Speed.Speed = 1

	cfg.Mobility.Policy = "none"
	cfg.Mobility.Algorithm = "hba"
	cfg.Mobility.SensingRange = 25
	cfg.Mobility.HoleSpacing = 25
	cfg.Mobility.MoveCost = 0.1

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.Backend = "slog"

	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SampleRatio = 1
	return cfg
}

// Load reads a scenario from path. Keys missing from the file keep their
// Default values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	defer encoder.Close()
	return encoder.Encode(cfg)
}

// WriteDefault writes the Default scenario to path.
func WriteDefault(path string) error {
	return Save(Default(), path)
}

// ApplyEnv overrides fields from SIM_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("SIM_TOTAL_ROUNDS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SIM_TOTAL_ROUNDS: %w", err)
		}
		c.Simulation.TotalRounds = n
	}
	if v, ok := os.LookupEnv("SIM_SEED"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("SIM_SEED: %w", err)
		}
		c.Simulation.Seed = n
	}
	if v, ok := os.LookupEnv("SIM_NODES"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SIM_NODES: %w", err)
		}
		c.Nodes.Total = n
	}
	if v, ok := os.LookupEnv("SIM_MOBILE_NODES"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SIM_MOBILE_NODES: %w", err)
		}
		c.Nodes.Mobile = n
	}
	return nil
}

// RoundDuration is the simulated time covered by one round.
func (c *Config) RoundDuration() time.Duration {
	if c.Simulation.Frequency <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / c.Simulation.Frequency)
}

// Validate reports the first inconsistency in c, wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Simulation.TotalRounds < 0:
		return invalid("simulation.total_rounds must be >= 0, got %d", c.Simulation.TotalRounds)
	case c.Simulation.Frequency <= 0:
		return invalid("simulation.frequency must be > 0, got %g", c.Simulation.Frequency)
	case c.Nodes.Total <= 0:
		return invalid("nodes.total must be > 0, got %d", c.Nodes.Total)
	case c.Nodes.Mobile < 0 || c.Nodes.Mobile > c.Nodes.Total:
		return invalid("nodes.mobile must be within [0, %d], got %d", c.Nodes.Total, c.Nodes.Mobile)
	case c.Nodes.Sentinel < 0 || c.Nodes.Sentinel >= c.Nodes.Total:
		return invalid("nodes.sentinel must be a node ID in [0, %d), got %d", c.Nodes.Total, c.Nodes.Sentinel)
	case c.Battery.Static <= 0:
		return invalid("battery.static must be > 0, got %g", c.Battery.Static)
	case c.Battery.Mobile <= 0:
		return invalid("battery.mobile must be > 0, got %g", c.Battery.Mobile)
	case c.Area.Width <= 0 || c.Area.Height <= 0:
		return invalid("area must have positive width and height, got %gx%g", c.Area.Width, c.Area.Height)
	}

	if err := oneOf("simulation.pacing", c.Simulation.Pacing, "accelerated", "real_time"); err != nil {
		return err
	}
	if err := oneOf("simulation.protocol", c.Simulation.Protocol, "explicit", "sentinel"); err != nil {
		return err
	}
	if err := oneOf("battery.termination_check", c.Battery.TerminationCheck, "per_node", "end_of_pass"); err != nil {
		return err
	}
	if err := oneOf("placement.model", c.Placement.Model, "grid", "uniform", "normal"); err != nil {
		return err
	}
	if err := oneOf("speed.model", c.Speed.Model, "constant", "uniform", "normal"); err != nil {
		return err
	}
	if err := oneOf("mobility.policy", c.Mobility.Policy, "none", "dispatch"); err != nil {
		return err
	}

	if c.Tracing.Enabled {
		if err := oneOf("tracing.exporter", c.Tracing.Exporter, "stdout", "otlp"); err != nil {
			return err
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return invalid("tracing.sample_ratio must be within [0, 1], got %g", c.Tracing.SampleRatio)
	}

	if c.Placement.Model == "normal" && c.Placement.StandardDeviation <= 0 {
		return invalid("placement.standard_deviation must be > 0 for the normal model")
	}
	switch c.Speed.Model {
	case "constant":
		if c.Speed.Speed < 0 {
			return invalid("speed.speed must be >= 0, got %g", c.Speed.Speed)
		}
	case "uniform":
		if c.Speed.Min < 0 || c.Speed.Max < c.Speed.Min {
			return invalid("speed range [%g, %g] is empty or negative", c.Speed.Min, c.Speed.Max)
		}
	case "normal":
		if c.Speed.StandardDeviation < 0 {
			return invalid("speed.standard_deviation must be >= 0, got %g", c.Speed.StandardDeviation)
		}
	}

	if c.Mobility.Policy == "dispatch" {
		if err := oneOf("mobility.algorithm", c.Mobility.Algorithm, "hba", "tba"); err != nil {
			return err
		}
		switch {
		case c.Mobility.SensingRange <= 0:
			return invalid("mobility.sensing_range must be > 0, got %g", c.Mobility.SensingRange)
		case c.Mobility.HoleSpacing <= 0:
			return invalid("mobility.hole_spacing must be > 0, got %g", c.Mobility.HoleSpacing)
		case c.Mobility.MoveCost < 0:
			return invalid("mobility.move_cost must be >= 0, got %g", c.Mobility.MoveCost)
		case c.Mobility.ReplanInterval < 0:
			return invalid("mobility.replan_interval must be >= 0, got %d", c.Mobility.ReplanInterval)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return invalid("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value)
}
