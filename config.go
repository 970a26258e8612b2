package qsn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Scheduling policies.
const (
	PolicyGroups = "groups"
	PolicyRandom = "random"
)

// Stabilizer closures.
const (
	ClosureGenerators = "generators"
	ClosureFull       = "full"
)

// DishonestConfig selects how many members cheat and how. The dishonest
// members are the last Count parties of the line.
type DishonestConfig struct {
	Count  int    `mapstructure:"count" yaml:"count"`
	Action string `mapstructure:"action" yaml:"action"`
	Scope  string `mapstructure:"scope" yaml:"scope"`
}

/*
Config is shared read-only by every round. Zero values of Copies and
Threshold are derived from the rest of the configuration.
*/
type Config struct {
	Parties       int             `mapstructure:"parties" yaml:"parties"`
	TestsPerGroup int             `mapstructure:"tests_per_group" yaml:"tests_per_group"`
	Groups        int             `mapstructure:"groups" yaml:"groups"`
	Copies        int             `mapstructure:"copies" yaml:"copies"`
	Policy        string          `mapstructure:"policy" yaml:"policy"`
	Closure       string          `mapstructure:"closure" yaml:"closure"`
	NTest         int             `mapstructure:"ntest" yaml:"ntest"`
	State         string          `mapstructure:"state" yaml:"state"`
	Threshold     float64         `mapstructure:"threshold" yaml:"threshold"`
	Sense         bool            `mapstructure:"sense" yaml:"sense"`
	Phases        []float64       `mapstructure:"phases" yaml:"phases"`
	Dishonest     DishonestConfig `mapstructure:"dishonest" yaml:"dishonest"`
	Seed          uint64          `mapstructure:"seed" yaml:"seed"`
	Workers       int             `mapstructure:"workers" yaml:"workers"`
	Rounds        int             `mapstructure:"rounds" yaml:"rounds"`
	MaxRounds     int             `mapstructure:"max_rounds" yaml:"max_rounds"`
	AbortLimit    int             `mapstructure:"abort_limit" yaml:"abort_limit"`
	LogLevel      string          `mapstructure:"log_level" yaml:"log_level"`
}

func NewConfig() *Config {
	return &Config{
		Parties:       4,
		TestsPerGroup: 3,
		Policy:        PolicyGroups,
		Closure:       ClosureGenerators,
		NTest:         20,
		State:         StateGHZ.String(),
		Sense:         true,
		Dishonest: DishonestConfig{
			Action: Honest.String(),
			Scope:  TamperTarget.String(),
		},
		Seed:      1,
		Workers:   4,
		Rounds:    100,
		MaxRounds: 1000,
		LogLevel:  "info",
	}
}

// setDefaults mirrors NewConfig into v so env and file values layer on top.
func setDefaults(v *viper.Viper) {
	d := NewConfig()
	v.SetDefault("parties", d.Parties)
	v.SetDefault("tests_per_group", d.TestsPerGroup)
	v.SetDefault("groups", d.Groups)
	v.SetDefault("copies", d.Copies)
	v.SetDefault("policy", d.Policy)
	v.SetDefault("closure", d.Closure)
	v.SetDefault("ntest", d.NTest)
	v.SetDefault("state", d.State)
	v.SetDefault("threshold", d.Threshold)
	v.SetDefault("sense", d.Sense)
	v.SetDefault("phases", []float64{})
	v.SetDefault("dishonest.count", d.Dishonest.Count)
	v.SetDefault("dishonest.action", d.Dishonest.Action)
	v.SetDefault("dishonest.scope", d.Dishonest.Scope)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("rounds", d.Rounds)
	v.SetDefault("max_rounds", d.MaxRounds)
	v.SetDefault("abort_limit", d.AbortLimit)
	v.SetDefault("log_level", d.LogLevel)
}

// NewViper returns a viper instance with the defaults and QSN_ environment
// overrides in place.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("QSN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps configuration keys to the flags declared by AddFlags.
var flagKeys = map[string]string{
	"parties":          "parties",
	"tests_per_group":  "tests-per-group",
	"groups":           "groups",
	"copies":           "copies",
	"policy":           "policy",
	"closure":          "closure",
	"ntest":            "ntest",
	"state":            "state",
	"threshold":        "threshold",
	"sense":            "sense",
	"phases":           "phases",
	"dishonest.count":  "dishonest",
	"dishonest.action": "action",
	"dishonest.scope":  "scope",
	"seed":             "seed",
	"workers":          "workers",
	"rounds":           "rounds",
	"max_rounds":       "max-rounds",
	"abort_limit":      "abort-limit",
	"log_level":        "log-level",
}

/*
AddFlags declares one flag per configuration key on fs, with the defaults of
NewConfig.

Phases are a string slice: viper hands a float slice flag over as one
bracketed string, which does not decode into []float64.
*/
func AddFlags(fs *pflag.FlagSet) {
	d := NewConfig()
	fs.Int("parties", d.Parties, "number of parties on the line")
	fs.Int("tests-per-group", d.TestsPerGroup, "tests per stabilizer with the groups policy")
	fs.Int("groups", d.Groups, "distinct stabilizers tested with the groups policy (0 = parties)")
	fs.Int("copies", d.Copies, "copies per round (0 = policy default)")
	fs.String("policy", d.Policy, "scheduling policy: groups or random")
	fs.String("closure", d.Closure, "stabilizers: generators or full")
	fs.Int("ntest", d.NTest, "tests per round with the random policy")
	fs.String("state", d.State, "resource state: ghz, plus or bell")
	fs.Float64("threshold", d.Threshold, "abort threshold (0 = customary for the closure)")
	fs.Bool("sense", d.Sense, "run the sensing step on accepted rounds")
	fs.StringSlice("phases", nil, "local phase of every party, comma separated")
	fs.Int("dishonest", d.Dishonest.Count, "number of dishonest members")
	fs.String("action", d.Dishonest.Action, "dishonest behaviour: phase-flip or bit-flip")
	fs.String("scope", d.Dishonest.Scope, "tampered shares: target or every-copy")
	fs.Uint64("seed", d.Seed, "seed of the round generators")
	fs.Int("workers", d.Workers, "rounds run in parallel")
	fs.Int("rounds", d.Rounds, "accepted rounds to collect")
	fs.Int("max-rounds", d.MaxRounds, "rounds to attempt at most")
	fs.Int("abort-limit", d.AbortLimit, "consecutive aborted rounds before halting (0 = never)")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
}

// BindFlags binds the flags declared by AddFlags to their keys in v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %s for %s not declared", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

/*
LoadConfig reads path (any format viper understands) on top of the defaults
and the QSN_ environment. An empty path only uses defaults and environment.
*/
func LoadConfig(path string) (*Config, error) {
	return ConfigFromViper(NewViper(), path)
}

// ConfigFromViper reads path into v, unmarshals and validates.
func ConfigFromViper(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first problem as a ConfigurationError.
func (c *Config) Validate() error {
	if c.Parties < 2 {
		return configErrorf("need at least 2 parties, got %d", c.Parties)
	}
	if c.Parties > MaxSimulatedParties {
		return configErrorf("at most %d parties can be simulated, got %d", MaxSimulatedParties, c.Parties)
	}

	state, err := ParseResourceState(c.State)
	if err != nil {
		return err
	}
	if state == StateBell && c.Parties%2 != 0 {
		return configErrorf("bell pairs need an even number of parties, got %d", c.Parties)
	}

	switch c.Closure {
	case ClosureGenerators:
	case ClosureFull:
		if c.Parties > MaxFullGroupParties {
			return configErrorf("full closure limited to %d parties, got %d", MaxFullGroupParties, c.Parties)
		}
	default:
		return configErrorf("unknown closure %q", c.Closure)
	}

	switch c.Policy {
	case PolicyGroups:
		if c.TestsPerGroup < 1 {
			return configErrorf("tests_per_group must be positive, got %d", c.TestsPerGroup)
		}
		if c.GroupCount() > c.closureSize() {
			return configErrorf("%d distinct stabilizers requested, closure only has %d", c.GroupCount(), c.closureSize())
		}
		if m, t := c.GroupCount(), c.TestsPerGroup; c.TotalCopies() <= m*t {
			return configErrorf("%d copies cannot hold %d groups of %d tests plus a target", c.TotalCopies(), m, t)
		}
	case PolicyRandom:
		if c.NTest < 1 {
			return configErrorf("ntest must be positive, got %d", c.NTest)
		}
		if c.TotalCopies() <= c.NTest {
			return configErrorf("%d copies cannot hold %d tests plus a target", c.TotalCopies(), c.NTest)
		}
	default:
		return configErrorf("unknown policy %q", c.Policy)
	}

	if c.Threshold < 0 || c.Threshold > 1 {
		return configErrorf("threshold %g outside (0, 1]", c.Threshold)
	}
	if len(c.Phases) != 0 && len(c.Phases) != c.Parties {
		return configErrorf("%d phases given for %d parties", len(c.Phases), c.Parties)
	}

	if _, err := c.Adversary(); err != nil {
		return err
	}
	if c.Dishonest.Count < 0 || c.Dishonest.Count > c.Parties-1 {
		return configErrorf("between 0 and %d members can be dishonest, got %d", c.Parties-1, c.Dishonest.Count)
	}

	if c.Workers < 1 {
		return configErrorf("workers must be positive, got %d", c.Workers)
	}
	if c.Rounds < 0 || c.MaxRounds < 0 || c.AbortLimit < 0 {
		return configErrorf("round counts cannot be negative")
	}
	return nil
}

// IsConfigurationError reports whether err came from configuration validation.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func (c *Config) closureSize() int {
	if c.Closure == ClosureFull {
		return 1 << c.Parties
	}
	return c.Parties
}

// GroupCount is the number of distinct stabilizers tested by the groups policy.
func (c *Config) GroupCount() int {
	if c.Groups > 0 {
		return c.Groups
	}
	return c.Parties
}

// TotalCopies is Copies, or the default budget of the selected policy.
func (c *Config) TotalCopies() int {
	if c.Copies > 0 {
		return c.Copies
	}
	if c.Policy == PolicyRandom {
		return 2 * c.NTest
	}
	return DefaultCopies(c.GroupCount(), c.TestsPerGroup)
}

// ResolvedThreshold is Threshold, or the customary value for the closure.
func (c *Config) ResolvedThreshold() float64 {
	if c.Threshold > 0 {
		return c.Threshold
	}
	if c.Closure == ClosureFull {
		return FullGroupThreshold(c.Parties)
	}
	return GeneratorThreshold(c.Parties)
}

// Phase returns the local phase of party i, zero when none are configured.
func (c *Config) Phase(i int) float64 {
	if i < len(c.Phases) {
		return c.Phases[i]
	}
	return 0
}

// Adversary parses the dishonest behaviour shared by the cheating members.
func (c *Config) Adversary() (Adversary, error) {
	b, err := ParseBehavior(c.Dishonest.Action)
	if err != nil {
		return Adversary{}, err
	}
	s, err := ParseTamperScope(c.Dishonest.Scope)
	if err != nil {
		return Adversary{}, err
	}
	return Adversary{Behavior: b, Scope: s}, nil
}

// IsDishonest reports whether party i is one of the cheating members.
func (c *Config) IsDishonest(i int) bool {
	if c.Dishonest.Count == 0 {
		return false
	}
	b, _ := ParseBehavior(c.Dishonest.Action)
	return b != Honest && i > 0 && i >= c.Parties-c.Dishonest.Count
}

/*
TruePhase is the quantity the estimator targets: the average of all phases,
or for bit-flipping members the honest phase sum minus the dishonest one.
*/
func (c *Config) TruePhase() float64 {
	adv, _ := c.Adversary()
	var sum, honest, dishonest float64
	for i := 0; i < c.Parties; i++ {
		sum += c.Phase(i)
		if c.IsDishonest(i) {
			dishonest += c.Phase(i)
		} else {
			honest += c.Phase(i)
		}
	}
	if adv.Behavior == BitFlip && c.Dishonest.Count > 0 {
		return honest - dishonest
	}
	return sum / float64(c.Parties)
}

// Estimator builds the estimator matching the configured behaviour.
func (c *Config) Estimator() *PhaseEstimator {
	adv, _ := c.Adversary()
	switch {
	case adv.Behavior == BitFlip && c.Dishonest.Count > 0:
		return NewDifferenceEstimator(c.TruePhase())
	case adv.Behavior == PhaseFlip:
		return NewAverageEstimator(c.Parties, c.TruePhase(), c.Dishonest.Count)
	default:
		return NewAverageEstimator(c.Parties, c.TruePhase(), 0)
	}
}
