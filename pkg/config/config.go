package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/utils/ptr"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "EDGE_PLACEMENT"

// Configuration keys, also used as flag names.
const (
	KeyConfig             = "config"
	KeyStations           = "stations"
	KeyTransactions       = "transactions"
	KeyN                  = "n"
	KeyK                  = "k"
	KeyAlgorithms         = "algorithms"
	KeyRepeats            = "repeats"
	KeySeed               = "seed"
	KeyParallelism        = "parallelism"
	KeyTimeout            = "timeout"
	KeyOutput             = "output"
	KeyMetricsOutput      = "metrics-output"
	KeyCacheDir           = "cache-dir"
	KeyPlacersFile        = "placers-config"
	KeyPotentialThreshold = "potential-threshold"
)

// Defaults
const (
	DefaultN           = 200
	DefaultRepeats     = 1
	DefaultParallelism = 1
	DefaultTimeout     = 10 * time.Minute
)

var (
	DefaultK          = []int{5, 10}
	DefaultAlgorithms = []string{"mip", "miqp", "ga", "qpso", "qpso-discrete", "kmeans", "topk", "random"}
)

// RunConfig describes one invocation of the placement CLI.
type RunConfig struct {
	Stations     string
	Transactions string
	// N is the number of leading demand points placed over.
	N int
	// K lists the server counts to evaluate.
	K          []int
	Algorithms []string
	Repeats    int
	// Seed overrides the seed of every engine when set.
	Seed        *int64
	Parallelism int
	// Timeout bounds each single run; zero disables it.
	Timeout time.Duration
	// Output is the results CSV path; empty prints a table to stdout.
	Output string
	// MetricsOutput receives the metrics in text exposition format; "-" is stdout, empty disables it.
	MetricsOutput string
	// CacheDir holds the distance matrix cache; empty disables caching.
	CacheDir    string
	PlacersFile string
	// PotentialThreshold drops demand points scoring below it; zero keeps all.
	PotentialThreshold float64
}

// AddFlags registers every run flag on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "Path to a run configuration file")
	fs.String(KeyStations, "", "CSV of base stations (id,address,latitude,longitude)")
	fs.String(KeyTransactions, "", "CSV of user transactions (address,user id,start time,end time)")
	fs.Int(KeyN, DefaultN, "Number of leading demand points to place over")
	fs.IntSlice(KeyK, DefaultK, "Server counts to evaluate")
	fs.StringSlice(KeyAlgorithms, DefaultAlgorithms, "Placers to run")
	fs.Int(KeyRepeats, DefaultRepeats, "Runs averaged per placer and K")
	fs.Int64(KeySeed, 0, "Seed applied to every stochastic placer")
	fs.Int(KeyParallelism, DefaultParallelism, "Placers running concurrently")
	fs.Duration(KeyTimeout, DefaultTimeout, "Time limit of a single run (0 disables it)")
	fs.String(KeyOutput, "", "Results CSV path (empty prints a table)")
	fs.String(KeyMetricsOutput, "", "Metrics dump path, - for stdout")
	fs.String(KeyCacheDir, "", "Directory caching distance matrices")
	fs.String(KeyPlacersFile, "", "YAML file with placer parameters")
	fs.Float64(KeyPotentialThreshold, 0, "Drop demand points with a lower potential score")
}

// Load resolves the run configuration from fs, the environment, the optional config file and
// the defaults. fs may be nil.
func Load(fs *pflag.FlagSet) (*RunConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyN, DefaultN)
	v.SetDefault(KeyK, DefaultK)
	v.SetDefault(KeyAlgorithms, DefaultAlgorithms)
	v.SetDefault(KeyRepeats, DefaultRepeats)
	v.SetDefault(KeyParallelism, DefaultParallelism)
	v.SetDefault(KeyTimeout, DefaultTimeout)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	ks, err := intList(v.Get(KeyK))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyK, err)
	}
	cfg := &RunConfig{
		Stations:           v.GetString(KeyStations),
		Transactions:       v.GetString(KeyTransactions),
		N:                  v.GetInt(KeyN),
		K:                  ks,
		Algorithms:         stringList(v.Get(KeyAlgorithms)),
		Repeats:            v.GetInt(KeyRepeats),
		Parallelism:        v.GetInt(KeyParallelism),
		Timeout:            v.GetDuration(KeyTimeout),
		Output:             v.GetString(KeyOutput),
		MetricsOutput:      v.GetString(KeyMetricsOutput),
		CacheDir:           v.GetString(KeyCacheDir),
		PlacersFile:        v.GetString(KeyPlacersFile),
		PotentialThreshold: v.GetFloat64(KeyPotentialThreshold),
	}
	// seed has no default, so it is only set by a changed flag, the environment or the file
	if v.IsSet(KeySeed) {
		cfg.Seed = ptr.To(v.GetInt64(KeySeed))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, aggregating every problem.
func (c *RunConfig) Validate() error {
	var errs field.ErrorList
	if c.Stations == "" {
		errs = append(errs, field.Required(field.NewPath(KeyStations), "base station CSV is required"))
	}
	if c.Transactions == "" {
		errs = append(errs, field.Required(field.NewPath(KeyTransactions), "transaction CSV is required"))
	}
	if c.N < 1 {
		errs = append(errs, field.Invalid(field.NewPath(KeyN), c.N, "must be positive"))
	}
	if len(c.K) == 0 {
		errs = append(errs, field.Required(field.NewPath(KeyK), "at least one server count is required"))
	}
	for i, k := range c.K {
		if k < 1 {
			errs = append(errs, field.Invalid(field.NewPath(KeyK).Index(i), k, "must be at least 1"))
		} else if c.N >= 1 && k > c.N {
			errs = append(errs, field.Invalid(field.NewPath(KeyK).Index(i), k, fmt.Sprintf("must not exceed n=%d", c.N)))
		}
	}
	if len(c.Algorithms) == 0 {
		errs = append(errs, field.Required(field.NewPath(KeyAlgorithms), "at least one placer is required"))
	}
	if c.Repeats < 1 {
		errs = append(errs, field.Invalid(field.NewPath(KeyRepeats), c.Repeats, "must be at least 1"))
	}
	if c.Parallelism < 1 {
		errs = append(errs, field.Invalid(field.NewPath(KeyParallelism), c.Parallelism, "must be at least 1"))
	}
	if c.Timeout < 0 {
		errs = append(errs, field.Invalid(field.NewPath(KeyTimeout), c.Timeout.String(), "must not be negative"))
	}
	if c.PotentialThreshold < 0 {
		errs = append(errs, field.Invalid(field.NewPath(KeyPotentialThreshold), c.PotentialThreshold, "must not be negative"))
	}
	return errs.ToAggregate()
}

// intList accepts the shapes a list of ints takes across flags, env and config files.
func intList(raw any) ([]int, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case []int:
		return val, nil
	case int:
		return []int{val}, nil
	case []any:
		out := make([]int, 0, len(val))
		for _, item := range val {
			n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(item)))
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		var out []int
		for _, item := range splitList(fmt.Sprint(val)) {
			n, err := strconv.Atoi(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
}

func stringList(raw any) []string {
	switch val := raw.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, strings.TrimSpace(fmt.Sprint(item)))
		}
		return out
	default:
		return splitList(fmt.Sprint(val))
	}
}

// splitList splits "[a, b c]" style values on commas and spaces.
func splitList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}
