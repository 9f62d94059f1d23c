package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/logging"
)

// Default algorithm parameters
const (
	DefaultGAPopulationSize = 30
	DefaultGAMaxGenerations = 100
	DefaultGAMutationRate   = 0.1
	DefaultGACrossoverRate  = 0.9
	DefaultGAAlpha          = 0.5
	DefaultGABeta           = 0.5

	DefaultQPSOSwarmSize         = 30
	DefaultQPSOIterations        = 50
	DefaultQPSOBeta              = 0.75
	DefaultQPSOAlphaDelay        = 0.5
	DefaultQPSOBetaWorkload      = 0.3
	DefaultQPSOGammaPotential    = 0.2
	DefaultQPSODistanceThreshold = 10.0

	DefaultDiscreteQPSOSwarmSize    = 20
	DefaultDiscreteQPSOIterations   = 50
	DefaultDiscreteQPSOMutationRate = 0.1

	DefaultMIPAlpha         = 0.5
	DefaultMIPCoverageRatio = 0.9
	DefaultMIPMaxNodes      = 20000

	DefaultMIQPMu            = 0.5
	DefaultMIQPMaxIterations = 100

	DefaultKMeansIterations = 100
)

// GAConfig holds the genetic algorithm parameters.
type GAConfig struct {
	// PopulationSize must be even, individuals are recombined in pairs.
	PopulationSize int     `yaml:"populationSize,omitempty" json:"populationSize,omitempty"`
	MaxGenerations int     `yaml:"maxGenerations,omitempty" json:"maxGenerations,omitempty"`
	MutationRate   *float64 `yaml:"mutationRate,omitempty" json:"mutationRate,omitempty"`
	CrossoverRate  *float64 `yaml:"crossoverRate,omitempty" json:"crossoverRate,omitempty"`
	// Alpha weights workload balance in the fitness.
	Alpha *float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	// Beta weights communication delay in the fitness.
	Beta *float64 `yaml:"beta,omitempty" json:"beta,omitempty"`
	// SeedNearest seeds one initial individual with the nearest-site assignment.
	SeedNearest *bool  `yaml:"seedNearest,omitempty" json:"seedNearest,omitempty"`
	Seed        *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// QPSOConfig holds the continuous-encoding QPSO parameters.
type QPSOConfig struct {
	SwarmSize  int `yaml:"swarmSize,omitempty" json:"swarmSize,omitempty"`
	Iterations int `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	// Beta is the contraction-expansion coefficient of the quantum update.
	Beta           *float64 `yaml:"beta,omitempty" json:"beta,omitempty"`
	AlphaDelay     *float64 `yaml:"alphaDelay,omitempty" json:"alphaDelay,omitempty"`
	BetaWorkload   *float64 `yaml:"betaWorkload,omitempty" json:"betaWorkload,omitempty"`
	GammaPotential *float64 `yaml:"gammaPotential,omitempty" json:"gammaPotential,omitempty"`
	// DistanceThreshold (km) above which a delay term is penalised ×10.
	DistanceThreshold *float64 `yaml:"distanceThreshold,omitempty" json:"distanceThreshold,omitempty"`
	// CacheObjectives memoises objective values of already seen selections.
	CacheObjectives *bool  `yaml:"cacheObjectives,omitempty" json:"cacheObjectives,omitempty"`
	Seed            *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// DiscreteQPSOConfig holds the composite-score QPSO parameters.
type DiscreteQPSOConfig struct {
	SwarmSize    int      `yaml:"swarmSize,omitempty" json:"swarmSize,omitempty"`
	Iterations   int      `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	MutationRate *float64 `yaml:"mutationRate,omitempty" json:"mutationRate,omitempty"`
	Seed         *int64   `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// MIPConfig holds the exact MIP parameters.
type MIPConfig struct {
	// Alpha weights the covered-set radius against the workload deviation.
	Alpha *float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	// CoverageRatio is the fraction of demand points that must be covered.
	CoverageRatio *float64 `yaml:"coverageRatio,omitempty" json:"coverageRatio,omitempty"`
	MaxNodes      int      `yaml:"maxNodes,omitempty" json:"maxNodes,omitempty"`
	// TimeLimit bounds a single solve, e.g. "30s". Empty means no limit.
	// It is checked between branch-and-bound nodes, so a solve may overrun it by
	// one LP relaxation.
	TimeLimit string `yaml:"timeLimit,omitempty" json:"timeLimit,omitempty"`
}

// MIQPConfig holds the alternating MIQP heuristic parameters.
type MIQPConfig struct {
	// Mu weights the workload surrogate against the normalised distance.
	Mu            *float64 `yaml:"mu,omitempty" json:"mu,omitempty"`
	MaxIterations int      `yaml:"maxIterations,omitempty" json:"maxIterations,omitempty"`
	MaxNodes      int      `yaml:"maxNodes,omitempty" json:"maxNodes,omitempty"`
	// TimeLimit bounds a whole Place call, e.g. "30s". Empty means no limit. It is
	// checked between branch-and-bound nodes, so the call may overrun it by one LP
	// relaxation.
	TimeLimit string `yaml:"timeLimit,omitempty" json:"timeLimit,omitempty"`
	Seed      *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// KMeansConfig holds the k-means baseline parameters.
type KMeansConfig struct {
	Iterations int `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	// Weighted uses demand point workload as the centroid weight.
	Weighted bool   `yaml:"weighted,omitempty" json:"weighted,omitempty"`
	Seed     *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// RandomConfig holds the random baseline parameters.
type RandomConfig struct {
	Seed *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// PlacersConfig is the document configuring every placement engine.
// Seed, when set, is inherited by every engine that does not set its own.
type PlacersConfig struct {
	Seed         *int64             `yaml:"seed,omitempty" json:"seed,omitempty"`
	GA           GAConfig           `yaml:"ga,omitempty" json:"ga,omitempty"`
	QPSO         QPSOConfig         `yaml:"qpso,omitempty" json:"qpso,omitempty"`
	DiscreteQPSO DiscreteQPSOConfig `yaml:"qpsoDiscrete,omitempty" json:"qpsoDiscrete,omitempty"`
	MIP          MIPConfig          `yaml:"mip,omitempty" json:"mip,omitempty"`
	MIQP         MIQPConfig         `yaml:"miqp,omitempty" json:"miqp,omitempty"`
	KMeans       KMeansConfig       `yaml:"kmeans,omitempty" json:"kmeans,omitempty"`
	Random       RandomConfig       `yaml:"random,omitempty" json:"random,omitempty"`
}

// DefaultGAConfig returns the GA defaults.
func DefaultGAConfig() GAConfig {
	return GAConfig{
		PopulationSize: DefaultGAPopulationSize,
		MaxGenerations: DefaultGAMaxGenerations,
		MutationRate:   ptr.To(DefaultGAMutationRate),
		CrossoverRate:  ptr.To(DefaultGACrossoverRate),
		Alpha:          ptr.To(DefaultGAAlpha),
		Beta:           ptr.To(DefaultGABeta),
		SeedNearest:    ptr.To(true),
	}
}

// DefaultQPSOConfig returns the continuous QPSO defaults.
func DefaultQPSOConfig() QPSOConfig {
	return QPSOConfig{
		SwarmSize:         DefaultQPSOSwarmSize,
		Iterations:        DefaultQPSOIterations,
		Beta:              ptr.To(DefaultQPSOBeta),
		AlphaDelay:        ptr.To(DefaultQPSOAlphaDelay),
		BetaWorkload:      ptr.To(DefaultQPSOBetaWorkload),
		GammaPotential:    ptr.To(DefaultQPSOGammaPotential),
		DistanceThreshold: ptr.To(DefaultQPSODistanceThreshold),
		CacheObjectives:   ptr.To(true),
	}
}

// DefaultDiscreteQPSOConfig returns the composite-score QPSO defaults.
func DefaultDiscreteQPSOConfig() DiscreteQPSOConfig {
	return DiscreteQPSOConfig{
		SwarmSize:    DefaultDiscreteQPSOSwarmSize,
		Iterations:   DefaultDiscreteQPSOIterations,
		MutationRate: ptr.To(DefaultDiscreteQPSOMutationRate),
	}
}

// DefaultMIPConfig returns the MIP defaults.
func DefaultMIPConfig() MIPConfig {
	return MIPConfig{
		Alpha:         ptr.To(DefaultMIPAlpha),
		CoverageRatio: ptr.To(DefaultMIPCoverageRatio),
		MaxNodes:      DefaultMIPMaxNodes,
	}
}

// DefaultMIQPConfig returns the MIQP defaults.
func DefaultMIQPConfig() MIQPConfig {
	return MIQPConfig{
		Mu:            ptr.To(DefaultMIQPMu),
		MaxIterations: DefaultMIQPMaxIterations,
		MaxNodes:      DefaultMIPMaxNodes,
	}
}

// DefaultKMeansConfig returns the k-means defaults.
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{Iterations: DefaultKMeansIterations}
}

// DefaultPlacersConfig returns defaults for every engine.
func DefaultPlacersConfig() PlacersConfig {
	return PlacersConfig{
		GA:           DefaultGAConfig(),
		QPSO:         DefaultQPSOConfig(),
		DiscreteQPSO: DefaultDiscreteQPSOConfig(),
		MIP:          DefaultMIPConfig(),
		MIQP:         DefaultMIQPConfig(),
		KMeans:       DefaultKMeansConfig(),
	}
}

// ParsePlacersConfig parses a YAML placers document, merges it over the defaults and
// validates the result.
func ParsePlacersConfig(data []byte) (PlacersConfig, error) {
	var parsed PlacersConfig
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return PlacersConfig{}, fmt.Errorf("parsing placers config: %w", err)
		}
	}
	cfg := parsed.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return PlacersConfig{}, err
	}
	ctrl.Log.V(logging.DEBUG).Info("Parsed placers config",
		"seed", ptr.Deref(cfg.Seed, 0),
		"gaPopulation", cfg.GA.PopulationSize,
		"qpsoSwarm", cfg.QPSO.SwarmSize,
		"miqpMaxIterations", cfg.MIQP.MaxIterations)
	return cfg, nil
}

// WithDefaults returns a copy where every unset value is taken from the defaults.
// Non-zero scalars and every non-nil pointer override defaults, so an explicit zero
// weight or rate is kept.
func (c PlacersConfig) WithDefaults() PlacersConfig {
	def := DefaultPlacersConfig()
	out := c

	out.GA = mergeGA(c.GA, def.GA)
	out.QPSO = mergeQPSO(c.QPSO, def.QPSO)
	out.DiscreteQPSO = mergeDiscreteQPSO(c.DiscreteQPSO, def.DiscreteQPSO)
	out.MIP = mergeMIP(c.MIP, def.MIP)
	out.MIQP = mergeMIQP(c.MIQP, def.MIQP)
	if out.KMeans.Iterations == 0 {
		out.KMeans.Iterations = def.KMeans.Iterations
	}

	if c.Seed != nil {
		for _, seed := range out.seeds() {
			if *seed == nil {
				*seed = ptr.To(*c.Seed)
			}
		}
	}
	return out
}

// WithSeed returns a copy where every stochastic engine uses seed, overriding their own.
func (c PlacersConfig) WithSeed(seed int64) PlacersConfig {
	out := c
	out.Seed = ptr.To(seed)
	for _, s := range out.seeds() {
		*s = ptr.To(seed)
	}
	return out
}

func (c *PlacersConfig) seeds() []**int64 {
	return []**int64{
		&c.GA.Seed, &c.QPSO.Seed, &c.DiscreteQPSO.Seed,
		&c.MIQP.Seed, &c.KMeans.Seed, &c.Random.Seed,
	}
}

func mergeGA(c, def GAConfig) GAConfig {
	result := def
	if c.PopulationSize != 0 {
		result.PopulationSize = c.PopulationSize
	}
	if c.MaxGenerations != 0 {
		result.MaxGenerations = c.MaxGenerations
	}
	if c.MutationRate != nil {
		result.MutationRate = c.MutationRate
	}
	if c.CrossoverRate != nil {
		result.CrossoverRate = c.CrossoverRate
	}
	if c.Alpha != nil {
		result.Alpha = c.Alpha
	}
	if c.Beta != nil {
		result.Beta = c.Beta
	}
	if c.SeedNearest != nil {
		result.SeedNearest = c.SeedNearest
	}
	result.Seed = c.Seed
	return result
}

func mergeQPSO(c, def QPSOConfig) QPSOConfig {
	result := def
	if c.SwarmSize != 0 {
		result.SwarmSize = c.SwarmSize
	}
	if c.Iterations != 0 {
		result.Iterations = c.Iterations
	}
	if c.Beta != nil {
		result.Beta = c.Beta
	}
	if c.AlphaDelay != nil {
		result.AlphaDelay = c.AlphaDelay
	}
	if c.BetaWorkload != nil {
		result.BetaWorkload = c.BetaWorkload
	}
	if c.GammaPotential != nil {
		result.GammaPotential = c.GammaPotential
	}
	if c.DistanceThreshold != nil {
		result.DistanceThreshold = c.DistanceThreshold
	}
	if c.CacheObjectives != nil {
		result.CacheObjectives = c.CacheObjectives
	}
	result.Seed = c.Seed
	return result
}

func mergeDiscreteQPSO(c, def DiscreteQPSOConfig) DiscreteQPSOConfig {
	result := def
	if c.SwarmSize != 0 {
		result.SwarmSize = c.SwarmSize
	}
	if c.Iterations != 0 {
		result.Iterations = c.Iterations
	}
	if c.MutationRate != nil {
		result.MutationRate = c.MutationRate
	}
	result.Seed = c.Seed
	return result
}

func mergeMIP(c, def MIPConfig) MIPConfig {
	result := def
	if c.Alpha != nil {
		result.Alpha = c.Alpha
	}
	if c.CoverageRatio != nil {
		result.CoverageRatio = c.CoverageRatio
	}
	if c.MaxNodes != 0 {
		result.MaxNodes = c.MaxNodes
	}
	if c.TimeLimit != "" {
		result.TimeLimit = c.TimeLimit
	}
	return result
}

func mergeMIQP(c, def MIQPConfig) MIQPConfig {
	result := def
	if c.Mu != nil {
		result.Mu = c.Mu
	}
	if c.MaxIterations != 0 {
		result.MaxIterations = c.MaxIterations
	}
	if c.MaxNodes != 0 {
		result.MaxNodes = c.MaxNodes
	}
	if c.TimeLimit != "" {
		result.TimeLimit = c.TimeLimit
	}
	result.Seed = c.Seed
	return result
}

// Validate checks every engine section and aggregates the errors.
func (c PlacersConfig) Validate() error {
	var errs field.ErrorList
	errs = append(errs, c.GA.Validate(field.NewPath("ga"))...)
	errs = append(errs, c.QPSO.Validate(field.NewPath("qpso"))...)
	errs = append(errs, c.DiscreteQPSO.Validate(field.NewPath("qpsoDiscrete"))...)
	errs = append(errs, c.MIP.Validate(field.NewPath("mip"))...)
	errs = append(errs, c.MIQP.Validate(field.NewPath("miqp"))...)
	errs = append(errs, c.KMeans.Validate(field.NewPath("kmeans"))...)
	return errs.ToAggregate()
}

// Validate checks the GA parameters.
func (c GAConfig) Validate(path *field.Path) field.ErrorList {
	var errs field.ErrorList
	if c.PopulationSize < 2 || c.PopulationSize%2 != 0 {
		errs = append(errs, field.Invalid(path.Child("populationSize"), c.PopulationSize, "must be an even number >= 2"))
	}
	if c.MaxGenerations < 1 {
		errs = append(errs, field.Invalid(path.Child("maxGenerations"), c.MaxGenerations, "must be >= 1"))
	}
	errs = append(errs, validateProbability(path.Child("mutationRate"), ptr.Deref(c.MutationRate, 0))...)
	errs = append(errs, validateProbability(path.Child("crossoverRate"), ptr.Deref(c.CrossoverRate, 0))...)
	errs = append(errs, validateNonNegative(path.Child("alpha"), ptr.Deref(c.Alpha, 0))...)
	errs = append(errs, validateNonNegative(path.Child("beta"), ptr.Deref(c.Beta, 0))...)
	return errs
}

// Validate checks the continuous QPSO parameters.
func (c QPSOConfig) Validate(path *field.Path) field.ErrorList {
	var errs field.ErrorList
	if c.SwarmSize < 1 {
		errs = append(errs, field.Invalid(path.Child("swarmSize"), c.SwarmSize, "must be >= 1"))
	}
	if c.Iterations < 0 {
		errs = append(errs, field.Invalid(path.Child("iterations"), c.Iterations, "must be >= 0"))
	}
	if beta := ptr.Deref(c.Beta, 0); beta <= 0 {
		errs = append(errs, field.Invalid(path.Child("beta"), beta, "must be > 0"))
	}
	errs = append(errs, validateNonNegative(path.Child("alphaDelay"), ptr.Deref(c.AlphaDelay, 0))...)
	errs = append(errs, validateNonNegative(path.Child("betaWorkload"), ptr.Deref(c.BetaWorkload, 0))...)
	errs = append(errs, validateNonNegative(path.Child("gammaPotential"), ptr.Deref(c.GammaPotential, 0))...)
	if threshold := ptr.Deref(c.DistanceThreshold, 0); threshold <= 0 {
		errs = append(errs, field.Invalid(path.Child("distanceThreshold"), threshold, "must be > 0"))
	}
	return errs
}

// Validate checks the composite-score QPSO parameters.
func (c DiscreteQPSOConfig) Validate(path *field.Path) field.ErrorList {
	var errs field.ErrorList
	if c.SwarmSize < 1 {
		errs = append(errs, field.Invalid(path.Child("swarmSize"), c.SwarmSize, "must be >= 1"))
	}
	if c.Iterations < 0 {
		errs = append(errs, field.Invalid(path.Child("iterations"), c.Iterations, "must be >= 0"))
	}
	errs = append(errs, validateProbability(path.Child("mutationRate"), ptr.Deref(c.MutationRate, 0))...)
	return errs
}

// Validate checks the MIP parameters.
func (c MIPConfig) Validate(path *field.Path) field.ErrorList {
	var errs field.ErrorList
	errs = append(errs, validateProbability(path.Child("alpha"), ptr.Deref(c.Alpha, 0))...)
	if ratio := ptr.Deref(c.CoverageRatio, 0); ratio <= 0 || ratio > 1 {
		errs = append(errs, field.Invalid(path.Child("coverageRatio"), ratio, "must be in (0, 1]"))
	}
	if c.MaxNodes < 1 {
		errs = append(errs, field.Invalid(path.Child("maxNodes"), c.MaxNodes, "must be >= 1"))
	}
	errs = append(errs, validateTimeLimit(path.Child("timeLimit"), c.TimeLimit)...)
	return errs
}

// Validate checks the MIQP parameters.
func (c MIQPConfig) Validate(path *field.Path) field.ErrorList {
	var errs field.ErrorList
	errs = append(errs, validateProbability(path.Child("mu"), ptr.Deref(c.Mu, 0))...)
	if c.MaxIterations < 1 {
		errs = append(errs, field.Invalid(path.Child("maxIterations"), c.MaxIterations, "must be >= 1"))
	}
	if c.MaxNodes < 1 {
		errs = append(errs, field.Invalid(path.Child("maxNodes"), c.MaxNodes, "must be >= 1"))
	}
	errs = append(errs, validateTimeLimit(path.Child("timeLimit"), c.TimeLimit)...)
	return errs
}

// Validate checks the k-means parameters.
func (c KMeansConfig) Validate(path *field.Path) field.ErrorList {
	if c.Iterations < 1 {
		return field.ErrorList{field.Invalid(path.Child("iterations"), c.Iterations, "must be >= 1")}
	}
	return nil
}

// TimeLimitDuration parses a time limit; the empty string means no limit.
func TimeLimitDuration(limit string) (time.Duration, error) {
	if limit == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(limit)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", limit, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", limit)
	}
	return d, nil
}

func validateTimeLimit(path *field.Path, limit string) field.ErrorList {
	if _, err := TimeLimitDuration(limit); err != nil {
		return field.ErrorList{field.Invalid(path, limit, err.Error())}
	}
	return nil
}

func validateProbability(path *field.Path, v float64) field.ErrorList {
	if v < 0 || v > 1 {
		return field.ErrorList{field.Invalid(path, v, "must be between 0 and 1")}
	}
	return nil
}

func validateNonNegative(path *field.Path, v float64) field.ErrorList {
	if v < 0 {
		return field.ErrorList{field.Invalid(path, v, "must be >= 0")}
	}
	return nil
}
