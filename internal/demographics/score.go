package demographics

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed bands.yaml
var defaultBandsYAML []byte

// Factors are the demand score inputs. Percentages are fractions (0.42,
// not 42).
type Factors struct {
	RenterFraction  float64 `json:"renter_percentage"`
	MedianIncome    float64 `json:"median_household_income"`
	MedianAge       float64 `json:"median_age"`
	Density         float64 `json:"population_density"`
	PovertyFraction float64 `json:"poverty_rate"`
}

// Tier is one scoring bracket. Nil bounds are open.
type Tier struct {
	Min    *float64 `yaml:"min"`
	Max    *float64 `yaml:"max"`
	Below  *float64 `yaml:"below"`
	Points float64  `yaml:"points"`
}

func (t Tier) matches(v float64) bool {
	if t.Min != nil && v < *t.Min {
		return false
	}
	if t.Max != nil && v > *t.Max {
		return false
	}
	if t.Below != nil && v >= *t.Below {
		return false
	}
	return true
}

// Band scores one factor.
type Band struct {
	Weight  float64 `yaml:"weight"`
	Tiers   []Tier  `yaml:"tiers"`
	Default float64 `yaml:"default"`
}

// Points returns the first matching tier's points. Non-finite values earn
// the default.
func (b Band) Points(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return b.Default
	}
	for _, t := range b.Tiers {
		if t.matches(v) {
			return t.Points
		}
	}
	return b.Default
}

// ScoreBands holds the five weighted factor bands.
type ScoreBands struct {
	Renter  Band `yaml:"renter_percentage"`
	Income  Band `yaml:"median_household_income"`
	Age     Band `yaml:"median_age"`
	Density Band `yaml:"population_density"`
	Poverty Band `yaml:"poverty_rate"`
}

// LabelThreshold maps a minimum score to a label.
type LabelThreshold struct {
	Min   float64 `yaml:"min"`
	Label string  `yaml:"label"`
}

// ScoreConfig is the demand score configuration.
type ScoreConfig struct {
	DemandScore ScoreBands       `yaml:"demand_score"`
	Labels      []LabelThreshold `yaml:"labels"`
}

// LabelWeak is assigned below the lowest threshold.
const LabelWeak = "Weak"

var (
	defaultConfigOnce sync.Once
	defaultConfig     *ScoreConfig
)

// DefaultScoreConfig returns the built-in bands.
func DefaultScoreConfig() *ScoreConfig {
	defaultConfigOnce.Do(func() {
		cfg, err := ParseScoreConfig(defaultBandsYAML)
		if err != nil {
			panic(fmt.Sprintf("demographics: embedded bands invalid: %v", err))
		}
		defaultConfig = cfg
	})
	return defaultConfig
}

// LoadScoreConfig reads bands from a YAML file.
func LoadScoreConfig(path string) (*ScoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "demographics: read bands %s", path)
	}
	return ParseScoreConfig(data)
}

// ParseScoreConfig parses and validates YAML bands.
func ParseScoreConfig(data []byte) (*ScoreConfig, error) {
	var cfg ScoreConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "demographics: parse bands")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(cfg.Labels, func(i, j int) bool { return cfg.Labels[i].Min > cfg.Labels[j].Min })
	return &cfg, nil
}

// Validate checks the weights sum to 1 and no band can award more than its
// weight, which keeps every score inside [0, 1].
func (c *ScoreConfig) Validate() error {
	var errs []string
	bands := map[string]Band{
		"renter_percentage":       c.DemandScore.Renter,
		"median_household_income": c.DemandScore.Income,
		"median_age":              c.DemandScore.Age,
		"population_density":      c.DemandScore.Density,
		"poverty_rate":            c.DemandScore.Poverty,
	}

	var sum float64
	for name, b := range bands {
		sum += b.Weight
		if b.Weight < 0 {
			errs = append(errs, name+": weight must be >= 0")
		}
		if b.Default < 0 || b.Default > b.Weight+1e-9 {
			errs = append(errs, name+": default must be within [0, weight]")
		}
		for i, t := range b.Tiers {
			if t.Points < 0 || t.Points > b.Weight+1e-9 {
				errs = append(errs, fmt.Sprintf("%s: tier %d points must be within [0, weight]", name, i))
			}
		}
	}
	if math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1, got %.4f", sum))
	}
	for _, l := range c.Labels {
		if l.Label == "" {
			errs = append(errs, "labels: empty label")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("demographics: invalid bands: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Scorer computes demand scores and labels.
type Scorer struct {
	cfg *ScoreConfig
}

// NewScorer creates a Scorer. A nil config uses the built-in bands.
func NewScorer(cfg *ScoreConfig) *Scorer {
	if cfg == nil {
		cfg = DefaultScoreConfig()
	}
	return &Scorer{cfg: cfg}
}

// Score returns the weighted demand score in [0, 1].
func (s *Scorer) Score(f Factors) float64 {
	b := s.cfg.DemandScore
	score := b.Renter.Points(f.RenterFraction) +
		b.Income.Points(f.MedianIncome) +
		b.Age.Points(f.MedianAge) +
		b.Density.Points(f.Density) +
		b.Poverty.Points(f.PovertyFraction)

	// Rounding drops float artifacts such as 0.7999999999 at label edges.
	score = math.Round(score*1e4) / 1e4
	return math.Max(0, math.Min(score, 1))
}

// Label maps a score to its ordinal label.
func (s *Scorer) Label(score float64) string {
	for _, l := range s.cfg.Labels {
		if score >= l.Min {
			return l.Label
		}
	}
	return LabelWeak
}

// Score scores f with the built-in bands.
func Score(f Factors) float64 { return NewScorer(nil).Score(f) }

// Label labels score with the built-in thresholds.
func Label(score float64) string { return NewScorer(nil).Label(score) }
