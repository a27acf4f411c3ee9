package similarity

import (
	_ "embed"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

// TimeTier awards points when two timestamps are closer than WithinMs.
type TimeTier struct {
	WithinMs int64 `yaml:"within_ms"`
	Points   int   `yaml:"points"`
}

// SizeTier awards points when the relative file-size difference stays
// under MaxRelDiff.
type SizeTier struct {
	MaxRelDiff float64 `yaml:"max_rel_diff"`
	Points     int     `yaml:"points"`
}

// HashTier admits a connection at hash distance MaxDist when the metadata
// score reaches MinScore. Tiers are ordered tightest first.
type HashTier struct {
	MaxDist  int `yaml:"max_dist"`
	MinScore int `yaml:"min_score"`
}

// Thresholds bundles every tuning number of the similarity engine.
// The tier tables are data, not code: the embedded thresholds.yaml carries
// the defaults.
type Thresholds struct {
	CandidateWindowMs int64 `yaml:"candidate_window_ms"`
	CandidateMinScore int   `yaml:"candidate_min_score"`

	TimeTiers []TimeTier `yaml:"time_tiers"`

	DimsExactPoints   int     `yaml:"dims_exact_points"`
	AspectTightDiff   float64 `yaml:"aspect_tight_diff"`
	AspectTightPoints int     `yaml:"aspect_tight_points"`
	AspectLooseDiff   float64 `yaml:"aspect_loose_diff"`
	AspectLoosePoints int     `yaml:"aspect_loose_points"`

	SizeTiers []SizeTier `yaml:"size_tiers"`

	BucketPoints int `yaml:"bucket_points"`

	MetaOnlyMaxTimeDiffMs int64 `yaml:"meta_only_max_time_diff_ms"`
	MetaOnlyMinScore      int   `yaml:"meta_only_min_score"`

	HashTiers []HashTier `yaml:"hash_tiers"`

	LargeGroupSize     int `yaml:"large_group_size"`
	LargeGroupMaxDist  int `yaml:"large_group_max_dist"`
	LargeGroupMinScore int `yaml:"large_group_min_score"`
	HugeGroupMargin    int `yaml:"huge_group_margin"`
	HugeGroupMaxDist   int `yaml:"huge_group_max_dist"`

	MaxGroupSize int `yaml:"max_group_size"`

	RepMetaMaxTimeDiffMs  int64 `yaml:"rep_meta_max_time_diff_ms"`
	RepTightDist          int   `yaml:"rep_tight_dist"`
	RepLooseDist          int   `yaml:"rep_loose_dist"`
	RepLooseMaxTimeDiffMs int64 `yaml:"rep_loose_max_time_diff_ms"`
}

var (
	defaultsOnce sync.Once
	defaults     Thresholds
)

// DefaultThresholds returns the tuning values from the embedded YAML.
// The embedded file is parsed once; a broken embed is a build defect,
// so parsing failure panics.
func DefaultThresholds() Thresholds {
	defaultsOnce.Do(func() {
		if err := yaml.Unmarshal(thresholdsYAML, &defaults); err != nil {
			panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
		}
	})
	return defaults
}
