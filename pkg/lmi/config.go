package lmi

import "github.com/kasuganosora/hybridpg/pkg/errs"

// Config parameterizes an LMI instance. Defaults follow spec §4.3 and the
// "dynamic configuration" enumeration in spec §9.
type Config struct {
	// Fanout is the number of children per inner node. Must be one of
	// {16, 32, 64, 128}.
	Fanout int
	// LeafCapacity is the number of physical slots per leaf (occupied +
	// gaps). Must be in [32, 4096].
	LeafCapacity int
	// LMin/LMax bound leaf occupancy: a leaf splits once its occupancy
	// exceeds LMax and is merge-eligible once it falls below LMin.
	// L_min <= 0.5 <= L_max < 1.
	LMin float64
	LMax float64
	// RetrainThreshold is the per-leaf max |predicted-actual| slot error
	// that triggers a retrain after an insert or split.
	RetrainThreshold int
}

// DefaultConfig returns the spec's default LMI parameters.
func DefaultConfig() Config {
	return Config{
		Fanout:           64,
		LeafCapacity:     256,
		LMin:             0.25,
		LMax:             0.75,
		RetrainThreshold: 8,
	}
}

// Validate checks the config against the allowed ranges in spec §9.
func (c Config) Validate() error {
	switch c.Fanout {
	case 16, 32, 64, 128:
	default:
		return &errs.InvalidParams{Reason: "lmi_fanout must be one of {16,32,64,128}"}
	}
	if c.LeafCapacity < 32 || c.LeafCapacity > 4096 {
		return &errs.InvalidParams{Reason: "leaf_capacity must be in [32,4096]"}
	}
	if !(c.LMin <= 0.5 && 0.5 <= c.LMax && c.LMax < 1) {
		return &errs.InvalidParams{Reason: "density_band must satisfy L_min <= 0.5 <= L_max < 1"}
	}
	if c.RetrainThreshold < 1 {
		return &errs.InvalidParams{Reason: "retrain threshold must be positive"}
	}
	return nil
}
