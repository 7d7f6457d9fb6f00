// Package guard implements the book guard: a runtime sanity filter that
// wraps the simulated broker and invalidates submits and pending orders
// on spread/staleness/cross/mismatch anomalies.
package guard

// Config enumerates the book guard's recognized options.
type Config struct {
	Enabled bool

	MaxSpread         float64 // Checked only when HasMaxSpread is set.
	HasMaxSpread      bool
	MaxSpreadBps      float64 // Checked only when HasMaxSpreadBps is set.
	HasMaxSpreadBps   bool
	CooldownMs        int64
	WarmupDepthUpdates int64
	MaxStalenessMs    int64

	ResetOnMismatch   bool
	ResetOnCrossed    bool
	ResetOnMissingSide bool
	ResetOnSpread     bool
	ResetOnStale      bool
}

// NewConfig returns a Config with conservative, commonly-used defaults.
func NewConfig() Config {
	return Config{
		Enabled:            false,
		HasMaxSpreadBps:    true,
		MaxSpreadBps:       5.0,
		CooldownMs:         1000,
		WarmupDepthUpdates: 1000,
		MaxStalenessMs:     500,
		ResetOnMismatch:    true,
		ResetOnCrossed:     true,
	}
}
