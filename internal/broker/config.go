package broker

// Config holds the simulated broker's fee schedule and realism knobs.
// Defaults mirror conservative, commonly-used backtest assumptions.
type Config struct {
	MakerFeeFrac float64
	TakerFeeFrac float64

	// Latency realism knobs; zero means immediate.
	SubmitLatencyMs int64
	CancelLatencyMs int64

	// Conservative taker slippage overlay (supplemental feature, off by
	// default): executed_px +=/-= (abs + bps·px + spread_frac·spread),
	// clamped so a buy never executes above its limit and a sell never
	// below it.
	TakerSlippageBps        float64
	TakerSlippageSpreadFrac float64
	TakerSlippageAbs        float64

	// Conservative maker queue modeling.
	MakerQueueAheadFactor   float64
	MakerQueueAheadExtraQty float64
	MakerTradeParticipation float64
}

// NewConfig returns a Config with the engine's documented defaults.
func NewConfig() Config {
	return Config{
		MakerFeeFrac:            0.0004,
		TakerFeeFrac:            0.0005,
		MakerQueueAheadFactor:   1.0,
		MakerTradeParticipation: 1.0,
	}
}
