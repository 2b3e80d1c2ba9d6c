package domain

// RejectReason explains why an event produced no position. Recorded in the
// journal so threshold tuning can see what was filtered and where.
type RejectReason string

const (
	RejectStaleEvent       RejectReason = "STALE_EVENT"
	RejectLowMateriality   RejectReason = "LOW_MATERIALITY"
	RejectOutsideWindow    RejectReason = "OUTSIDE_TRADING_WINDOW"
	RejectNeutralSentiment RejectReason = "NEUTRAL_SENTIMENT"
	RejectCircuitBreaker   RejectReason = "CIRCUIT_BREAKER"
	RejectLowConfidence    RejectReason = "LOW_CONFIDENCE"
	RejectPositionOpen     RejectReason = "POSITION_ALREADY_OPEN"
	RejectSectorCap        RejectReason = "SECTOR_CAP"
	RejectExposureCeiling  RejectReason = "EXPOSURE_CEILING"
	RejectZeroSize         RejectReason = "ZERO_SIZE"
	RejectNoPrice          RejectReason = "NO_PRICE"
)

// ExitReason explains why a position left the OPEN state. Set exactly once.
type ExitReason string

const (
	ExitTakeProfit       ExitReason = "TAKE_PROFIT"
	ExitStopLoss         ExitReason = "STOP_LOSS"
	ExitTrailingStop     ExitReason = "TRAILING_STOP"
	ExitMomentumReversal ExitReason = "MOMENTUM_REVERSAL"
	ExitTimeStop         ExitReason = "TIME_STOP"
	ExitForcedEOW        ExitReason = "FORCED_EOW"
)
