package strategy

import "time"

type State string

type Event string

const (
	StateIdle        State = "IDLE"
	StateWarming     State = "WARMING"
	StateQuoting     State = "QUOTING"
	StateRebalancing State = "REBALANCING"
	StateHalted      State = "HALTED"
	StateShutdown    State = "SHUTDOWN"
)

const (
	EventStart           Event = "START"
	EventWarmed          Event = "WARMED"
	EventRebalanceNeeded Event = "REBALANCE_NEEDED"
	EventRebalanced      Event = "REBALANCED"
	EventHalt            Event = "HALT"
	EventResume          Event = "RESUME"
	EventStop            Event = "STOP"
)

// Snapshot feeds the risk checks with everything they look at. Money
// figures are USD; DataAge is the time since the last market update.
type Snapshot struct {
	RealizedPnL    float64
	DailyPnL       float64
	PositionUSD    float64
	Leverage       float64
	OpenOrderCount int
	LiqDistance    float64
	HasLiqDistance bool
	DataAge        time.Duration
}
