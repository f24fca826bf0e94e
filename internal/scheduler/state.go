package scheduler

import (
	"time"

	"github.com/ggonzalez94/agent-sched/internal/model"
	"github.com/ggonzalez94/agent-sched/internal/risk"
)

// CooldownStore maps agent id to the start time of its last evaluation.
// Entries are written only when an agent actually passes the cooldown
// gate, never when it is skipped.
type CooldownStore interface {
	LastEval(agentID string) (time.Time, bool)
	MarkEval(agentID string, at time.Time)
}

// RunLedger holds the most recent finalized cycle summary. Recording a
// new summary discards the previous one.
type RunLedger interface {
	Record(summary model.CycleSummary)
	Last() *model.CycleSummary
}

// MemoryCooldowns is the default in-process cooldown registry. The
// controller runs cycles one at a time, so no locking is needed.
type MemoryCooldowns struct {
	lastEval map[string]time.Time
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{lastEval: make(map[string]time.Time)}
}

func (c *MemoryCooldowns) LastEval(agentID string) (time.Time, bool) {
	at, ok := c.lastEval[agentID]
	return at, ok
}

func (c *MemoryCooldowns) MarkEval(agentID string, at time.Time) {
	c.lastEval[agentID] = at
}

// MemoryLedger is the default single-slot run ledger.
type MemoryLedger struct {
	last *model.CycleSummary
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) Record(summary model.CycleSummary) {
	l.last = &summary
}

func (l *MemoryLedger) Last() *model.CycleSummary {
	return l.last
}

// dayCounters tracks executed trades per agent for the current UTC day,
// feeding the risk guard's daily limits. Counters reset on day rollover.
type dayCounters struct {
	day    string
	trades map[string]int
	pnl    map[string]float64
}

func newDayCounters() *dayCounters {
	return &dayCounters{trades: make(map[string]int), pnl: make(map[string]float64)}
}

func (d *dayCounters) roll(now time.Time) {
	key := now.UTC().Format("2006-01-02")
	if key != d.day {
		d.day = key
		d.trades = make(map[string]int)
		d.pnl = make(map[string]float64)
	}
}

func (d *dayCounters) stats(agentID string, now time.Time) risk.DayStats {
	d.roll(now)
	return risk.DayStats{Trades: d.trades[agentID], PnL: d.pnl[agentID]}
}

func (d *dayCounters) recordTrade(agentID string, now time.Time) {
	d.roll(now)
	d.trades[agentID]++
}
