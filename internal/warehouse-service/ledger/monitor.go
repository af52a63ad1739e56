package ledger

// AlertMode selects when the Monitor fires.
type AlertMode string

const (
	// AlertLevel fires on every mutation that lands at or below the
	// threshold, so a product that stays low alerts again on each change.
	AlertLevel AlertMode = "level"
	// AlertEdge fires only when a mutation crosses from above the threshold
	// to at or below it.
	AlertEdge AlertMode = "edge"
)

// Monitor is the low-stock predicate evaluated after each mutation. It keeps
// no state: the previous quantity comes from the mutation itself.
type Monitor struct {
	Threshold int
	Mode      AlertMode
}

func (m Monitor) Evaluate(previous, current int) bool {
	if current > m.Threshold {
		return false
	}
	if m.Mode == AlertEdge {
		return previous > m.Threshold
	}
	return true
}
