package core

// IterationBudget enforces a maximum number of loop iterations per run.
// It is run-local and not safe for concurrent use.
type IterationBudget struct {
	max   int
	count int
}

// NewIterationBudget creates a budget allowing max iterations.
// If max <= 0, unlimited iterations are allowed.
func NewIterationBudget(max int) *IterationBudget {
	return &IterationBudget{max: max}
}

// Increment records one completed iteration.
func (b *IterationBudget) Increment() { b.count++ }

// Exhausted reports whether the configured maximum has been reached.
func (b *IterationBudget) Exhausted() bool {
	return b.max > 0 && b.count >= b.max
}

// Count returns the number of iterations recorded.
func (b *IterationBudget) Count() int { return b.count }

// Remaining returns how many iterations are left, or -1 when unlimited.
func (b *IterationBudget) Remaining() int {
	if b.max <= 0 {
		return -1 // unlimited
	}
	return b.max - b.count
}
