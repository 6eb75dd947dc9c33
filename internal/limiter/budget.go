package limiter

import "sync"

// Budget is the per-invocation request ceiling. It is self-imposed and
// deliberately conservative, independent of GitHub's own rate limit, so that
// other consumers of the same credential keep headroom. Synchronized so a
// future worker pool can share one counter.
type Budget struct {
	ceiling int
	used    int
	mu      sync.Mutex
}

func NewBudget(ceiling int) *Budget {
	return &Budget{ceiling: ceiling}
}

// TryConsume takes one unit of budget. It returns false once the ceiling is
// reached; the call that would overrun is denied, never allowed through.
func (b *Budget) TryConsume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.used >= b.ceiling {
		return false
	}
	b.used++
	return true
}

// Used reports how many units have been consumed this run.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining reports how many units are left this run.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ceiling - b.used
}
