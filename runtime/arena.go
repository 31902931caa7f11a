package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/sbl8/dualc/algebra"
)

// accumulator is the general executor's working memory: two element
// buffers used in alternation. prev holds the value of the last op and
// prop receives the next one.
type accumulator struct {
	prev *algebra.Element
	prop *algebra.Element
}

// swap makes the value just written into prop the new prev.
func (a *accumulator) swap() {
	a.prev, a.prop = a.prop, a.prev
}

// Arena recycles accumulators between runs. Each accumulator is owned by
// exactly one run at a time and is wiped before it is reused.
type Arena struct {
	pool sync.Pool

	allocated atomic.Int64
	inUse     atomic.Int64
}

// ArenaStats reports accumulator usage.
type ArenaStats struct {
	// Allocated counts accumulators ever created.
	Allocated int64
	// InUse counts accumulators currently held by runs.
	InUse int64
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	a := &Arena{}
	a.pool.New = func() any {
		a.allocated.Add(1)
		return &accumulator{prev: algebra.Zero(), prop: algebra.Zero()}
	}
	return a
}

func (a *Arena) acquire() *accumulator {
	a.inUse.Add(1)
	return a.pool.Get().(*accumulator)
}

func (a *Arena) release(acc *accumulator) {
	acc.prev.Reset()
	acc.prop.Reset()
	a.inUse.Add(-1)
	a.pool.Put(acc)
}

// Stats returns a snapshot of the arena counters.
func (a *Arena) Stats() ArenaStats {
	return ArenaStats{Allocated: a.allocated.Load(), InUse: a.inUse.Load()}
}
