package nand

// Runtime holds the DRAM-side bookkeeping that rides alongside the
// physical Model: per-block erase/program counters, the in-memory
// bad-block-table mirror, and the fault-injection set used by tests.
// This state is shared read/write between the driver (which increments
// erase counts on successful ERASE) and the FTL core (which reads and
// writes the bad-block table directly, without going through the
// driver) — it deliberately is not encapsulated behind Driver alone.
type Runtime struct {
	Dies, Planes, Blocks int

	EraseCount     []uint32
	ProgCount      []uint32
	BadBlockTable  []bool
	injectedFail   map[uint64]struct{}
}

// NewRuntime allocates zeroed counters for the given per-plane block
// count, across all dies/planes.
func NewRuntime(dies, planes, blocks int) *Runtime {
	n := dies * planes * blocks
	return &Runtime{
		Dies:          dies,
		Planes:        planes,
		Blocks:        blocks,
		EraseCount:    make([]uint32, n),
		ProgCount:     make([]uint32, n),
		BadBlockTable: make([]bool, n),
		injectedFail:  make(map[uint64]struct{}),
	}
}

// Idx flattens (d,p,b) into a slice index.
func (r *Runtime) Idx(d, p, b int) int {
	return (d*r.Planes+p)*r.Blocks + b
}

func key(d, p, b int) uint64 {
	return uint64(d)<<30 | uint64(p)<<20 | uint64(b)
}

// ShouldFail reports whether (d,p,b) has an injected runtime failure.
func (r *Runtime) ShouldFail(d, p, b int) bool {
	_, ok := r.injectedFail[key(d, p, b)]
	return ok
}

// InjectFail marks (d,p,b) to fail every subsequent driver operation
// until ClearFail is called. Test/fault-injection hook only.
func (r *Runtime) InjectFail(d, p, b int) {
	r.injectedFail[key(d, p, b)] = struct{}{}
}

// ClearFail removes a previously injected failure.
func (r *Runtime) ClearFail(d, p, b int) {
	delete(r.injectedFail, key(d, p, b))
}

// EraseCountAt returns the erase count at a flattened index produced by Idx.
func (r *Runtime) EraseCountAt(idx int) uint32 { return r.EraseCount[idx] }

// IsBadAt reports whether the bad-block-table mirror flags idx bad.
func (r *Runtime) IsBadAt(idx int) bool { return r.BadBlockTable[idx] }

// SetBad sets or clears the bad-block-table mirror for (d,p,b). The FTL
// core calls this directly when it learns of a grown bad block, rather
// than going through the driver.
func (r *Runtime) SetBad(d, p, b int, bad bool) {
	r.BadBlockTable[r.Idx(d, p, b)] = bad
}
