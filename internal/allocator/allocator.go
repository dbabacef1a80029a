// Package allocator implements the block allocator: virtual-to-physical
// block translation (VBN -> PBN), wear-aware block selection, and
// factory/grown bad-block substitution from a spare pool.
package allocator

import "github.com/flashcore/ftlcore/internal/geometry"

const identity = -1
const unmapped = -1

// planeState holds the allocator's per-(die,plane) bookkeeping: the three
// disjoint pools, the VBN<->PBN remap and its reverse, and the write
// cursor.
type planeState struct {
	freeVBNs          pool
	reservedWriteVBNs pool
	reservedSparePBNs pool
	retiredVBNs       pool // permanently lost for lack of a spare

	remap        []int // VBN -> PBN, identity (-1) = untranslated
	reverseRemap []int // PBN -> VBN, unmapped (-1) = none

	cur cursor
}

// Runtime is the subset of *nand.Runtime the allocator needs: erase
// counts for wear-aware selection and the bad-block-table mirror the FTL
// core keeps current. A narrow interface instead of the concrete type
// keeps the allocator testable without spinning up a full NAND model.
type Runtime interface {
	Idx(d, p, b int) int
	EraseCountAt(idx int) uint32
	IsBadAt(idx int) bool
}

// BlockAllocator owns the free/reserved-write/reserved-spare pools and
// remap tables for one device and serves page/block allocations.
type BlockAllocator struct {
	geo     geometry.Geometry
	rt      Runtime
	resW    int // configured reserved_write_per_plane
	resS    int // configured reserved_spare_per_plane
	planes  [][]planeState
}

// New constructs an allocator over geo, reading wear/bad-block state from
// rt. Call InitFromBBT before use.
func New(geo geometry.Geometry, rt Runtime, reservedWritePerPlane, reservedSparePerPlane int) *BlockAllocator {
	a := &BlockAllocator{geo: geo, rt: rt, resW: reservedWritePerPlane, resS: reservedSparePerPlane}
	a.planes = make([][]planeState, geo.Dies)
	for d := range a.planes {
		a.planes[d] = make([]planeState, geo.Planes)
		for p := range a.planes[d] {
			a.planes[d][p] = newPlaneState(geo.Blocks)
		}
	}
	return a
}

func newPlaneState(blocks int) planeState {
	ps := planeState{
		remap:        make([]int, blocks),
		reverseRemap: make([]int, blocks),
	}
	for b := 0; b < blocks; b++ {
		ps.remap[b] = identity
		ps.reverseRemap[b] = b // identity reverse mapping until remapped
	}
	return ps
}

// InitFromBBT partitions each plane's block range into
// [free | reserved_write | reserved_spare], skipping factory-bad blocks,
// then remaps every factory-bad VBN to a spare PBN and folds it into the
// free pool. If reserved_write + reserved_spare exceeds blocks-per-plane,
// reserved_spare wins and reserved_write is truncated.
func (a *BlockAllocator) InitFromBBT(isBad func(d, p, b int) bool) {
	total := a.geo.Blocks
	reservedSpare := clampNonNeg(a.resS)
	reservedWrite := clampNonNeg(a.resW)
	if reservedSpare+reservedWrite > total {
		if reservedSpare > total {
			reservedSpare = total
		}
		reservedWrite = total - reservedSpare
		if reservedWrite < 0 {
			reservedWrite = 0
		}
	}
	startWrite := total - (reservedWrite + reservedSpare)
	startSpare := total - reservedSpare

	for d := 0; d < a.geo.Dies; d++ {
		for p := 0; p < a.geo.Planes; p++ {
			ps := &a.planes[d][p]
			*ps = newPlaneState(total)

			for b := startSpare; b < total; b++ {
				if !isBad(d, p, b) {
					ps.reservedSparePBNs.pushBack(b)
				}
			}
			for b := startWrite; b < startSpare; b++ {
				if !isBad(d, p, b) {
					ps.reservedWriteVBNs.pushBack(b)
				}
			}
			for b := 0; b < startWrite; b++ {
				if !isBad(d, p, b) {
					ps.freeVBNs.pushBack(b)
				}
			}

			// Factory-bad VBNs: remap to a spare and fold into the free
			// pool. This always lands in free_vbns regardless of which
			// reserved region the identity PBN fell in.
			for vbn := 0; vbn < total; vbn++ {
				if !isBad(d, p, vbn) {
					continue
				}
				if spare, ok := ps.reservedSparePBNs.popFront(); ok {
					ps.remap[vbn] = spare
					ps.reverseRemap[spare] = vbn
					ps.freeVBNs.pushBack(vbn)
				} else {
					ps.retiredVBNs.pushBack(vbn)
				}
			}

			if vbn, ok := ps.freeVBNs.popFront(); ok {
				ps.cur = cursor{open: true, vbn: vbn, nextPage: 0}
			} else {
				ps.cur = closedCursor()
			}
		}
	}
}

func clampNonNeg(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// AllocPage returns a fresh physical page address on (d,p), opening a new
// VBN if the cursor has no capacity left. Returns ok=false (NoSpace) if
// both the free and reserved-write pools are exhausted.
func (a *BlockAllocator) AllocPage(d, p int) (pba int, ok bool) {
	if !a.geo.ValidPlane(d, p) {
		return 0, false
	}
	ps := &a.planes[d][p]
	if !ps.cur.hasCapacity(a.geo.Pages) {
		vbn, found := a.pickWearAware(&ps.freeVBNs, d, p)
		if !found {
			vbn, found = a.pickWearAware(&ps.reservedWriteVBNs, d, p)
		}
		if !found {
			return 0, false
		}
		ps.cur = cursor{open: true, vbn: vbn, nextPage: 0}
	}
	pbn := a.resolvePBNLocked(ps, ps.cur.vbn)
	page := ps.cur.nextPage
	ps.cur.nextPage++
	return a.geo.PBA(d, p, pbn, page), true
}

// AllocBlock procures a VBN for relocation without installing it as the
// write cursor. The garbage collector does not call it; its relocation
// targets come from AllocPage.
func (a *BlockAllocator) AllocBlock(d, p int) (vbn int, ok bool) {
	if !a.geo.ValidPlane(d, p) {
		return 0, false
	}
	ps := &a.planes[d][p]
	if vbn, found := a.pickWearAware(&ps.freeVBNs, d, p); found {
		return vbn, true
	}
	if vbn, found := a.pickWearAware(&ps.reservedWriteVBNs, d, p); found {
		return vbn, true
	}
	return 0, false
}

// OnEraseComplete returns the VBN backed by physical block pbn to the
// free pool. A no-op if pbn has no live VBN (reverse remap unmapped).
func (a *BlockAllocator) OnEraseComplete(d, p, pbn int) {
	if !a.geo.ValidPlane(d, p) {
		return
	}
	ps := &a.planes[d][p]
	vbn := ps.reverseRemap[pbn]
	if vbn == unmapped {
		return
	}
	ps.freeVBNs.pushBack(vbn)
}

// DropOpenIfMatches clears the write cursor if it currently points at
// key, interpreting key as a PBN or a VBN per keyIsPBN.
func (a *BlockAllocator) DropOpenIfMatches(d, p, key int, keyIsPBN bool) {
	if !a.geo.ValidPlane(d, p) {
		return
	}
	ps := &a.planes[d][p]
	if !ps.cur.open {
		return
	}
	curPBN := a.resolvePBNLocked(ps, ps.cur.vbn)
	x := key
	if !keyIsPBN {
		x = a.resolvePBNLocked(ps, key)
	}
	if curPBN == x {
		ps.cur = closedCursor()
	}
}

// RemapGrownBad resolves badPBN's VBN and installs a new spare PBN as
// its backing, consuming the reserved-spare pool or, if empty, promoting
// the lowest-wear free VBN's PBN into the spare pool first (dynamic
// spare promotion). Returns false only when no spare can be produced,
// meaning the VBN is permanently lost.
func (a *BlockAllocator) RemapGrownBad(d, p, badPBN int) bool {
	if !a.geo.ValidPlane(d, p) {
		return false
	}
	ps := &a.planes[d][p]
	vbn := ps.reverseRemap[badPBN]
	if vbn == unmapped {
		return false
	}
	spare, ok := ps.reservedSparePBNs.popFront()
	if !ok {
		if !a.dynamicAllocateSpareBlock(d, p) {
			return false
		}
		spare, ok = ps.reservedSparePBNs.popFront()
		if !ok {
			return false
		}
	}
	ps.remap[vbn] = spare
	ps.reverseRemap[spare] = vbn
	ps.reverseRemap[badPBN] = unmapped
	a.DropOpenIfMatches(d, p, vbn, false)
	return true
}

// dynamicAllocateSpareBlock promotes the lowest-wear VBN from free (or
// reserved-write) into the spare pool by repurposing its current PBN.
// The VBN itself is dropped from circulation — it is intentionally left
// unmapped-from-above until a future RemapGrownBad consumes the spare
// and re-homes a different VBN onto it. This collapses reserved-spare
// into a soft reserve; capacity is not strictly partitioned.
func (a *BlockAllocator) dynamicAllocateSpareBlock(d, p int) bool {
	ps := &a.planes[d][p]
	vbn, found := a.pickWearAware(&ps.freeVBNs, d, p)
	if !found {
		vbn, found = a.pickWearAware(&ps.reservedWriteVBNs, d, p)
	}
	if !found {
		return false
	}
	pbn := a.resolvePBNLocked(ps, vbn)
	ps.reservedSparePBNs.pushBack(pbn)
	return true
}

// PoolSizes reports the current size of the free, reserved-write, and
// reserved-spare pools for (d,p), for stats/metrics surfaces.
func (a *BlockAllocator) PoolSizes(d, p int) (free, reservedWrite, reservedSpare int) {
	ps := &a.planes[d][p]
	return ps.freeVBNs.len(), ps.reservedWriteVBNs.len(), ps.reservedSparePBNs.len()
}

// IsOpenVBN reports whether vbn is the plane's currently open write
// cursor with remaining capacity — used by the garbage collector to
// exclude the open block from victim selection. A cursor whose block has
// saturated (next_page == pages_per_block) is equivalent to CLOSED for
// this purpose: it is an ordinary full block, free to be reclaimed.
func (a *BlockAllocator) IsOpenVBN(d, p, vbn int) bool {
	if !a.geo.ValidPlane(d, p) {
		return false
	}
	ps := &a.planes[d][p]
	return ps.cur.hasCapacity(a.geo.Pages) && ps.cur.vbn == vbn
}

// ResolvePBN returns the physical block currently backing vbn.
func (a *BlockAllocator) ResolvePBN(d, p, vbn int) int {
	ps := &a.planes[d][p]
	return a.resolvePBNLocked(ps, vbn)
}

func (a *BlockAllocator) resolvePBNLocked(ps *planeState, vbn int) int {
	if r := ps.remap[vbn]; r != identity {
		return r
	}
	return vbn
}

// pickWearAware scans p for the VBN whose resolved PBN has the smallest
// erase count, skipping any whose resolved PBN is BBT-flagged bad. An
// O(N) scan is acceptable at the scale this allocator targets; it
// removes and returns the winner.
func (a *BlockAllocator) pickWearAware(p *pool, d, pl int) (int, bool) {
	ps := &a.planes[d][pl]
	bestPos := -1
	var bestEC uint32 = ^uint32(0)
	for i, vbn := range *p {
		phys := a.resolvePBNLocked(ps, vbn)
		idx := a.rt.Idx(d, pl, phys)
		if a.rt.IsBadAt(idx) {
			continue
		}
		ec := a.rt.EraseCountAt(idx)
		if ec < bestEC {
			bestEC = ec
			bestPos = i
		}
	}
	if bestPos == -1 {
		return 0, false
	}
	return p.removeAt(bestPos), true
}
