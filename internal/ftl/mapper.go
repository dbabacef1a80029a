// Package ftl implements the mapping and write path of the FTL core:
// the logical-to-physical (L2P) and physical-to-logical (P2L) tables,
// per-page state, program-failure recovery, and (in gc.go) the garbage
// collector. All three are kept in one owning structure rather than
// split across independent objects, since the failure path must update
// L2P, P2L, page state and the allocator's pools transactionally.
package ftl

import (
	"fmt"
	"log"

	"github.com/flashcore/ftlcore/internal/allocator"
	"github.com/flashcore/ftlcore/internal/ftlerr"
	"github.com/flashcore/ftlcore/internal/geometry"
	"github.com/flashcore/ftlcore/internal/nand"
)

// Mapper owns L2P, P2L, and per-page state for one device, and drives
// writes/reads/GC through an allocator and a NAND driver.
type Mapper struct {
	geo    geometry.Geometry
	alloc  *allocator.BlockAllocator
	drv    *nand.Driver
	rt     *nand.Runtime
	logger *log.Logger

	l2p    []int32
	p2l    []int32
	pstate []PageState
	seq    uint64
}

// New constructs a Mapper exposing totalLBAs logical addresses over geo.
// Callers must have already run alloc.InitFromBBT.
func New(geo geometry.Geometry, alloc *allocator.BlockAllocator, drv *nand.Driver, rt *nand.Runtime, totalLBAs int, logger *log.Logger) *Mapper {
	if logger == nil {
		logger = log.Default()
	}
	m := &Mapper{
		geo:    geo,
		alloc:  alloc,
		drv:    drv,
		rt:     rt,
		logger: logger,
		l2p:    make([]int32, totalLBAs),
		p2l:    make([]int32, geo.TotalPages()),
		pstate: make([]PageState, geo.TotalPages()),
	}
	for i := range m.l2p {
		m.l2p[i] = unmapped
	}
	for i := range m.p2l {
		m.p2l[i] = unmapped
	}
	return m
}

// Write binds lba to data, demoting any prior mapping first. If the
// allocator has no page available, a GC pass runs and the allocation is
// retried once before failing with ErrNoSpace.
func (m *Mapper) Write(lba int, data []byte) error {
	if lba < 0 || lba >= len(m.l2p) {
		return ftlerr.ErrBadLBA
	}

	if old := m.l2p[lba]; old != unmapped {
		m.pstate[old] = Invalid
		m.p2l[old] = unmapped
		m.l2p[lba] = unmapped
	}

	pba, ok := m.allocatePage()
	if !ok {
		if _, err := m.RunGC(); err != nil && err != ftlerr.ErrNoVictim {
			return err
		}
		pba, ok = m.allocatePage()
		if !ok {
			return ftlerr.ErrNoSpace
		}
	}

	finalPBA, err := m.programWithHandling(pba, data, int32(lba))
	if err != nil {
		return err
	}

	m.l2p[lba] = int32(finalPBA)
	m.p2l[finalPBA] = int32(lba)
	m.pstate[finalPBA] = Valid
	return nil
}

// Read returns the data last written to lba, or ErrUnmapped if lba has
// no live mapping.
func (m *Mapper) Read(lba int) ([]byte, error) {
	if lba < 0 || lba >= len(m.l2p) {
		return nil, ftlerr.ErrBadLBA
	}
	pba := m.l2p[lba]
	if pba == unmapped || m.pstate[pba] != Valid {
		return nil, ftlerr.ErrUnmapped
	}

	d, p, b, page := m.geo.Decompose(int(pba))
	op := &nand.Op{Cmd: nand.CmdReadPage, Targets: []nand.Addr{{Die: d, Plane: p, Block: b, Page: page}}}
	st, msg := m.drv.Submit(op)
	if st != nand.StatusSuccess {
		return nil, fmt.Errorf("ftl: read pba %d: %s", pba, msg)
	}
	return op.Data[0], nil
}

// allocatePage scans planes in fixed (d,p) lexicographic order for a
// fresh page.
func (m *Mapper) allocatePage() (int, bool) {
	for d := 0; d < m.geo.Dies; d++ {
		for p := 0; p < m.geo.Planes; p++ {
			if pba, ok := m.alloc.AllocPage(d, p); ok {
				return pba, true
			}
		}
	}
	return 0, false
}

func (m *Mapper) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// programWithHandling attempts PROGRAM at pba. Any non-SUCCESS status
// retires the whole containing block: a bad-block mark is persisted,
// every page in the block is invalidated and unmapped, the allocator
// remaps the block's VBN to a spare, the write cursor is dropped if it
// pointed here, and the PROGRAM is retried exactly once at a fresh page.
func (m *Mapper) programWithHandling(pba int, data []byte, lba int32) (int, error) {
	d, p, b, page := m.geo.Decompose(pba)
	st, _ := m.drv.Submit(&nand.Op{
		Cmd:     nand.CmdProgramPage,
		Targets: []nand.Addr{{Die: d, Plane: p, Block: b, Page: page}},
		Data:    [][]byte{data},
		OOBLBA:  []int32{lba},
		OOBSeq:  []uint64{m.nextSeq()},
	})
	if st == nand.StatusSuccess {
		return pba, nil
	}

	m.retireBlock(d, p, b)

	newPBA, ok := m.allocatePage()
	if !ok {
		return 0, ftlerr.ErrProgramFailed
	}
	d2, p2, b2, page2 := m.geo.Decompose(newPBA)
	st2, _ := m.drv.Submit(&nand.Op{
		Cmd:     nand.CmdProgramPage,
		Targets: []nand.Addr{{Die: d2, Plane: p2, Block: b2, Page: page2}},
		Data:    [][]byte{data},
		OOBLBA:  []int32{lba},
		OOBSeq:  []uint64{m.nextSeq()},
	})
	if st2 != nand.StatusSuccess {
		return 0, ftlerr.ErrProgramFailed
	}
	return newPBA, nil
}

// retireBlock marks physical block (d,p,b) bad everywhere it is
// recorded, invalidates its pages, and hands the allocator a chance to
// remap its VBN onto a spare.
func (m *Mapper) retireBlock(d, p, b int) {
	m.drv.MarkBlockBadOOB(d, p, b)
	m.rt.SetBad(d, p, b, true)

	for g := 0; g < m.geo.Pages; g++ {
		ppba := m.geo.PBA(d, p, b, g)
		m.pstate[ppba] = Invalid
		if l := m.p2l[ppba]; l != unmapped {
			m.l2p[l] = unmapped
		}
		m.p2l[ppba] = unmapped
	}

	if !m.alloc.RemapGrownBad(d, p, b) {
		m.logger.Printf("ftl: block [%d:%d:%d] retired, no spare available", d, p, b)
	}
	m.alloc.DropOpenIfMatches(d, p, b, true)
}

// eraseBlockTxn erases physical block (d,p,b): a no-op if already
// BBT-bad, otherwise issues ERASE, retires the block on failure (but
// continues regardless), resets page state, and returns the VBN to the
// free pool via the allocator.
func (m *Mapper) eraseBlockTxn(d, p, b int) {
	if m.rt.IsBadAt(m.rt.Idx(d, p, b)) {
		return
	}

	st, _ := m.drv.Submit(&nand.Op{Cmd: nand.CmdEraseBlock, Targets: []nand.Addr{{Die: d, Plane: p, Block: b, Page: -1}}})
	if st != nand.StatusSuccess {
		m.drv.MarkBlockBadOOB(d, p, b)
		m.rt.SetBad(d, p, b, true)
		m.alloc.RemapGrownBad(d, p, b)
	}

	for g := 0; g < m.geo.Pages; g++ {
		ppba := m.geo.PBA(d, p, b, g)
		m.pstate[ppba] = Empty
		m.p2l[ppba] = unmapped
	}
	m.alloc.OnEraseComplete(d, p, b)
}

// PageStates returns a snapshot of every physical page's state, in PBA
// order.
func (m *Mapper) PageStates() []PageState {
	out := make([]PageState, len(m.pstate))
	copy(out, m.pstate)
	return out
}

// Geometry returns the geometry the mapper was constructed over.
func (m *Mapper) Geometry() geometry.Geometry { return m.geo }
