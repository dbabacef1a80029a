package ftl

import (
	"fmt"

	"github.com/flashcore/ftlcore/internal/ftlerr"
	"github.com/flashcore/ftlcore/internal/nand"
)

// GCResult reports the outcome of one garbage-collection pass, mirroring
// the counters a caller would want to log or export as metrics.
type GCResult struct {
	Die, Plane, Block int
	Relocated         int
}

// RunGC reclaims exactly one block: it selects the open-block-excluded,
// BBT-good block with the fewest valid pages (ties broken by scan
// order), copy-forwards every valid page through the same
// failure-handled program path writes use, then erases the victim.
//
// If relocation itself can't find a destination page, GC aborts without
// erasing the victim — the mapping for pages not yet relocated is
// unchanged.
func (m *Mapper) RunGC() (GCResult, error) {
	d, p, b, found := m.selectVictim()
	if !found {
		return GCResult{}, ftlerr.ErrNoVictim
	}

	relocated := 0
	for g := 0; g < m.geo.Pages; g++ {
		oldPBA := m.geo.PBA(d, p, b, g)
		if m.pstate[oldPBA] != Valid {
			continue
		}
		lba := m.p2l[oldPBA]

		readOp := &nand.Op{Cmd: nand.CmdReadPage, Targets: []nand.Addr{{Die: d, Plane: p, Block: b, Page: g}}}
		if st, msg := m.drv.Submit(readOp); st != nand.StatusSuccess {
			return GCResult{Die: d, Plane: p, Block: b, Relocated: relocated},
				fmt.Errorf("ftl: gc read of valid page pba=%d: %s", oldPBA, msg)
		}
		data := readOp.Data[0]

		newPBA, ok := m.allocatePage()
		if !ok {
			return GCResult{Die: d, Plane: p, Block: b, Relocated: relocated}, ftlerr.ErrNoSpace
		}
		finalPBA, err := m.programWithHandling(newPBA, data, lba)
		if err != nil {
			return GCResult{Die: d, Plane: p, Block: b, Relocated: relocated}, err
		}

		m.l2p[lba] = int32(finalPBA)
		m.p2l[finalPBA] = lba
		m.pstate[finalPBA] = Valid
		m.pstate[oldPBA] = Invalid
		m.p2l[oldPBA] = unmapped
		relocated++
	}

	m.eraseBlockTxn(d, p, b)
	return GCResult{Die: d, Plane: p, Block: b, Relocated: relocated}, nil
}

// selectVictim scans every (d,p,vbn), resolving to a PBN, skipping
// BBT-bad blocks and the plane's currently open VBN, and returns the
// block minimizing valid-page count.
func (m *Mapper) selectVictim() (d, p, b int, found bool) {
	bestValid := m.geo.Pages + 1
	for die := 0; die < m.geo.Dies; die++ {
		for plane := 0; plane < m.geo.Planes; plane++ {
			for vbn := 0; vbn < m.geo.Blocks; vbn++ {
				if m.alloc.IsOpenVBN(die, plane, vbn) {
					continue
				}
				pbn := m.alloc.ResolvePBN(die, plane, vbn)
				if m.rt.IsBadAt(m.rt.Idx(die, plane, pbn)) {
					continue
				}
				valid := 0
				for g := 0; g < m.geo.Pages; g++ {
					if m.pstate[m.geo.PBA(die, plane, pbn, g)] == Valid {
						valid++
					}
				}
				if valid < bestValid {
					bestValid = valid
					d, p, b, found = die, plane, pbn, true
				}
			}
		}
	}
	return
}
