package nand

import (
	"log"
	"sync"
)

// Stats mirrors the driver-level counters the original called NandStats:
// cumulative op counts surfaced to the metrics layer (internal/metrics).
type Stats struct {
	ReadOps           uint64
	ProgramOps        uint64
	EraseOps          uint64
	FailedOps         uint64
	BadBlocksDetected uint64
}

// Driver executes READ/PROGRAM/ERASE against a Model+Runtime pair and is
// safe to call concurrently, even though the FTL core above it assumes
// single-writer semantics for its own tables.
type Driver struct {
	mu      sync.Mutex
	model   *Model
	runtime *Runtime
	stats   Stats
	verbose bool
	logger  *log.Logger
}

// NewDriver wires a driver to a physical model and its runtime state.
func NewDriver(model *Model, runtime *Runtime, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{model: model, runtime: runtime, logger: logger}
}

// SetVerbose enables per-PROGRAM tracing, restoring the original's
// set_verbose/NandDriver(verbose_) behavior for the demo CLI.
func (d *Driver) SetVerbose(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verbose = v
}

// Submit executes op against the simulated array. It is the sole entry
// point for READ/PROGRAM/ERASE.
func (d *Driver) Submit(op *Op) (Status, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st, msg := d.validateCommon(op); st != StatusSuccess {
		d.stats.FailedOps++
		return st, msg
	}

	switch op.Cmd {
	case CmdReadPage:
		d.stats.ReadOps++
		return d.executeRead(op)
	case CmdProgramPage:
		d.stats.ProgramOps++
		return d.executeProgram(op)
	case CmdEraseBlock:
		d.stats.EraseOps++
		return d.executeErase(op)
	default:
		d.stats.FailedOps++
		return StatusFailed, "unknown command"
	}
}

func (d *Driver) validateCommon(op *Op) (Status, string) {
	if len(op.Targets) == 0 {
		return StatusFailed, "no targets"
	}
	for _, a := range op.Targets {
		if !d.validBlock(a.Die, a.Plane, a.Block) {
			return StatusFailed, "invalid block"
		}
		if op.Cmd == CmdReadPage && (a.Page < 0 || a.Page >= d.model.PagesPerBlock) {
			return StatusFailed, "invalid page"
		}
	}
	if op.Cmd == CmdProgramPage {
		n := len(op.Targets)
		if len(op.Data) != 0 && len(op.Data) != n {
			return StatusFailed, "data size mismatch"
		}
		if len(op.OOBLBA) != 0 && len(op.OOBLBA) != n {
			return StatusFailed, "oob_lba size mismatch"
		}
		if len(op.OOBSeq) != 0 && len(op.OOBSeq) != n {
			return StatusFailed, "oob_seq size mismatch"
		}
	}
	return StatusSuccess, "ok"
}

func (d *Driver) executeRead(op *Op) (Status, string) {
	op.Data = op.Data[:0]
	op.OOBLBA = op.OOBLBA[:0]
	op.OOBSeq = op.OOBSeq[:0]
	for _, a := range op.Targets {
		if d.runtime.ShouldFail(a.Die, a.Plane, a.Block) {
			d.stats.FailedOps++
			return StatusFailed, "injected failure"
		}
		if d.isBlockBadLocked(a.Die, a.Plane, a.Block) {
			d.stats.BadBlocksDetected++
			return StatusBadBlock, "bad block"
		}
		pg := d.model.page(a.Die, a.Plane, a.Block, a.Page)
		op.Data = append(op.Data, pg.Data)
		op.OOBLBA = append(op.OOBLBA, pg.OOBLBA)
		op.OOBSeq = append(op.OOBSeq, pg.OOBSeq)
	}
	return StatusSuccess, "read success"
}

func (d *Driver) executeProgram(op *Op) (Status, string) {
	for i, a := range op.Targets {
		if d.runtime.ShouldFail(a.Die, a.Plane, a.Block) {
			d.stats.FailedOps++
			return StatusFailed, "injected failure"
		}
		if d.isBlockBadLocked(a.Die, a.Plane, a.Block) {
			d.stats.BadBlocksDetected++
			return StatusBadBlock, "bad block"
		}
		pg := d.model.page(a.Die, a.Plane, a.Block, a.Page)
		if len(pg.Data) != 0 || pg.OOBSeq != 0 {
			d.stats.FailedOps++
			return StatusFailed, "program on non-erased page"
		}
		if len(op.Data) != 0 {
			pg.Data = op.Data[i]
		}
		if len(op.OOBLBA) != 0 {
			pg.OOBLBA = op.OOBLBA[i]
		}
		if len(op.OOBSeq) != 0 {
			pg.OOBSeq = op.OOBSeq[i]
		}
		if d.verbose {
			d.logger.Printf("pba[%d:%d:%d:%d] lba=%d seq=%d", a.Die, a.Plane, a.Block, a.Page, pg.OOBLBA, pg.OOBSeq)
		}
		d.runtime.ProgCount[d.runtime.Idx(a.Die, a.Plane, a.Block)]++
	}
	return StatusSuccess, "program success"
}

func (d *Driver) executeErase(op *Op) (Status, string) {
	for _, a := range op.Targets {
		if d.runtime.ShouldFail(a.Die, a.Plane, a.Block) {
			d.stats.FailedOps++
			return StatusFailed, "injected failure"
		}
		if d.isBlockBadLocked(a.Die, a.Plane, a.Block) {
			d.stats.BadBlocksDetected++
			return StatusBadBlock, "bad block"
		}
		d.eraseBlockLocked(a.Die, a.Plane, a.Block, true)
	}
	return StatusSuccess, "erase success"
}

func (d *Driver) eraseBlockLocked(die, plane, block int, preserveBadMark bool) {
	blk := &d.model.Dies[die].Planes[plane].Blocks[block]
	for g := range blk.Pages {
		pg := &blk.Pages[g]
		pg.Data = nil
		pg.OOBLBA = -1
		pg.OOBSeq = 0
		if !preserveBadMark {
			pg.OOBBad = oobGood
		}
	}
	d.runtime.EraseCount[d.runtime.Idx(die, plane, block)]++
}

// IsBlockBad reports whether page 0 or page 1's OOB mark flags (d,p,b)
// bad, per the driver's physical view (as opposed to the FTL's BBT
// mirror, which the core updates on its own schedule).
func (d *Driver) IsBlockBad(die, plane, block int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isBlockBadLocked(die, plane, block)
}

func (d *Driver) isBlockBadLocked(die, plane, block int) bool {
	if !d.validBlock(die, plane, block) {
		return true
	}
	blk := &d.model.Dies[die].Planes[plane].Blocks[block]
	b0 := blk.Pages[0].OOBBad
	b1 := uint8(oobGood)
	if d.model.PagesPerBlock >= 2 {
		b1 = blk.Pages[1].OOBBad
	}
	return b0 != oobGood || b1 != oobGood
}

// MarkBlockBadOOB persists a bad-block mark into pages 0 and 1's OOB.
func (d *Driver) MarkBlockBadOOB(die, plane, block int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validBlock(die, plane, block) {
		return
	}
	blk := &d.model.Dies[die].Planes[plane].Blocks[block]
	if d.model.PagesPerBlock >= 1 {
		blk.Pages[0].OOBBad = oobBad
	}
	if d.model.PagesPerBlock >= 2 {
		blk.Pages[1].OOBBad = oobBad
	}
	d.stats.BadBlocksDetected++
	d.logger.Printf("marking block [%d-%d-%d] bad", die, plane, block)
}

func (d *Driver) validBlock(die, plane, block int) bool {
	return die >= 0 && die < d.model.DiesPerNand &&
		plane >= 0 && plane < d.model.PlanesPerDie &&
		block >= 0 && block < d.model.BlocksPerPlane
}

// PagesPerBlock, BlocksPerPlane, PlanesPerDie, DiesPerNand report geometry.
func (d *Driver) PagesPerBlock() int  { return d.model.PagesPerBlock }
func (d *Driver) BlocksPerPlane() int { return d.model.BlocksPerPlane }
func (d *Driver) PlanesPerDie() int   { return d.model.PlanesPerDie }
func (d *Driver) DiesPerNand() int    { return d.model.DiesPerNand }

// GetEraseCount returns the erase count of physical block (d,p,b).
func (d *Driver) GetEraseCount(die, plane, block int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runtime.EraseCount[d.runtime.Idx(die, plane, block)]
}

// Stats returns a snapshot of the cumulative op counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ResetStats zeroes the cumulative op counters.
func (d *Driver) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = Stats{}
}

// InjectFactoryBad marks (d,p,b) bad before the FTL core initializes —
// used to simulate a factory bad block. Fault-injection/test hook only.
func (d *Driver) InjectFactoryBad(die, plane, block int) {
	d.MarkBlockBadOOB(die, plane, block)
}

// InjectRuntimeFail makes every subsequent driver op against (d,p,b)
// fail until ClearRuntimeFail is called. Fault-injection/test hook only.
func (d *Driver) InjectRuntimeFail(die, plane, block int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runtime.InjectFail(die, plane, block)
}

// ClearRuntimeFail removes a previously injected runtime failure.
func (d *Driver) ClearRuntimeFail(die, plane, block int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runtime.ClearFail(die, plane, block)
}
