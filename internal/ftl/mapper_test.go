package ftl

import (
	"errors"
	"testing"

	"github.com/flashcore/ftlcore/internal/allocator"
	"github.com/flashcore/ftlcore/internal/ftlerr"
	"github.com/flashcore/ftlcore/internal/geometry"
	"github.com/flashcore/ftlcore/internal/nand"
)

// newMapper builds a 1-die/1-plane/blocks-block/pages-page mapper with
// the given reserved-write and reserved-spare counts, exposing totalLBAs
// logical addresses, and no factory-bad blocks.
func newMapper(t *testing.T, blocks, pages, reservedWrite, reservedSpare, totalLBAs int) (*Mapper, *nand.Driver, *nand.Runtime) {
	t.Helper()
	return newMapperWithFactoryBad(t, blocks, pages, reservedWrite, reservedSpare, totalLBAs, func(d, p, b int) bool { return false })
}

// newMapperWithFactoryBad is newMapper with a caller-supplied factory
// bad-block predicate. It seeds the runtime's bad-block-table mirror from
// isBad before partitioning the plane, exactly as device construction
// does, so a factory-bad VBN is BBT-flagged from the start rather than
// only known to the allocator's remap table.
func newMapperWithFactoryBad(t *testing.T, blocks, pages, reservedWrite, reservedSpare, totalLBAs int, isBad func(d, p, b int) bool) (*Mapper, *nand.Driver, *nand.Runtime) {
	t.Helper()
	geo, err := geometry.New(1, 1, blocks, pages)
	if err != nil {
		t.Fatal(err)
	}
	model := nand.NewModel(1, 1, blocks, pages)
	rt := nand.NewRuntime(1, 1, blocks)
	drv := nand.NewDriver(model, rt, nil)
	for b := 0; b < blocks; b++ {
		rt.SetBad(0, 0, b, isBad(0, 0, b))
	}
	alloc := allocator.New(geo, rt, reservedWrite, reservedSpare)
	alloc.InitFromBBT(isBad)
	return New(geo, alloc, drv, rt, totalLBAs, nil), drv, rt
}

// checkMapperInvariants walks L2P, P2L and pstate and fails t if any of
// the testable consistency invariants don't hold:
//  1. l2p[lba] != unmapped => pstate[l2p[lba]] == Valid
//  2. l2p[lba] != unmapped => p2l[l2p[lba]] == lba
//  3. pstate[pba] == Valid => p2l[pba] != unmapped && l2p[p2l[pba]] == pba
//  4. pstate[pba] != Valid => p2l[pba] == unmapped
func checkMapperInvariants(t *testing.T, m *Mapper) {
	t.Helper()
	for lba, pba := range m.l2p {
		if pba == unmapped {
			continue
		}
		if m.pstate[pba] != Valid {
			t.Fatalf("l2p[%d]=%d but pstate[%d]=%v, want Valid", lba, pba, pba, m.pstate[pba])
		}
		if int(m.p2l[pba]) != lba {
			t.Fatalf("l2p[%d]=%d but p2l[%d]=%d, want %d", lba, pba, pba, m.p2l[pba], lba)
		}
	}
	for pba, st := range m.pstate {
		lba := m.p2l[pba]
		if st == Valid {
			if lba == unmapped {
				t.Fatalf("pstate[%d]=Valid but p2l[%d]=unmapped", pba, pba)
			}
			if int(m.l2p[lba]) != pba {
				t.Fatalf("pstate[%d]=Valid, p2l[%d]=%d, but l2p[%d]=%d", pba, pba, lba, lba, m.l2p[lba])
			}
		} else if lba != unmapped {
			t.Fatalf("pstate[%d]=%v but p2l[%d]=%d, want unmapped", pba, st, pba, lba)
		}
	}
}

func TestMapperWriteThenReadRoundTrips(t *testing.T) {
	m, _, _ := newMapper(t, 4, 4, 0, 0, 16)
	if err := m.Write(0, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := m.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("read = %q, want hello", got)
	}
}

func TestMapperOverwriteInvalidatesOldPage(t *testing.T) {
	m, _, _ := newMapper(t, 4, 4, 0, 0, 16)
	if err := m.Write(0, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	firstPBA := m.l2p[0]
	if err := m.Write(0, []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if m.pstate[firstPBA] != Invalid {
		t.Fatalf("old pba %d state = %v, want Invalid", firstPBA, m.pstate[firstPBA])
	}
	if m.pstate[m.l2p[0]] != Valid {
		t.Fatal("new mapping not Valid")
	}
}

func TestMapperReadUnmappedReturnsErrUnmapped(t *testing.T) {
	m, _, _ := newMapper(t, 4, 4, 0, 0, 16)
	if _, err := m.Read(3); !errors.Is(err, ftlerr.ErrUnmapped) {
		t.Fatalf("err = %v, want ErrUnmapped", err)
	}
}

func TestMapperBadLBABounds(t *testing.T) {
	m, _, _ := newMapper(t, 4, 4, 0, 0, 16)
	if err := m.Write(-1, []byte("x")); !errors.Is(err, ftlerr.ErrBadLBA) {
		t.Fatalf("write(-1) = %v, want ErrBadLBA", err)
	}
	if err := m.Write(16, []byte("x")); !errors.Is(err, ftlerr.ErrBadLBA) {
		t.Fatalf("write(16) = %v, want ErrBadLBA", err)
	}
	if _, err := m.Read(16); !errors.Is(err, ftlerr.ErrBadLBA) {
		t.Fatalf("read(16) = %v, want ErrBadLBA", err)
	}
}

func TestMapperProgramFailureRetiresBlockAndRetries(t *testing.T) {
	m, drv, rt := newMapper(t, 4, 4, 1, 1, 8)
	// Force the very first PROGRAM to fail, simulating a grown bad
	// block discovered mid-write; the retry must land on a different
	// block and still succeed.
	drv.InjectRuntimeFail(0, 0, 0)

	if err := m.Write(0, []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !rt.IsBadAt(rt.Idx(0, 0, 0)) {
		t.Fatal("block 0 not marked bad after injected failure")
	}
	got, err := m.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("read = %q, want payload", got)
	}
	// The retired block's original pba must not still be live.
	d, p, b, g := m.geo.Decompose(int(m.l2p[0]))
	if d == 0 && p == 0 && b == 0 {
		t.Fatalf("retry landed back on the retired block, page %d", g)
	}
}

func TestEraseBlockTxnResetsPageStateAndReturnsVBNToPool(t *testing.T) {
	m, _, _ := newMapper(t, 4, 2, 0, 0, 8)
	if err := m.Write(0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(1, []byte("b")); err != nil {
		t.Fatal(err)
	}
	d, p, b, _ := m.geo.Decompose(int(m.l2p[0]))
	freeBefore, _, _ := m.alloc.PoolSizes(d, p)

	m.eraseBlockTxn(d, p, b)

	start := m.geo.PBA(d, p, b, 0)
	for g := 0; g < m.geo.Pages; g++ {
		if m.pstate[start+g] != Empty {
			t.Fatalf("page %d state = %v after erase, want Empty", g, m.pstate[start+g])
		}
		if m.p2l[start+g] != unmapped {
			t.Fatalf("page %d p2l = %d after erase, want unmapped", g, m.p2l[start+g])
		}
	}
	freeAfter, _, _ := m.alloc.PoolSizes(d, p)
	if freeAfter != freeBefore+1 {
		t.Fatalf("free pool size = %d after erase, want %d", freeAfter, freeBefore+1)
	}
}

// TestMapperInvariantsHoldAfterOverwrites sweeps every L2P/P2L/pstate
// consistency invariant after a run of overwrites with ample free-pool
// headroom. It would have caught a demotion path that cleared
// pstate/p2l but left l2p pointing at the stale, now-Invalid page.
func TestMapperInvariantsHoldAfterOverwrites(t *testing.T) {
	m, _, _ := newMapper(t, 6, 2, 2, 0, 6)
	for lba := 0; lba < 6; lba++ {
		if err := m.Write(lba, []byte("x")); err != nil {
			t.Fatalf("write %d: %v", lba, err)
		}
	}
	checkMapperInvariants(t, m)

	for lba := 0; lba < 3; lba++ {
		if err := m.Write(lba, []byte("y")); err != nil {
			t.Fatalf("overwrite %d: %v", lba, err)
		}
	}
	checkMapperInvariants(t, m)
}

// TestMapperInvariantsHoldAfterProgramFailure re-runs the retire-and-retry
// scenario from TestMapperProgramFailureRetiresBlockAndRetries and sweeps
// invariants afterward.
func TestMapperInvariantsHoldAfterProgramFailure(t *testing.T) {
	m, drv, _ := newMapper(t, 4, 4, 1, 1, 8)
	drv.InjectRuntimeFail(0, 0, 0)
	if err := m.Write(0, []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	checkMapperInvariants(t, m)
}

// TestMapperInvariantsHoldAfterGC re-runs the victim-selection scenario
// from TestRunGCPicksBlockWithFewestValidPages and sweeps invariants
// after the GC pass relocates and erases.
func TestMapperInvariantsHoldAfterGC(t *testing.T) {
	m, _, _ := newMapper(t, 5, 2, 1, 0, 8)
	for lba := 0; lba < 8; lba++ {
		if err := m.Write(lba, []byte("x")); err != nil {
			t.Fatalf("write %d: %v", lba, err)
		}
	}
	if err := m.Write(0, []byte("y")); err != nil {
		t.Fatalf("overwrite 0: %v", err)
	}
	checkMapperInvariants(t, m)

	if _, err := m.RunGC(); err != nil {
		t.Fatalf("gc: %v", err)
	}
	checkMapperInvariants(t, m)
}

// TestRunGCNeverSelectsFactoryBadBlockWithNoSpare reproduces the scenario
// where a factory-bad block has no reserved spare to remap onto: it is
// retired (remap stays identity) rather than folded into the free pool.
// Without the runtime's bad-block-table mirror seeded from the factory
// predicate at construction, selectVictim sees this retired block as
// BBT-good with zero valid pages and wrongly picks it over real
// reclaimable blocks, corrupting the pool partition when eraseBlockTxn's
// failed ERASE triggers an unwarranted RemapGrownBad.
func TestRunGCNeverSelectsFactoryBadBlockWithNoSpare(t *testing.T) {
	isBad := func(d, p, b int) bool { return d == 0 && p == 0 && b == 0 }
	m, _, rt := newMapperWithFactoryBad(t, 5, 2, 1, 0, 8, isBad)

	if !rt.IsBadAt(rt.Idx(0, 0, 0)) {
		t.Fatal("bad-block-table mirror not seeded for factory-bad block 0")
	}

	for lba := 0; lba < 6; lba++ {
		if err := m.Write(lba, []byte("x")); err != nil {
			t.Fatalf("write %d: %v", lba, err)
		}
	}
	// Invalidate one page of a real block so a genuine victim with fewer
	// valid pages than a freshly-written block exists.
	if err := m.Write(2, []byte("y")); err != nil {
		t.Fatalf("overwrite 2: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := m.RunGC()
		if err == ftlerr.ErrNoVictim {
			break
		}
		if err != nil {
			t.Fatalf("gc pass %d: %v", i, err)
		}
		if result.Plane == 0 && result.Block == 0 {
			t.Fatalf("gc pass %d selected the retired factory-bad block as its victim", i)
		}
	}
	checkMapperInvariants(t, m)
}
