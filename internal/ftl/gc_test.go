package ftl

import (
	"testing"

	"github.com/flashcore/ftlcore/internal/ftlerr"
)

func TestRunGCNoVictimOnFreshDevice(t *testing.T) {
	// A single-block plane has exactly one candidate block, and it is
	// always the open cursor — there is no other block index for GC to
	// consider, so it must report ErrNoVictim rather than reclaiming the
	// block currently being written.
	m, _, _ := newMapper(t, 1, 4, 0, 0, 4)
	_, err := m.RunGC()
	if err != ftlerr.ErrNoVictim {
		t.Fatalf("err = %v, want ErrNoVictim", err)
	}
}

func TestRunGCPicksBlockWithFewestValidPages(t *testing.T) {
	// Five 2-page blocks, one reserved for write overflow; writing 8
	// sequential lbas cycles through and fully fills every free block
	// (vbn 0..3), leaving no untouched block to confound victim
	// selection. Overwriting lba 0 alone invalidates exactly one of
	// block 0's two pages and opens the reserved-write block as the new
	// cursor, leaving block 0 (1 valid page) strictly below every other
	// block (2 valid pages, or excluded as the open cursor).
	m, _, _ := newMapper(t, 5, 2, 1, 0, 8)
	for lba := 0; lba < 8; lba++ {
		if err := m.Write(lba, []byte("x")); err != nil {
			t.Fatalf("write %d: %v", lba, err)
		}
	}
	if err := m.Write(0, []byte("y")); err != nil {
		t.Fatalf("overwrite 0: %v", err)
	}

	result, err := m.RunGC()
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if result.Block != 0 {
		t.Fatalf("gc picked block %d, want block 0", result.Block)
	}
	if result.Relocated != 1 {
		t.Fatalf("relocated = %d, want 1", result.Relocated)
	}
	got, err := m.Read(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "x" {
		t.Fatalf("read(1) after gc = %q, want x", got)
	}
}

func TestRunGCExcludesOpenCursorBlock(t *testing.T) {
	m, _, _ := newMapper(t, 3, 4, 0, 0, 12)
	// Block 0 (vbn 0) is the open cursor with a single valid page; it
	// must never be selected as its own victim.
	if err := m.Write(0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	result, err := m.RunGC()
	if err == nil && result.Block == 0 {
		t.Fatal("gc selected the currently open block as its victim")
	}
}

func TestRunGCErasesVictimAndReturnsItToFreePool(t *testing.T) {
	m, _, _ := newMapper(t, 4, 4, 1, 0, 16)
	for lba := 0; lba < 4; lba++ {
		if err := m.Write(lba, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	for lba := 0; lba < 4; lba++ {
		if err := m.Write(lba, []byte("y")); err != nil {
			t.Fatal(err)
		}
	}
	// Block 0 is now fully invalid (every lba overwritten once); it
	// should be reclaimed with zero relocations.
	freeBefore, _, _ := m.alloc.PoolSizes(0, 0)
	result, err := m.RunGC()
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if result.Relocated != 0 {
		t.Fatalf("relocated = %d, want 0 for a fully-invalid victim", result.Relocated)
	}
	freeAfter, _, _ := m.alloc.PoolSizes(0, 0)
	if freeAfter != freeBefore+1 {
		t.Fatalf("free pool size = %d after gc, want %d", freeAfter, freeBefore+1)
	}
	start := m.geo.PBA(0, 0, result.Block, 0)
	for g := 0; g < m.geo.Pages; g++ {
		if m.pstate[start+g] != Empty {
			t.Fatalf("victim page %d state = %v after gc, want Empty", g, m.pstate[start+g])
		}
	}
}
