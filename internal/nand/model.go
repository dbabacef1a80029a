// Package nand simulates the physical NAND array and the driver façade
// that executes READ/PROGRAM/ERASE against it. The FTL core depends on
// its interface, never its internals; persistent bad-block-table reload
// is explicitly out of scope — the model only exists so the core has
// something to drive in tests and the demo CLI.
//
// A Page carries an opaque data payload plus three OOB fields (LBA, a
// monotonic sequence number, and a bad-block mark), held in per-die
// per-plane per-block slices.
package nand

// oobGood and oobBad are the raw OOB bad-block mark values; the per-page
// VALID/INVALID/EMPTY tracking belongs to the FTL core (internal/ftl),
// not to the physical model.
const (
	oobGood uint8 = 0xFF
	oobBad  uint8 = 0x00
)

// Page is a single physical NAND page: an opaque payload plus its
// out-of-band metadata.
type Page struct {
	Data   []byte
	OOBLBA int32  // -1 = none
	OOBSeq uint64
	OOBBad uint8 // 0xFF good, 0x00 bad — only meaningful on pages 0/1 of a block
}

// Block is a fixed-size run of pages sharing one erase unit.
type Block struct {
	Pages []Page
}

func newBlock(pagesPerBlock int) Block {
	pages := make([]Page, pagesPerBlock)
	for i := range pages {
		pages[i].OOBLBA = -1
		pages[i].OOBBad = oobGood
	}
	return Block{Pages: pages}
}

// Plane is a fixed-size run of blocks.
type Plane struct {
	Blocks []Block
}

func newPlane(pagesPerBlock, blocksPerPlane int) Plane {
	blocks := make([]Block, blocksPerPlane)
	for i := range blocks {
		blocks[i] = newBlock(pagesPerBlock)
	}
	return Plane{Blocks: blocks}
}

// Die is a fixed-size run of planes.
type Die struct {
	Planes []Plane
}

func newDie(pagesPerBlock, blocksPerPlane, planesPerDie int) Die {
	planes := make([]Plane, planesPerDie)
	for i := range planes {
		planes[i] = newPlane(pagesPerBlock, blocksPerPlane)
	}
	return Die{Planes: planes}
}

// Model is the purely-physical NAND array: no wear tracking, no bad-block
// bookkeeping beyond the raw OOB mark. That bookkeeping lives in Runtime.
type Model struct {
	PagesPerBlock  int
	BlocksPerPlane int
	PlanesPerDie   int
	DiesPerNand    int
	Dies           []Die
}

// NewModel allocates an erased physical array of the given geometry:
// every page has no data, OOB LBA -1, and a good bad-block mark.
func NewModel(diesPerNand, planesPerDie, blocksPerPlane, pagesPerBlock int) *Model {
	m := &Model{
		PagesPerBlock:  pagesPerBlock,
		BlocksPerPlane: blocksPerPlane,
		PlanesPerDie:   planesPerDie,
		DiesPerNand:    diesPerNand,
	}
	m.Dies = make([]Die, diesPerNand)
	for i := range m.Dies {
		m.Dies[i] = newDie(pagesPerBlock, blocksPerPlane, planesPerDie)
	}
	return m
}

func (m *Model) page(d, p, b, g int) *Page {
	return &m.Dies[d].Planes[p].Blocks[b].Pages[g]
}
