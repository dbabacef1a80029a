// Package geometry computes the scalar Physical Block Address (PBA) and
// its (die, plane, block, page) decomposition for a fixed NAND geometry.
//
// A PBA is the scalar d*P*B*G + p*B*G + b*G + g. Every other package in
// this module depends on Geometry rather than recomputing the layout
// arithmetic itself.
package geometry

import "fmt"

// Geometry describes an immutable NAND address space: D dies, P
// planes/die, B blocks/plane, G pages/block.
type Geometry struct {
	Dies   int
	Planes int
	Blocks int
	Pages  int
}

// New validates and returns a Geometry. All four dimensions must be
// strictly positive.
func New(dies, planes, blocks, pages int) (Geometry, error) {
	g := Geometry{Dies: dies, Planes: planes, Blocks: blocks, Pages: pages}
	if dies <= 0 || planes <= 0 || blocks <= 0 || pages <= 0 {
		return Geometry{}, fmt.Errorf("geometry: dies=%d planes=%d blocks=%d pages=%d must all be positive", dies, planes, blocks, pages)
	}
	return g, nil
}

// PagesPerPlane is pages-per-block * blocks-per-plane.
func (g Geometry) PagesPerPlane() int { return g.Pages * g.Blocks }

// PagesPerDie is PagesPerPlane * planes-per-die.
func (g Geometry) PagesPerDie() int { return g.PagesPerPlane() * g.Planes }

// TotalPages is the total number of physical pages in the device.
func (g Geometry) TotalPages() int { return g.PagesPerDie() * g.Dies }

// PBA packs (d,p,b,g) into a scalar Physical Block Address.
func (g Geometry) PBA(d, p, b, page int) int {
	return d*g.PagesPerDie() + p*g.PagesPerPlane() + b*g.Pages + page
}

// Decompose unpacks a PBA into (d,p,b,g).
func (g Geometry) Decompose(pba int) (d, p, b, page int) {
	pplane := g.PagesPerPlane()
	pdie := g.PagesPerDie()
	d = pba / pdie
	rem := pba % pdie
	p = rem / pplane
	rem = rem % pplane
	b = rem / g.Pages
	page = rem % g.Pages
	return
}

// ValidPlane reports whether (d,p) addresses a real plane.
func (g Geometry) ValidPlane(d, p int) bool {
	return d >= 0 && d < g.Dies && p >= 0 && p < g.Planes
}

// ValidBlock reports whether (d,p,b) addresses a real block.
func (g Geometry) ValidBlock(d, p, b int) bool {
	return g.ValidPlane(d, p) && b >= 0 && b < g.Blocks
}
