package allocator

// pool is an ordered collection of VBNs (or, for the spare pool, PBNs).
// It plays the role a FreeManager plays for page IDs elsewhere — a small
// owned collection with explicit alloc/free operations — but needs FIFO
// order for spare-PBN consumption and a linear wear-aware scan-and-remove
// for VBN pools, so it is a plain slice rather than a map-backed set.
type pool []int

func (p *pool) pushBack(v int) {
	*p = append(*p, v)
}

// popFront removes and returns the first element (FIFO), or false if
// empty. Used for the spare-PBN pool, where order doesn't carry wear
// information worth optimizing for.
func (p *pool) popFront() (int, bool) {
	if len(*p) == 0 {
		return 0, false
	}
	v := (*p)[0]
	*p = (*p)[1:]
	return v, true
}

func (p *pool) removeAt(i int) int {
	v := (*p)[i]
	*p = append((*p)[:i], (*p)[i+1:]...)
	return v
}

func (p pool) len() int { return len(p) }

func (p pool) contains(v int) bool {
	for _, x := range p {
		if x == v {
			return true
		}
	}
	return false
}
