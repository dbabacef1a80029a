package allocator

// cursor models a plane's write cursor as a tagged sum type rather than
// a sentinel -1: Closed, or Open{vbn, nextPage}.
type cursor struct {
	open     bool
	vbn      int
	nextPage int
}

func closedCursor() cursor { return cursor{} }

// hasCapacity reports whether the cursor is open and has at least one
// more page to hand out in this block.
func (c cursor) hasCapacity(pagesPerBlock int) bool {
	return c.open && c.nextPage < pagesPerBlock
}
