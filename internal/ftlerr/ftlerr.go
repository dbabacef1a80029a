// Package ftlerr defines the sentinel errors surfaced across the FTL
// core's package boundary. Callers use errors.Is against these, the same
// way a storage package checks os.ErrNotExist / io.EOF rather than
// inventing a custom error type hierarchy.
package ftlerr

import "errors"

var (
	// ErrBadLBA is returned when a caller addresses an LBA outside
	// [0, total_lbas).
	ErrBadLBA = errors.New("ftl: lba out of range")

	// ErrUnmapped is returned by Read when the LBA has no live mapping
	// (never written, or its last write lost to ProgramFailed).
	ErrUnmapped = errors.New("ftl: lba is unmapped")

	// ErrNoSpace is returned when page allocation fails even after a
	// garbage-collection pass.
	ErrNoSpace = errors.New("ftl: no free page available")

	// ErrProgramFailed is returned when two consecutive PROGRAM attempts
	// for a single logical write both failed.
	ErrProgramFailed = errors.New("ftl: program failed twice, write lost")

	// ErrNoVictim is returned by the garbage collector when no
	// reclaimable block exists (every block is the open write cursor or
	// bad). Blocks with no valid pages still count as reclaimable.
	ErrNoVictim = errors.New("ftl: no gc victim available")
)
