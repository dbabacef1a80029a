// Package ftlcore is a NAND Flash Translation Layer core: it presents a
// linear logical-block-address space to a host while mapping writes
// onto a physical array of dies/planes/blocks/pages, handling wear
// leveling, bad-block substitution, and garbage collection internally.
package ftlcore

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/flashcore/ftlcore/internal/allocator"
	"github.com/flashcore/ftlcore/internal/deviceconfig"
	"github.com/flashcore/ftlcore/internal/ftl"
	"github.com/flashcore/ftlcore/internal/geometry"
	"github.com/flashcore/ftlcore/internal/nand"
)

// Device wires the NAND driver, block allocator, and FTL mapper into a
// single entry point, serializing all operations under one mutex — the
// core assumes single-writer semantics internally, but a Device may be
// called from multiple goroutines.
type Device struct {
	mu sync.Mutex

	id     uuid.UUID
	geo    geometry.Geometry
	drv    *nand.Driver
	rt     *nand.Runtime
	alloc  *allocator.BlockAllocator
	mapper *ftl.Mapper
	logger *log.Logger
}

// IsBadBlockFunc reports whether physical block (d,p,b) is bad prior to
// device initialization — the "supplied is_bad_block predicate" the core
// boots from, since persistent BBT reload is out of scope.
type IsBadBlockFunc func(d, p, b int) bool

// Open constructs a Device from cfg, a driver already wired to a
// physical model, and the factory-bad-block predicate. Callers that
// only need a bare model for tests can use OpenSimulated instead.
func Open(cfg deviceconfig.Config, drv *nand.Driver, rt *nand.Runtime, isBad IsBadBlockFunc, logger *log.Logger) (*Device, error) {
	if logger == nil {
		logger = log.Default()
	}
	geo, err := geometry.New(cfg.Dies, cfg.Planes, cfg.Blocks, cfg.Pages)
	if err != nil {
		return nil, fmt.Errorf("ftlcore: open: %w", err)
	}

	isFactoryBad := func(d, p, b int) bool {
		if isBad != nil && isBad(d, p, b) {
			return true
		}
		return drv.IsBlockBad(d, p, b)
	}

	// Seed the bad-block-table mirror from the factory predicate before
	// the allocator partitions the plane. Without this, the mirror starts
	// all-false and a retired factory-bad VBN (remap == identity) looks
	// BBT-good to the garbage collector.
	for d := 0; d < geo.Dies; d++ {
		for p := 0; p < geo.Planes; p++ {
			for b := 0; b < geo.Blocks; b++ {
				rt.SetBad(d, p, b, isFactoryBad(d, p, b))
			}
		}
	}

	alloc := allocator.New(geo, rt, cfg.ReservedWritePerPlane, cfg.ReservedSparePerPlane)
	alloc.InitFromBBT(isFactoryBad)

	mapper := ftl.New(geo, alloc, drv, rt, cfg.TotalLBAs, logger)

	return &Device{
		id:     uuid.New(),
		geo:    geo,
		drv:    drv,
		rt:     rt,
		alloc:  alloc,
		mapper: mapper,
		logger: logger,
	}, nil
}

// OpenSimulated builds a fresh in-memory NAND model and Device from cfg,
// for tests and the demo CLI that don't need to supply their own driver.
func OpenSimulated(cfg deviceconfig.Config, isBad IsBadBlockFunc, logger *log.Logger) (*Device, error) {
	model := nand.NewModel(cfg.Dies, cfg.Planes, cfg.Blocks, cfg.Pages)
	rt := nand.NewRuntime(cfg.Dies, cfg.Planes, cfg.Blocks)
	drv := nand.NewDriver(model, rt, logger)
	return Open(cfg, drv, rt, isBad, logger)
}

// ID returns the device's stable identity, for disambiguating multiple
// simulated devices in logs and metrics labels.
func (d *Device) ID() uuid.UUID { return d.id }

// Geometry returns the device's immutable geometry.
func (d *Device) Geometry() geometry.Geometry { return d.geo }

// Driver exposes the underlying NAND driver, for metrics collection and
// fault-injection in tests.
func (d *Device) Driver() *nand.Driver { return d.drv }

// Allocator exposes the underlying block allocator, for metrics
// collection.
func (d *Device) Allocator() *allocator.BlockAllocator { return d.alloc }

// Write binds lba to data.
func (d *Device) Write(lba int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapper.Write(lba, data)
}

// Read returns the data last written to lba.
func (d *Device) Read(lba int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapper.Read(lba)
}

// RunGC reclaims exactly one block.
func (d *Device) RunGC() (ftl.GCResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapper.RunGC()
}

// PageStates returns a snapshot of every physical page's state, in PBA
// order.
func (d *Device) PageStates() []ftl.PageState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapper.PageStates()
}

// DeviceStats is a structured snapshot of driver-level counters.
type DeviceStats struct {
	ID         string
	ReadOps    uint64
	ProgramOps uint64
	EraseOps   uint64
	FailedOps  uint64
	BadBlocks  uint64
}

// Stats returns a snapshot of the device's cumulative driver counters.
func (d *Device) Stats() DeviceStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.drv.Stats()
	return DeviceStats{
		ID:         d.id.String(),
		ReadOps:    st.ReadOps,
		ProgramOps: st.ProgramOps,
		EraseOps:   st.EraseOps,
		FailedOps:  st.FailedOps,
		BadBlocks:  st.BadBlocksDetected,
	}
}
