// Package metrics exports NAND driver and allocator statistics as
// Prometheus metrics, generalizing the allocation/release counter shape
// used elsewhere in the ecosystem for block-oriented storage allocators
// to per-block-state granularity.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flashcore/ftlcore/internal/allocator"
	"github.com/flashcore/ftlcore/internal/geometry"
	"github.com/flashcore/ftlcore/internal/nand"
)

// Collector is a prometheus.Collector pulling live values from a
// device's driver and allocator at scrape time, rather than maintaining
// its own counters — the driver and allocator already own authoritative
// state.
type Collector struct {
	deviceID string
	drv      *nand.Driver
	alloc    *allocator.BlockAllocator
	geo      geometry.Geometry

	readOps       *prometheus.Desc
	programOps    *prometheus.Desc
	eraseOps      *prometheus.Desc
	failedOps     *prometheus.Desc
	badBlocks     *prometheus.Desc
	poolFree      *prometheus.Desc
	poolResWrite  *prometheus.Desc
	poolResSpare  *prometheus.Desc
	eraseCountMax *prometheus.Desc
}

// NewCollector builds a Collector for one device's driver+allocator
// pair. Register it with a prometheus.Registry to expose it.
func NewCollector(deviceID string, drv *nand.Driver, alloc *allocator.BlockAllocator, geo geometry.Geometry) *Collector {
	const ns = "ftlcore"
	devLabel := []string{"device"}
	planeLabels := []string{"device", "die", "plane"}
	return &Collector{
		deviceID: deviceID,
		drv:      drv,
		alloc:    alloc,
		geo:      geo,
		readOps:       prometheus.NewDesc(ns+"_read_ops_total", "Cumulative READ operations submitted to the driver.", devLabel, nil),
		programOps:    prometheus.NewDesc(ns+"_program_ops_total", "Cumulative PROGRAM operations submitted to the driver.", devLabel, nil),
		eraseOps:      prometheus.NewDesc(ns+"_erase_ops_total", "Cumulative ERASE operations submitted to the driver.", devLabel, nil),
		failedOps:     prometheus.NewDesc(ns+"_failed_ops_total", "Cumulative failed driver operations.", devLabel, nil),
		badBlocks:     prometheus.NewDesc(ns+"_bad_blocks_detected_total", "Cumulative bad blocks detected by the driver.", devLabel, nil),
		poolFree:      prometheus.NewDesc(ns+"_pool_free_vbns", "Current size of the free VBN pool.", planeLabels, nil),
		poolResWrite:  prometheus.NewDesc(ns+"_pool_reserved_write_vbns", "Current size of the reserved-write VBN pool.", planeLabels, nil),
		poolResSpare:  prometheus.NewDesc(ns+"_pool_reserved_spare_pbns", "Current size of the reserved-spare PBN pool.", planeLabels, nil),
		eraseCountMax: prometheus.NewDesc(ns+"_erase_count_max", "Maximum erase count observed across non-bad physical blocks.", devLabel, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.readOps
	ch <- c.programOps
	ch <- c.eraseOps
	ch <- c.failedOps
	ch <- c.badBlocks
	ch <- c.poolFree
	ch <- c.poolResWrite
	ch <- c.poolResSpare
	ch <- c.eraseCountMax
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.drv.Stats()
	ch <- prometheus.MustNewConstMetric(c.readOps, prometheus.CounterValue, float64(st.ReadOps), c.deviceID)
	ch <- prometheus.MustNewConstMetric(c.programOps, prometheus.CounterValue, float64(st.ProgramOps), c.deviceID)
	ch <- prometheus.MustNewConstMetric(c.eraseOps, prometheus.CounterValue, float64(st.EraseOps), c.deviceID)
	ch <- prometheus.MustNewConstMetric(c.failedOps, prometheus.CounterValue, float64(st.FailedOps), c.deviceID)
	ch <- prometheus.MustNewConstMetric(c.badBlocks, prometheus.CounterValue, float64(st.BadBlocksDetected), c.deviceID)

	var maxEC uint32
	for d := 0; d < c.geo.Dies; d++ {
		for p := 0; p < c.geo.Planes; p++ {
			free, resWrite, resSpare := c.alloc.PoolSizes(d, p)
			dl := strconv.Itoa(d)
			pl := strconv.Itoa(p)
			ch <- prometheus.MustNewConstMetric(c.poolFree, prometheus.GaugeValue, float64(free), c.deviceID, dl, pl)
			ch <- prometheus.MustNewConstMetric(c.poolResWrite, prometheus.GaugeValue, float64(resWrite), c.deviceID, dl, pl)
			ch <- prometheus.MustNewConstMetric(c.poolResSpare, prometheus.GaugeValue, float64(resSpare), c.deviceID, dl, pl)
			for b := 0; b < c.geo.Blocks; b++ {
				if c.drv.IsBlockBad(d, p, b) {
					continue
				}
				if ec := c.drv.GetEraseCount(d, p, b); ec > maxEC {
					maxEC = ec
				}
			}
		}
	}
	ch <- prometheus.MustNewConstMetric(c.eraseCountMax, prometheus.GaugeValue, float64(maxEC), c.deviceID)
}
