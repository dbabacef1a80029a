// Command ftldemo is a thin demonstration harness over the ftlcore
// library: it constructs a simulated device from flags or a YAML
// config, runs a scripted write/read/GC sequence, and prints the
// resulting stats and page-state histogram.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/flashcore/ftlcore"
	"github.com/flashcore/ftlcore/internal/deviceconfig"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML device config; overrides the geometry flags below")
		dies       = flag.Int("dies", 1, "dies")
		planes     = flag.Int("planes", 1, "planes per die")
		blocks     = flag.Int("blocks", 8, "blocks per plane")
		pages      = flag.Int("pages", 8, "pages per block")
		resWrite   = flag.Int("reserved-write", 1, "reserved_write_per_plane")
		resSpare   = flag.Int("reserved-spare", 2, "reserved_spare_per_plane")
		totalLBAs  = flag.Int("total-lbas", 40, "exposed LBA count")
		verbose    = flag.Bool("verbose", false, "trace each successful PROGRAM")
		writes     = flag.Int("writes", 40, "number of scripted sequential writes to run")
	)
	flag.Parse()

	cfg := deviceconfig.Config{
		Dies: *dies, Planes: *planes, Blocks: *blocks, Pages: *pages,
		ReservedWritePerPlane: *resWrite, ReservedSparePerPlane: *resSpare,
		TotalLBAs: *totalLBAs,
	}
	if *configPath != "" {
		loaded, err := deviceconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("ftldemo: %v", err)
		}
		cfg = loaded
	}

	logger := log.New(os.Stdout, "ftldemo: ", log.LstdFlags)
	dev, err := ftlcore.OpenSimulated(cfg, nil, logger)
	if err != nil {
		log.Fatalf("ftldemo: %v", err)
	}
	dev.Driver().SetVerbose(*verbose)

	fmt.Printf("device %s opened: %d lbas over %d dies x %d planes x %d blocks x %d pages\n",
		dev.ID(), cfg.TotalLBAs, cfg.Dies, cfg.Planes, cfg.Blocks, cfg.Pages)

	n := *writes
	if n > cfg.TotalLBAs {
		n = cfg.TotalLBAs
	}
	for lba := 0; lba < n; lba++ {
		data := []byte(fmt.Sprintf("payload-%d", lba))
		if err := dev.Write(lba, data); err != nil {
			fmt.Printf("write(%d) failed: %v\n", lba, err)
			continue
		}
		if _, err := dev.Read(lba); err != nil {
			fmt.Printf("read(%d) after write failed: %v\n", lba, err)
		}
	}

	if result, err := dev.RunGC(); err != nil {
		fmt.Printf("gc: %v\n", err)
	} else {
		fmt.Printf("gc reclaimed block [%d:%d:%d], relocated %d pages\n", result.Die, result.Plane, result.Block, result.Relocated)
	}

	stats := dev.Stats()
	fmt.Printf("stats: read=%d program=%d erase=%d failed=%d bad_blocks=%d\n",
		stats.ReadOps, stats.ProgramOps, stats.EraseOps, stats.FailedOps, stats.BadBlocks)

	counts := map[string]int{}
	for _, s := range dev.PageStates() {
		counts[s.String()]++
	}
	fmt.Printf("page states: empty=%d valid=%d invalid=%d\n", counts["EMPTY"], counts["VALID"], counts["INVALID"])
}
