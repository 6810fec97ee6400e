package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/rtio.go/pkg/firmware"
	fx "github.com/robotalks/rtio.go/pkg/framework"
	"github.com/robotalks/rtio.go/pkg/hw"
	"github.com/robotalks/rtio.go/pkg/hw/mmio"
	"github.com/robotalks/rtio.go/pkg/hw/sim"
)

var (
	csrPath   = "/etc/rtio/csr.csv"
	boardOpts = mmio.DefaultOptions()
	simulate  bool
)

func init() {
	if val := os.Getenv("RTIO_CSR"); val != "" {
		csrPath = val
	}
	firmware.SetupFlags()
	flag.StringVar(&csrPath, "csr", csrPath, "CSR map (csr.csv) of the gateware")
	flag.StringVar(&boardOpts.MemPath, "mem", boardOpts.MemPath, "Physical memory device")
	flag.IntVar(&boardOpts.CSRDataWidth, "csr-data-width", boardOpts.CSRDataWidth, "Bits per CSR word")
	flag.StringVar(&boardOpts.EthmacRegion, "ethmac-region", boardOpts.EthmacRegion, "Memory region of the Ethernet MAC SRAM")
	flag.StringVar(&boardOpts.DMARegion, "dma-region", boardOpts.DMARegion, "Memory region reserved for the analyzer buffer")
	flag.BoolVar(&simulate, "sim", simulate, "Run on a simulated board")
}

func openBoard() (hw.Board, func()) {
	if simulate {
		glog.Warning("running on a simulated board")
		return sim.NewBoard(), func() {}
	}
	m, err := mmio.LoadMap(csrPath)
	if err != nil {
		glog.Fatalf("load CSR map: %v", err)
	}
	board, err := mmio.Open(m, boardOpts)
	if err != nil {
		glog.Fatalf("open board: %v", err)
	}
	return board, func() { board.Close() }
}

func main() {
	flag.Parse()
	defer glog.Flush()

	board, closeBoard := openBoard()
	defer closeBoard()
	fw := firmware.Default().MustNewFirmware(board)
	defer fw.Close()

	runner := fx.NewRunner().HandleSignals()
	fx.NewLoop().Add(fw).RunOrFail(runner.Context)
}
