package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rtio.go/pkg/framework"
	"github.com/robotalks/rtio.go/pkg/hw"
)

// DefaultPort is the TCP port the analyzer listens on.
const DefaultPort = 1382

// ErrArmed indicates the capture buffer is owned by the DMA engine and
// must not be read.
var ErrArmed = errors.New("analyzer armed")

// DumpReport summarizes one arm/disarm cycle served to a client.
type DumpReport struct {
	Time     time.Time
	Remote   string
	Header   Header
	Duration time.Duration
	Err      error
}

// Reporter is notified after each dump.
type Reporter interface {
	ReportDump(DumpReport)
}

// ReportDumpFunc is the func form of Reporter.
type ReportDumpFunc func(DumpReport)

// ReportDump implements Reporter.
func (f ReportDumpFunc) ReportDump(r DumpReport) {
	f(r)
}

// Engine controls the capture DMA engine and streams snapshots.
//
// The capture buffer is either armed (written by hardware) or owned
// (readable by software); Engine holds exactly one of the two tokens.
type Engine struct {
	// Listener accepts analyzer clients, used by Run.
	Listener net.Listener
	// LogChannel is reported in the dump header.
	LogChannel uint8
	// Reporter is optional.
	Reporter Reporter

	regs  hw.Registers
	cache hw.Cache
	armed *Armed
	owned *Owned
}

// NewEngine creates an Engine over a software-owned capture buffer.
func NewEngine(regs hw.Registers, cache hw.Cache, buf *Owned) *Engine {
	return &Engine{regs: regs, cache: cache, owned: buf}
}

// Name implements Named.
func (e *Engine) Name() string {
	return "analyzer"
}

// IsArmed indicates the capture engine owns the buffer.
func (e *Engine) IsArmed() bool {
	return e.armed != nil
}

// Arm starts capturing from the beginning of the buffer.
func (e *Engine) Arm() {
	if e.owned != nil {
		e.armed = e.owned.handOver()
		e.owned = nil
	}
	e.regs.Write(hw.AnalyzerOverflowReset, 1)
	e.regs.Write(hw.AnalyzerDMABase, e.armed.Base())
	e.regs.Write(hw.AnalyzerDMALast, e.armed.Last())
	e.regs.Write(hw.AnalyzerDMAReset, 1)
	e.regs.Write(hw.AnalyzerEnable, 1)
}

// Disarm stops capturing and waits for the DMA engine to drain.
// There is no timeout: a capture engine which never goes idle hangs the
// caller.
func (e *Engine) Disarm() {
	e.regs.Write(hw.AnalyzerEnable, 0)
	for e.regs.Read(hw.AnalyzerBusy) != 0 {
	}
	e.cache.FlushCPUDCache()
	e.cache.FlushL2Cache()
	if e.armed != nil {
		e.owned = e.armed.reclaim()
		e.armed = nil
	}
}

// SnapshotAndSend writes the header and the captured data to w.
// It must be called while disarmed. The first write error aborts the dump.
func (e *Engine) SnapshotAndSend(w io.Writer) (Header, error) {
	if e.owned == nil {
		return Header{}, ErrArmed
	}
	overflow := e.regs.Read(hw.AnalyzerOverflow) != 0
	total := e.regs.Read(hw.AnalyzerDMAByteCount)
	hdr, segments := Snapshot(e.owned.Bytes(), total, overflow, e.LogChannel)
	glog.V(2).Infof("analyzer: %v", hdr)

	if _, err := hdr.WriteTo(w); err != nil {
		return hdr, fmt.Errorf("write header: %w", err)
	}
	for _, seg := range segments {
		if _, err := w.Write(seg); err != nil {
			return hdr, fmt.Errorf("write data: %w", err)
		}
	}
	return hdr, nil
}

// Run implements Runnable. Each cycle arms the capture, waits for a client,
// disarms and sends the snapshot. Client failures do not stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, e.Listener, func() error {
		for {
			e.Arm()
			conn, err := e.Listener.Accept()
			if err != nil {
				return fmt.Errorf("analyzer accept: %w", err)
			}
			e.serve(conn)
		}
	})
}

func (e *Engine) serve(conn net.Conn) {
	report := DumpReport{Time: time.Now(), Remote: remoteAddr(conn)}
	glog.Infof("analyzer: connection from %s", report.Remote)

	e.Disarm()
	report.Header, report.Err = e.SnapshotAndSend(conn)
	conn.Close()
	report.Duration = time.Since(report.Time)

	if report.Err != nil {
		glog.Errorf("analyzer aborted: %v", report.Err)
	}
	if r := e.Reporter; r != nil {
		r.ReportDump(report)
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
