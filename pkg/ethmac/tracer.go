package ethmac

import (
	"fmt"
	"net"
	"strings"

	"github.com/golang/glog"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Direction of a traced frame.
type Direction string

// Directions.
const (
	DirRX Direction = "rx"
	DirTX Direction = "tx"
)

// TraceFunc receives traced frames.
type TraceFunc func(dir Direction, frame []byte)

// Tracer wraps a Driver and reports every frame going through it.
type Tracer struct {
	Driver
	Trace TraceFunc
}

// NewTracer creates a Tracer logging decoded frames at verbosity 5.
func NewTracer(d Driver) *Tracer {
	return &Tracer{Driver: d, Trace: logFrame}
}

// Receive implements Driver.
func (t *Tracer) Receive() (RxView, error) {
	v, err := t.Driver.Receive()
	if err == nil && t.Trace != nil {
		t.Trace(DirRX, v.Bytes())
	}
	return v, err
}

// Transmit implements Driver. The frame is traced when released.
func (t *Tracer) Transmit(length int) (*TxBuffer, error) {
	b, err := t.Driver.Transmit(length)
	if err == nil && t.Trace != nil {
		b.OnRelease(func(frame []byte) { t.Trace(DirTX, frame) })
	}
	return b, err
}

func logFrame(dir Direction, frame []byte) {
	if glog.V(5) {
		glog.Infof("%s %s", dir, FormatFrame(frame))
	}
}

// FormatFrame decodes an Ethernet frame into a one-line summary.
func FormatFrame(frame []byte) string {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	var parts []string
	for _, layer := range pkt.Layers() {
		switch l := layer.(type) {
		case *layers.Ethernet:
			parts = append(parts, fmt.Sprintf("eth %s > %s", l.SrcMAC, l.DstMAC))
		case *layers.ARP:
			op := "request"
			if l.Operation == layers.ARPReply {
				op = "reply"
			}
			parts = append(parts, fmt.Sprintf("arp %s %s > %s", op,
				net.IP(l.SourceProtAddress), net.IP(l.DstProtAddress)))
		case *layers.IPv4:
			parts = append(parts, fmt.Sprintf("ipv4 %s > %s", l.SrcIP, l.DstIP))
		case *layers.TCP:
			parts = append(parts, fmt.Sprintf("tcp %d > %d seq=%d ack=%d len=%d",
				l.SrcPort, l.DstPort, l.Seq, l.Ack, len(l.Payload)))
		case *layers.ICMPv4:
			parts = append(parts, fmt.Sprintf("icmp %s", l.TypeCode))
		case *gopacket.Payload:
		default:
			parts = append(parts, layer.LayerType().String())
		}
	}
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		parts = append(parts, "error: "+errLayer.Error().Error())
	}
	return strings.Join(parts, " | ")
}
