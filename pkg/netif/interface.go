// Package netif binds a TCP/IP stack to an ethmac.Driver.
//
// The stack runs in gVisor's netstack. Frames are moved between the stack
// and the device only by Poll, which is driven by the event loop; tasks use
// the blocking net.Listener and net.Conn returned by ListenTCP and DialTCP.
package netif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/link/ethernet"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/icmp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/waiter"

	fx "github.com/robotalks/rtio.go/pkg/framework"
	"github.com/robotalks/rtio.go/pkg/ethmac"
)

const (
	nicID tcpip.NICID = 1

	// outbound frames queued by the stack between two polls.
	txQueueSize = 256
	// ListenBacklog is the backlog of listeners created by ListenTCP.
	ListenBacklog = 4
)

// ErrExhausted indicates a poll made no progress.
var ErrExhausted = errors.New("network poll exhausted")

// StackError wraps an error reported by the stack.
type StackError struct {
	Op  string
	Err tcpip.Error
}

// Error implements error.
func (e *StackError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

// Stats counts the frames moved by Poll.
type Stats struct {
	RxFrames uint64
	TxFrames uint64
	TxBusy   uint64
	LastPoll time.Time
}

// Interface is a network interface over an ethmac.Driver.
type Interface struct {
	config Config
	dev    ethmac.Driver
	stack  *stack.Stack
	link   *channel.Endpoint

	// frame refused by the device, sent on the next poll.
	pending []byte

	rxFrames atomic.Uint64
	txFrames atomic.Uint64
	txBusy   atomic.Uint64
	lastPoll atomic.Int64
}

// New creates an Interface with the static identity in config.
func New(dev ethmac.Driver, config Config) (*Interface, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	link := channel.New(txQueueSize, uint32(dev.MTU()+header.EthernetMinimumSize), tcpip.LinkAddress(config.MAC))
	s := stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, icmp.NewProtocol4},
	})
	if err := s.CreateNIC(nicID, ethernet.New(link)); err != nil {
		s.Close()
		return nil, &StackError{Op: "create nic", Err: err}
	}

	ones, _ := config.Netmask.Size()
	addr := tcpip.AddressWithPrefix{
		Address:   tcpip.AddrFrom4Slice(config.IP.To4()),
		PrefixLen: ones,
	}
	if err := s.AddProtocolAddress(nicID, tcpip.ProtocolAddress{
		Protocol:          ipv4.ProtocolNumber,
		AddressWithPrefix: addr,
	}, stack.AddressProperties{}); err != nil {
		s.Close()
		return nil, &StackError{Op: "add address", Err: err}
	}

	routes := []tcpip.Route{{Destination: addr.Subnet(), NIC: nicID}}
	if config.Gateway != nil {
		routes = append(routes, tcpip.Route{
			Destination: header.IPv4EmptySubnet,
			Gateway:     tcpip.AddrFrom4Slice(config.Gateway.To4()),
			NIC:         nicID,
		})
	}
	s.SetRouteTable(routes)

	glog.Infof("network: %s mtu %d", config, dev.MTU())
	return &Interface{config: config, dev: dev, stack: s, link: link}, nil
}

// Config returns the identity of the interface.
func (i *Interface) Config() Config {
	return i.config
}

// Stats returns the frame counters.
func (i *Interface) Stats() Stats {
	s := Stats{
		RxFrames: i.rxFrames.Load(),
		TxFrames: i.txFrames.Load(),
		TxBusy:   i.txBusy.Load(),
	}
	if t := i.lastPoll.Load(); t != 0 {
		s.LastPoll = time.Unix(0, t)
	}
	return s
}

// ListenTCP listens on port on all addresses of the interface.
func (i *Interface) ListenTCP(port uint16, keepalive bool) (net.Listener, error) {
	var wq waiter.Queue
	ep, err := i.stack.NewEndpoint(tcp.ProtocolNumber, ipv4.ProtocolNumber, &wq)
	if err != nil {
		return nil, &StackError{Op: "listen", Err: err}
	}
	ep.SocketOptions().SetKeepAlive(keepalive)
	if err := ep.Bind(tcpip.FullAddress{Port: port}); err != nil {
		ep.Close()
		return nil, &StackError{Op: fmt.Sprintf("bind :%d", port), Err: err}
	}
	if err := ep.Listen(ListenBacklog); err != nil {
		ep.Close()
		return nil, &StackError{Op: fmt.Sprintf("listen :%d", port), Err: err}
	}
	return gonet.NewTCPListener(i.stack, &wq, ep), nil
}

// DialTCP connects to a remote TCP endpoint.
func (i *Interface) DialTCP(ctx context.Context, ip net.IP, port uint16) (net.Conn, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", ip)
	}
	return gonet.DialContextTCP(ctx, i.stack, tcpip.FullAddress{
		NIC:  nicID,
		Addr: tcpip.AddrFrom4Slice(ip4),
		Port: port,
	}, ipv4.ProtocolNumber)
}

// Poll performs one non-blocking pass: received frames are handed to the
// stack until the device has no more data, then queued frames are
// transmitted until the queue is empty or the device is busy.
// It returns ErrExhausted when nothing moved.
func (i *Interface) Poll(now time.Time) error {
	i.lastPoll.Store(now.UnixNano())
	progress := false
	for {
		view, err := i.dev.Receive()
		if errors.Is(err, ethmac.ErrNoData) {
			break
		}
		if err != nil {
			return err
		}
		i.inject(view.Bytes())
		progress = true
	}

	for {
		frame := i.pending
		if frame == nil {
			frame = i.dequeue()
			if frame == nil {
				break
			}
		}
		err := i.transmit(frame)
		if errors.Is(err, ethmac.ErrBusy) {
			i.pending = frame
			i.txBusy.Add(1)
			break
		}
		i.pending = nil
		if err != nil {
			return err
		}
		progress = true
	}

	if !progress {
		return ErrExhausted
	}
	return nil
}

// inject copies the frame into the stack; the view is only valid until the
// next Receive.
func (i *Interface) inject(frame []byte) {
	pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{
		Payload: buffer.MakeWithData(frame),
	})
	// the ethernet endpoint decodes the protocol from the frame.
	i.link.InjectInbound(0, pkt)
	pkt.DecRef()
	i.rxFrames.Add(1)
}

func (i *Interface) dequeue() []byte {
	pkt := i.link.Read()
	if pkt == nil {
		return nil
	}
	defer pkt.DecRef()
	view := pkt.ToView()
	defer view.Release()
	return append([]byte(nil), view.AsSlice()...)
}

func (i *Interface) transmit(frame []byte) error {
	buf, err := i.dev.Transmit(len(frame))
	if err != nil {
		return err
	}
	defer buf.Release()
	copy(buf.Bytes(), frame)
	i.txFrames.Add(1)
	return nil
}

// Name implements Named.
func (i *Interface) Name() string {
	return "netif"
}

// Control implements Controller. The next iteration is triggered right
// away while frames are moving.
func (i *Interface) Control(cc fx.ControlContext) error {
	err := i.Poll(cc.Time())
	switch {
	case err == nil:
		cc.TriggerNext()
	case errors.Is(err, ErrExhausted):
	default:
		glog.Warningf("network error: %v", err)
	}
	return nil
}

// AddToLoop implements LoopAdder. Frames queued by the stack wake up the
// loop.
func (i *Interface) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvNetwork, i)
	i.link.AddNotify(notifyFunc(l.TriggerNext))
}

// Close shuts down the stack.
func (i *Interface) Close() error {
	i.stack.Close()
	i.stack.Wait()
	return nil
}

type notifyFunc func()

// WriteNotify implements channel.Notification.
func (f notifyFunc) WriteNotify() {
	f()
}
