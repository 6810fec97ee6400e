package netif

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/rtio.go/pkg/framework"
	"github.com/robotalks/rtio.go/pkg/ethmac"
	"github.com/robotalks/rtio.go/pkg/hw/sim"
	"github.com/robotalks/rtio.go/pkg/store"
)

var hostMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

func newTestInterface(t *testing.T, config Config) (*Interface, *sim.Board) {
	board := sim.NewBoard()
	dev, err := ethmac.NewBoardDevice(board)
	require.NoError(t, err)
	iface, err := New(dev, config)
	require.NoError(t, err)
	t.Cleanup(func() { iface.Close() })
	return iface, board
}

func arpRequest(t *testing.T, target net.IP) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       hostMAC,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   hostMAC,
		SourceProtAddress: net.IPv4(192, 168, 1, 1).To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    target.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))
	return buf.Bytes()
}

func findARPReply(frames [][]byte) *layers.ARP {
	for _, frame := range frames {
		pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
		if l, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP); ok && l.Operation == layers.ARPReply {
			return l
		}
	}
	return nil
}

// pollUntil polls until cond holds; the stack may process frames
// asynchronously.
func pollUntil(t *testing.T, iface *Interface, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not met in time")
		iface.Poll(time.Now())
		time.Sleep(time.Millisecond)
	}
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.Equal(t, "02:00:00:00:00:01 192.168.1.50/24 via 192.168.1.1", DefaultConfig().String())

	tests := []struct {
		name   string
		values store.MapStore
		expect func(*Config)
	}{
		{"empty", store.MapStore{}, func(*Config) {}},
		{"all", store.MapStore{
			KeyMAC:     "02:00:00:00:00:09",
			KeyIP:      "10.0.0.2",
			KeyNetmask: "255.255.0.0",
			KeyGateway: "10.0.0.1",
		}, func(c *Config) {
			c.MAC = net.HardwareAddr{2, 0, 0, 0, 0, 9}
			c.IP = net.IPv4(10, 0, 0, 2).To4()
			c.Netmask = net.IPv4Mask(255, 255, 0, 0)
			c.Gateway = net.IPv4(10, 0, 0, 1).To4()
		}},
		{"malformed", store.MapStore{
			KeyMAC:     "02:00",
			KeyIP:      "10.0.0",
			KeyNetmask: "255.0.255.0",
			KeyGateway: "::1",
		}, func(*Config) {}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			expected := DefaultConfig()
			test.expect(&expected)
			require.Equal(t, expected, LoadConfig(test.values))
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dev, err := ethmac.NewBoardDevice(sim.NewBoard())
	require.NoError(t, err)
	config := DefaultConfig()
	config.IP = nil
	_, err = New(dev, config)
	require.Error(t, err)
}

func TestPollExhausted(t *testing.T) {
	iface, board := newTestInterface(t, DefaultConfig())
	require.Equal(t, ErrExhausted, iface.Poll(time.Now()))
	require.Zero(t, board.TxStarts())
}

func TestARPReply(t *testing.T) {
	iface, board := newTestInterface(t, DefaultConfig())
	require.NoError(t, board.Deliver(arpRequest(t, DefaultConfig().IP)))
	pollUntil(t, iface, func() bool { return findARPReply(board.TxFrames()) != nil })

	reply := findARPReply(board.TxFrames())
	require.Equal(t, []byte(DefaultConfig().MAC), reply.SourceHwAddress)
	require.Equal(t, []byte(DefaultConfig().IP.To4()), reply.SourceProtAddress)
	require.Equal(t, []byte(hostMAC), reply.DstHwAddress)
	require.EqualValues(t, 1, iface.Stats().RxFrames)
	require.False(t, board.RxPending())
}

func TestARPRequestForOtherHost(t *testing.T) {
	iface, board := newTestInterface(t, DefaultConfig())
	require.NoError(t, board.Deliver(arpRequest(t, net.IPv4(192, 168, 1, 99))))
	require.NoError(t, iface.Poll(time.Now()))
	time.Sleep(10 * time.Millisecond)
	iface.Poll(time.Now())
	require.Nil(t, findARPReply(board.TxFrames()))
}

func TestPollKeepsFrameWhileBusy(t *testing.T) {
	iface, board := newTestInterface(t, DefaultConfig())
	board.SetTxReady(false)
	require.NoError(t, board.Deliver(arpRequest(t, DefaultConfig().IP)))
	pollUntil(t, iface, func() bool { return iface.Stats().TxBusy > 0 })
	require.Zero(t, board.TxStarts())
	require.Equal(t, ErrExhausted, iface.Poll(time.Now()))

	board.SetTxReady(true)
	require.NoError(t, iface.Poll(time.Now()))
	require.NotNil(t, findARPReply(board.TxFrames()))
}

func TestControl(t *testing.T) {
	iface, board := newTestInterface(t, DefaultConfig())
	loop := fx.NewLoop()
	loop.Add(iface)
	require.NoError(t, board.Deliver(arpRequest(t, DefaultConfig().IP)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	require.Eventually(t, func() bool {
		return findARPReply(board.TxFrames()) != nil
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestTCPOverWire(t *testing.T) {
	serverConfig := DefaultConfig()
	clientConfig := DefaultConfig()
	clientConfig.MAC = hostMAC
	clientConfig.IP = net.IPv4(192, 168, 1, 51).To4()

	server, serverBoard := newTestInterface(t, serverConfig)
	client, clientBoard := newTestInterface(t, clientConfig)
	wire := sim.NewWire(serverBoard, clientBoard)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pumpDone := make(chan struct{})
	defer func() {
		cancel()
		<-pumpDone
	}()
	go func() {
		defer close(pumpDone)
		for ctx.Err() == nil {
			server.Poll(time.Now())
			client.Poll(time.Now())
			wire.Transfer()
			time.Sleep(100 * time.Microsecond)
		}
	}()

	ln, err := server.ListenTCP(1381, true)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	conn, err := client.DialTCP(ctx, serverConfig.IP, 1381)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	reply := make([]byte, 4)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, "ping", string(reply))
}

func TestListenTCPPortInUse(t *testing.T) {
	iface, _ := newTestInterface(t, DefaultConfig())
	ln, err := iface.ListenTCP(1382, false)
	require.NoError(t, err)
	defer ln.Close()
	_, err = iface.ListenTCP(1382, false)
	var serr *StackError
	require.ErrorAs(t, err, &serr)
}
