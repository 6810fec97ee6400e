package firmware

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtio.go/pkg/analyzer"
	"github.com/robotalks/rtio.go/pkg/ethmac"
	fx "github.com/robotalks/rtio.go/pkg/framework"
	"github.com/robotalks/rtio.go/pkg/hw"
	"github.com/robotalks/rtio.go/pkg/hw/sim"
	"github.com/robotalks/rtio.go/pkg/netif"
)

func testConfig() *Config {
	conf := NewConfig()
	conf.StorePath = ""
	conf.MQTTBrokerURL = ""
	conf.BufferSize = 1024
	return conf
}

type constBoard struct {
	*sim.Board
	consts map[string]uint64
}

func (b *constBoard) Constant(name string) (uint64, bool) {
	v, ok := b.consts[name]
	return v, ok
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"zero port", func(c *Config) { c.AnalyzerPort = 0 }, false},
		{"large port", func(c *Config) { c.SessionPort = 70000 }, false},
		{"same port", func(c *Config) { c.SessionPort = c.AnalyzerPort }, false},
		{"unaligned buffer", func(c *Config) { c.BufferSize = 1000 }, false},
		{"log channel", func(c *Config) { c.LogChannel = 256 }, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conf := testConfig()
			test.modify(conf)
			if test.valid {
				require.NoError(t, conf.Validate())
			} else {
				require.Error(t, conf.Validate())
			}
		})
	}
}

func TestLogChannel(t *testing.T) {
	board := &constBoard{Board: sim.NewBoard(), consts: map[string]uint64{hw.ConstRTIOLogChannel: 31}}
	conf := testConfig()
	f, err := conf.NewFirmware(board)
	require.NoError(t, err)
	defer f.Close()
	require.EqualValues(t, 31, f.Analyzer.LogChannel)

	require.Zero(t, conf.logChannel(sim.NewBoard()))
	conf.LogChannel = 5
	require.EqualValues(t, 5, conf.logChannel(board))
}

func TestNewFirmwarePortConflict(t *testing.T) {
	conf := testConfig()
	conf.SessionPort = conf.AnalyzerPort
	_, err := conf.NewFirmware(sim.NewBoard())
	require.Error(t, err)
}

type testBench struct {
	board *sim.Board
	fw    *Firmware
	host  *netif.Interface
	ctx   context.Context
}

// newTestBench runs the firmware on a simulated board wired to a host
// interface.
func newTestBench(t *testing.T, conf *Config) *testBench {
	board := sim.NewBoard()
	fw, err := conf.NewFirmware(board)
	require.NoError(t, err)

	hostBoard := sim.NewBoard()
	hostDev, err := ethmac.NewBoardDevice(hostBoard)
	require.NoError(t, err)
	hostConfig := netif.DefaultConfig()
	hostConfig.MAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	hostConfig.IP = net.IPv4(192, 168, 1, 1).To4()
	hostConfig.Gateway = nil
	host, err := netif.New(hostDev, hostConfig)
	require.NoError(t, err)
	wire := sim.NewWire(board, hostBoard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	loop := fx.NewLoop()
	loop.Add(fw)
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ctx.Err() == nil {
			host.Poll(time.Now())
			wire.Transfer()
			time.Sleep(100 * time.Microsecond)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-pumpDone
		<-loopDone
		fw.Close()
		host.Close()
	})
	return &testBench{board: board, fw: fw, host: host, ctx: ctx}
}

func (b *testBench) dial(t *testing.T, port uint) net.Conn {
	conn, err := b.host.DialTCP(b.ctx, b.fw.Net.Config().IP, uint16(port))
	require.NoError(t, err)
	return conn
}

func TestAnalyzerDumpOverNetwork(t *testing.T) {
	conf := testConfig()
	conf.LogChannel = 7
	bench := newTestBench(t, conf)

	require.Eventually(t, bench.board.AnalyzerEnabled, 2*time.Second, time.Millisecond)
	events := make([]byte, 1200)
	for i := range events {
		events[i] = byte(i)
	}
	require.Equal(t, len(events), bench.board.Capture(events))

	conn := bench.dial(t, conf.AnalyzerPort)
	dump, err := analyzer.ReadDump(conn)
	conn.Close()
	require.NoError(t, err)
	require.Equal(t, analyzer.Header{
		TotalByteCount:   1200,
		SentBytes:        1024,
		OverflowOccurred: false,
		LogChannel:       7,
		CompatFlag:       true,
	}, dump.Header)
	// wrapped: the last 1024 events, oldest first
	require.Equal(t, events[176:], dump.Data)

	// the engine rearms for the next client
	require.Eventually(t, bench.board.AnalyzerEnabled, 2*time.Second, time.Millisecond)
	conn = bench.dial(t, conf.AnalyzerPort)
	dump, err = analyzer.ReadDump(conn)
	conn.Close()
	require.NoError(t, err)
	require.Zero(t, dump.Header.TotalByteCount)
	require.Empty(t, dump.Data)
}

func TestSessionEchoOverNetwork(t *testing.T) {
	conf := testConfig()
	bench := newTestBench(t, conf)
	conn := bench.dial(t, conf.SessionPort)
	defer conn.Close()
	_, err := conn.Write([]byte("hello"))
	require.NoError(t, err)
	reply := make([]byte, 5)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, "hello", string(reply))
}
