// Package firmware assembles the runtime: the network interface over the
// Ethernet MAC, the analyzer engine and the session service, all driven by
// one framework.Loop.
package firmware

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/rtio.go/pkg/analyzer"
	"github.com/robotalks/rtio.go/pkg/ethmac"
	fx "github.com/robotalks/rtio.go/pkg/framework"
	"github.com/robotalks/rtio.go/pkg/hw"
	"github.com/robotalks/rtio.go/pkg/netif"
	"github.com/robotalks/rtio.go/pkg/store"
	"github.com/robotalks/rtio.go/pkg/telemetry"
)

// ConstantSource provides gateware constants. Boards implementing it
// supply the default log channel.
type ConstantSource interface {
	Constant(name string) (uint64, bool)
}

// Firmware is the assembled runtime.
type Firmware struct {
	Config    *Config
	Board     hw.Board
	Net       *netif.Interface
	Analyzer  *analyzer.Engine
	Session   *Service
	Monitor   *Monitor
	Telemetry *telemetry.Publisher
}

// NewFirmware creates the runtime on board.
func (c *Config) NewFirmware(board hw.Board) (*Firmware, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dev, err := ethmac.NewBoardDevice(board)
	if err != nil {
		return nil, err
	}
	var driver ethmac.Driver = dev
	if c.Trace {
		driver = ethmac.NewTracer(dev)
	}

	st, err := store.OpenOrEmpty(c.StorePath)
	if err != nil {
		glog.Warningf("config store: %v, using defaults", err)
		st = store.MapStore{}
	}
	iface, err := netif.New(driver, netif.LoadConfig(st))
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	f := &Firmware{Config: c, Board: board, Net: iface}

	buf, err := analyzer.NewCaptureBuffer(board, c.BufferSize)
	if err != nil {
		iface.Close()
		return nil, err
	}
	analyzerLn, err := iface.ListenTCP(uint16(c.AnalyzerPort), true)
	if err != nil {
		iface.Close()
		return nil, fmt.Errorf("analyzer listen: %w", err)
	}
	f.Analyzer = analyzer.NewEngine(board, board, buf)
	f.Analyzer.Listener = analyzerLn
	f.Analyzer.LogChannel = c.logChannel(board)

	sessionLn, err := iface.ListenTCP(uint16(c.SessionPort), true)
	if err != nil {
		analyzerLn.Close()
		iface.Close()
		return nil, fmt.Errorf("session listen: %w", err)
	}
	f.Session = NewService("session", sessionLn, EchoHandler)
	f.Monitor = &Monitor{Source: iface}

	if c.MQTTBrokerURL != "" {
		f.Telemetry, err = telemetry.NewPublisher(c.MQTTBrokerURL, c.TelemetryID, telemetry.Meta{
			Address:      iface.Config().IP.String(),
			AnalyzerPort: uint16(c.AnalyzerPort),
			SessionPort:  uint16(c.SessionPort),
			BufferSize:   c.BufferSize,
			LogChannel:   f.Analyzer.LogChannel,
		})
		if err != nil {
			sessionLn.Close()
			analyzerLn.Close()
			iface.Close()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		f.Analyzer.Reporter = f.Telemetry
	}
	return f, nil
}

// MustNewFirmware creates the runtime and fails on error.
func (c *Config) MustNewFirmware(board hw.Board) *Firmware {
	f, err := c.NewFirmware(board)
	if err != nil {
		glog.Fatalf("firmware: %v", err)
	}
	return f
}

func (c *Config) logChannel(board hw.Board) uint8 {
	if c.LogChannel >= 0 {
		return uint8(c.LogChannel)
	}
	if src, ok := board.(ConstantSource); ok {
		if v, ok := src.Constant(hw.ConstRTIOLogChannel); ok {
			return uint8(v)
		}
	}
	return 0
}

// AddToLoop implements LoopAdder.
func (f *Firmware) AddToLoop(l *fx.Loop) {
	l.Add(f.Net, f.Monitor)
	l.AddRunnable(f.Analyzer, f.Session)
	if f.Telemetry != nil {
		l.AddRunnable(f.Telemetry)
	}
}

// Close releases the network stack. The listeners are closed by the tasks
// when the loop stops.
func (f *Firmware) Close() error {
	return f.Net.Close()
}
