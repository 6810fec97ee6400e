package firmware

import (
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rtio.go/pkg/framework"
	"github.com/robotalks/rtio.go/pkg/netif"
)

// DefaultMonitorInterval is the period of the network statistics log.
const DefaultMonitorInterval = 10 * time.Second

// StatsSource provides network statistics.
type StatsSource interface {
	Stats() netif.Stats
}

// Monitor logs the network statistics periodically at verbosity 1.
type Monitor struct {
	Interval time.Duration
	Source   StatsSource

	last     netif.Stats
	lastTime time.Time
}

// Control implements Controller.
func (m *Monitor) Control(cc fx.ControlContext) error {
	now := cc.Time()
	interval := m.Interval
	if interval == 0 {
		interval = DefaultMonitorInterval
	}
	if !m.lastTime.IsZero() && now.Sub(m.lastTime) < interval {
		return nil
	}
	stats := m.Source.Stats()
	if !m.lastTime.IsZero() && bool(glog.V(1)) {
		glog.Infof("network: rx %d tx %d busy %d frames in %v",
			stats.RxFrames-m.last.RxFrames,
			stats.TxFrames-m.last.TxFrames,
			stats.TxBusy-m.last.TxBusy,
			now.Sub(m.lastTime).Round(time.Millisecond))
	}
	m.last, m.lastTime = stats, now
	return nil
}

// AddToLoop implements LoopAdder.
func (m *Monitor) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvMonitor, m)
}
