package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/rtio.go/pkg/analyzer"
	fx "github.com/robotalks/rtio.go/pkg/framework"
)

// DeviceType is the first topic level of published messages.
const DeviceType = "rtio"

// ReportQueueSize is the number of dump reports buffered while the broker
// is slow; extra reports are dropped.
const ReportQueueSize = 16

// TokenTimeout bounds the wait for the broker to acknowledge connect and
// the final metadata clear.
const TokenTimeout = 2 * time.Second

// Meta describes the device. It is published retained on
// <type>/<id>/meta and cleared on shutdown.
type Meta struct {
	Address      string `json:"address,omitempty"`
	AnalyzerPort uint16 `json:"analyzer_port,omitempty"`
	SessionPort  uint16 `json:"session_port,omitempty"`
	BufferSize   int    `json:"buffer_size,omitempty"`
	LogChannel   uint8  `json:"log_channel"`
}

// DumpMessage is published on <type>/<id>/analyzer after each dump.
type DumpMessage struct {
	Time           time.Time `json:"time"`
	Remote         string    `json:"remote"`
	TotalByteCount uint64    `json:"total_byte_count"`
	SentBytes      uint32    `json:"sent_bytes"`
	Overflow       bool      `json:"overflow"`
	LogChannel     uint8     `json:"log_channel"`
	DurationMs     float64   `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
}

// NewDumpMessage converts a report.
func NewDumpMessage(r analyzer.DumpReport) DumpMessage {
	msg := DumpMessage{
		Time:           r.Time,
		Remote:         r.Remote,
		TotalByteCount: r.Header.TotalByteCount,
		SentBytes:      r.Header.SentBytes,
		Overflow:       r.Header.OverflowOccurred,
		LogChannel:     r.Header.LogChannel,
		DurationMs:     float64(r.Duration) / float64(time.Millisecond),
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	return msg
}

type publisher interface {
	Connect() paho.Token
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
	Close() error
}

// Publisher publishes device metadata and analyzer dump reports.
type Publisher struct {
	ID   string
	Meta Meta

	queue   publisher
	reports chan analyzer.DumpReport
}

var (
	_ analyzer.Reporter = (*Publisher)(nil)
	_ fx.Runnable       = (*Publisher)(nil)
)

// NewPublisher creates a Publisher to the broker at brokerURL.
// An empty id defaults to the machine ID.
func NewPublisher(brokerURL, id string, meta Meta) (*Publisher, error) {
	if id == "" {
		id = MachineID()
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	metaTopic := topicPrefix + DeviceType + "/" + id + "/meta"
	opts.SetBinaryWill(metaTopic, nil, 1, true).
		SetConnectRetry(true)
	if opts.ClientID == "" {
		opts.SetClientID(DeviceType + ":" + id)
	}
	p := newPublisher(id, meta, nil)
	q := NewQueue(opts, topicPrefix)
	q.OnConnect = func(*Queue) { p.publishMeta() }
	p.queue = q
	return p, nil
}

func newPublisher(id string, meta Meta, q publisher) *Publisher {
	return &Publisher{
		ID:      id,
		Meta:    meta,
		queue:   q,
		reports: make(chan analyzer.DumpReport, ReportQueueSize),
	}
}

// Name implements Named.
func (p *Publisher) Name() string {
	return "telemetry"
}

// ReportDump implements analyzer.Reporter. It never blocks.
func (p *Publisher) ReportDump(r analyzer.DumpReport) {
	select {
	case p.reports <- r:
	default:
		glog.V(2).Infof("telemetry: report from %s dropped", r.Remote)
	}
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	if err := waitToken(p.queue.Connect()); err != nil {
		glog.Warningf("telemetry: connect: %v, retrying in background", err)
	}
	for {
		select {
		case <-ctx.Done():
			if err := waitToken(p.queue.PubWith(p.topic("meta"), nil, 1, true)); err != nil {
				glog.Warningf("telemetry: clear meta: %v", err)
			}
			p.queue.Close()
			return nil
		case r := <-p.reports:
			p.publishReport(r)
		}
	}
}

func waitToken(token paho.Token) error {
	if !token.WaitTimeout(TokenTimeout) {
		return fmt.Errorf("no response in %v", TokenTimeout)
	}
	return token.Error()
}

func (p *Publisher) topic(name string) string {
	return DeviceType + "/" + p.ID + "/" + name
}

func (p *Publisher) publishMeta() {
	payload, err := json.Marshal(&p.Meta)
	if err != nil {
		glog.Errorf("telemetry: encode meta: %v", err)
		return
	}
	p.queue.PubWith(p.topic("meta"), payload, 1, true)
}

func (p *Publisher) publishReport(r analyzer.DumpReport) {
	payload, err := json.Marshal(NewDumpMessage(r))
	if err != nil {
		glog.Errorf("telemetry: encode report: %v", err)
		return
	}
	p.queue.PubWith(p.topic("analyzer"), payload, 0, false)
}

// MachineID retrieves the unique ID identifying the machine.
func MachineID() string {
	id, err := machineid.ID()
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return "unknown"
	}
	return id
}
