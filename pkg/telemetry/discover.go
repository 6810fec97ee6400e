package telemetry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Device is a discovered device.
type Device struct {
	ID   string `json:"id"`
	Meta Meta   `json:"meta"`
}

// Discover collects the retained metadata of the devices connected to the
// broker at brokerURL.
func Discover(ctx context.Context, brokerURL string, timeout time.Duration) ([]Device, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	q := NewQueue(opts, topicPrefix)
	token := q.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	defer q.Close()

	devCh := make(chan Device, 16)
	q.Sub(DeviceType+"/+/meta", func(topic string, payload []byte) {
		if dev, ok := ParseMeta(topic, payload); ok {
			select {
			case devCh <- dev:
			case <-time.After(time.Second):
			}
		}
	})

	if timeout == 0 {
		timeout = DefaultDiscoverTimeout
	}
	expired := time.After(timeout)
	found := make(map[string]Device)
	for {
		select {
		case dev := <-devCh:
			found[dev.ID] = dev
		case <-expired:
			devs := make([]Device, 0, len(found))
			for _, dev := range found {
				devs = append(devs, dev)
			}
			sort.Slice(devs, func(i, j int) bool { return devs[i].ID < devs[j].ID })
			return devs, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ParseMeta decodes a message on <type>/<id>/meta. A cleared (empty)
// meta means the device is gone.
func ParseMeta(topic string, payload []byte) (Device, bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[0] != DeviceType || items[2] != "meta" || len(payload) == 0 {
		return Device{}, false
	}
	dev := Device{ID: items[1]}
	if err := json.Unmarshal(payload, &dev.Meta); err != nil {
		return Device{}, false
	}
	return dev, true
}
