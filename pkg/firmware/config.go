package firmware

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang/glog"

	"github.com/robotalks/rtio.go/pkg/analyzer"
)

// DefaultSessionPort is the TCP port of the session service.
const DefaultSessionPort = 1381

// Config provides the options of the runtime.
type Config struct {
	AnalyzerPort uint
	SessionPort  uint
	// BufferSize is the size of the capture ring buffer in bytes.
	BufferSize int
	// LogChannel overrides the log channel reported in dumps; negative
	// means the gateware constant, or 0 when absent.
	LogChannel int
	// StorePath is the configuration file holding the network identity.
	StorePath string
	// MQTTBrokerURL enables telemetry when set,
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// TelemetryID defaults to the machine ID.
	TelemetryID string
	// Trace logs every Ethernet frame at verbosity 5.
	Trace bool
}

var defaultConfig = Config{
	AnalyzerPort: analyzer.DefaultPort,
	SessionPort:  DefaultSessionPort,
	BufferSize:   analyzer.DefaultBufferSize,
	LogChannel:   -1,
	StorePath:    "/etc/rtio/config.yaml",
}

func init() {
	envUint := func(name string, val *uint) {
		if s := os.Getenv(name); s != "" {
			if n, err := strconv.ParseUint(s, 10, 16); err == nil {
				*val = uint(n)
			} else {
				glog.Warningf("invalid %s=%q", name, s)
			}
		}
	}
	envUint("RTIO_ANALYZER_PORT", &defaultConfig.AnalyzerPort)
	envUint("RTIO_SESSION_PORT", &defaultConfig.SessionPort)
	if val := os.Getenv("RTIO_CONFIG"); val != "" {
		defaultConfig.StorePath = val
	}
	if val := os.Getenv("RTIO_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.UintVar(&defaultConfig.AnalyzerPort, "analyzer-port", defaultConfig.AnalyzerPort, "Analyzer TCP port")
	flag.UintVar(&defaultConfig.SessionPort, "session-port", defaultConfig.SessionPort, "Session TCP port")
	flag.IntVar(&defaultConfig.BufferSize, "analyzer-buffer", defaultConfig.BufferSize, "Analyzer capture buffer size in bytes")
	flag.IntVar(&defaultConfig.LogChannel, "log-channel", defaultConfig.LogChannel, "RTIO log channel, negative to use the gateware constant")
	flag.StringVar(&defaultConfig.StorePath, "config", defaultConfig.StorePath, "Configuration file with network identity")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL for telemetry, empty to disable")
	flag.StringVar(&defaultConfig.TelemetryID, "id", defaultConfig.TelemetryID, "Telemetry ID, default to machine ID")
	flag.BoolVar(&defaultConfig.Trace, "trace", defaultConfig.Trace, "Trace Ethernet frames (with -v=5)")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for name, port := range map[string]uint{"analyzer": c.AnalyzerPort, "session": c.SessionPort} {
		if port == 0 || port > 0xffff {
			return fmt.Errorf("invalid %s port %d", name, port)
		}
	}
	if c.AnalyzerPort == c.SessionPort {
		return fmt.Errorf("analyzer and session share port %d", c.AnalyzerPort)
	}
	if c.BufferSize <= 0 || c.BufferSize%analyzer.BufferAlign != 0 {
		return fmt.Errorf("analyzer buffer size %d must be a positive multiple of %d",
			c.BufferSize, analyzer.BufferAlign)
	}
	if c.LogChannel > 0xff {
		return fmt.Errorf("invalid log channel %d", c.LogChannel)
	}
	return nil
}
