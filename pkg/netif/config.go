package netif

import (
	"fmt"
	"net"

	"github.com/golang/glog"

	"github.com/robotalks/rtio.go/pkg/store"
)

// Store keys of the network identity.
const (
	KeyMAC     = "mac"
	KeyIP      = "ip"
	KeyNetmask = "netmask"
	KeyGateway = "gateway"
)

// Config is the static identity of the interface.
type Config struct {
	MAC     net.HardwareAddr
	IP      net.IP
	Netmask net.IPMask
	// Gateway is optional. When set, a default route is installed.
	Gateway net.IP
}

// DefaultConfig returns the factory identity of the board.
func DefaultConfig() Config {
	return Config{
		MAC:     net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		IP:      net.IPv4(192, 168, 1, 50).To4(),
		Netmask: net.IPv4Mask(255, 255, 255, 0),
		Gateway: net.IPv4(192, 168, 1, 1).To4(),
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if len(c.MAC) != 6 {
		return fmt.Errorf("invalid MAC address %q", c.MAC)
	}
	if c.IP.To4() == nil {
		return fmt.Errorf("invalid IPv4 address %q", c.IP)
	}
	if ones, bits := c.Netmask.Size(); bits != 32 || ones == 0 {
		return fmt.Errorf("invalid netmask %q", c.Netmask)
	}
	if c.Gateway != nil && c.Gateway.To4() == nil {
		return fmt.Errorf("invalid gateway %q", c.Gateway)
	}
	return nil
}

// String implements fmt.Stringer.
func (c Config) String() string {
	ones, _ := c.Netmask.Size()
	s := fmt.Sprintf("%s %s/%d", c.MAC, c.IP, ones)
	if c.Gateway != nil {
		s += " via " + c.Gateway.String()
	}
	return s
}

// LoadConfig overrides the default identity with values found in st.
// Malformed values are ignored with a warning.
func LoadConfig(st store.Store) Config {
	c := DefaultConfig()
	if st == nil {
		return c
	}
	if v, ok := st.Lookup(KeyMAC); ok {
		if mac, err := net.ParseMAC(v); err == nil && len(mac) == 6 {
			c.MAC = mac
		} else {
			glog.Warningf("invalid %s %q in config, using %s", KeyMAC, v, c.MAC)
		}
	}
	lookupIPv4 := func(key string, ip *net.IP) {
		if v, ok := st.Lookup(key); ok {
			if parsed := net.ParseIP(v).To4(); parsed != nil {
				*ip = parsed
			} else {
				glog.Warningf("invalid %s %q in config, using %s", key, v, *ip)
			}
		}
	}
	lookupIPv4(KeyIP, &c.IP)
	lookupIPv4(KeyGateway, &c.Gateway)
	if v, ok := st.Lookup(KeyNetmask); ok {
		mask := net.IPMask(net.ParseIP(v).To4())
		if ones, bits := mask.Size(); bits == 32 && ones > 0 {
			c.Netmask = mask
		} else {
			glog.Warningf("invalid %s %q in config, using %s", KeyNetmask, v, net.IP(c.Netmask))
		}
	}
	return c
}
