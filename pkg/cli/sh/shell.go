// Package sh provides the host shell talking to RTIO boards.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/rtio.go/pkg/analyzer"
	"github.com/robotalks/rtio.go/pkg/telemetry"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive   bool
	OutputJSON    bool
	Timeout       time.Duration
	MQTTBrokerURL string

	Shell *ishell.Shell
	// Target is the analyzer address, empty when not connected.
	Target string

	devices map[string]telemetry.Device
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	timeout    = 10 * time.Second
	mqttURL    string
	target     string

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&HeaderCmd,
		&DumpCmd,
	}
)

func init() {
	if val := os.Getenv("RTIO_MQTT_URL"); val != "" {
		mqttURL = val
	}
	if val := os.Getenv("RTIO_HOST"); val != "" {
		target = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&timeout, "timeout", timeout, "Timeout of a dump.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL for discovery.")
	flag.StringVar(&target, "host", target, "Board to connect at startup.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive:   !evalOnly,
		OutputJSON:    outputJSON,
		Timeout:       timeout,
		MQTTBrokerURL: mqttURL,

		Shell: ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Target == "" {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Discover lists the boards announced on the MQTT broker.
func (s *Shell) Discover(ctx context.Context) ([]telemetry.Device, error) {
	if s.MQTTBrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker not specified")
	}
	devs, err := telemetry.Discover(ctx, s.MQTTBrokerURL, 0)
	if err != nil {
		return nil, err
	}
	s.devices = make(map[string]telemetry.Device)
	for _, dev := range devs {
		s.devices[dev.ID] = dev
	}
	return devs, nil
}

// Resolve converts a discovered board ID or a host[:port] into the
// analyzer address.
func (s *Shell) Resolve(name string) (string, error) {
	if dev, ok := s.devices[name]; ok {
		if dev.Meta.Address == "" {
			return "", fmt.Errorf("board %s has no address", name)
		}
		port := dev.Meta.AnalyzerPort
		if port == 0 {
			port = analyzer.DefaultPort
		}
		return net.JoinHostPort(dev.Meta.Address, strconv.Itoa(int(port))), nil
	}
	if name == "" {
		return "", fmt.Errorf("empty address")
	}
	if _, _, err := net.SplitHostPort(name); err != nil {
		return net.JoinHostPort(name, strconv.Itoa(analyzer.DefaultPort)), nil
	}
	return name, nil
}

// Connect selects the board to talk to. No connection is kept: each dump
// opens its own.
func (s *Shell) Connect(name string) error {
	addr, err := s.Resolve(name)
	if err != nil {
		return err
	}
	s.Target = addr
	if s.Shell != nil {
		s.Shell.SetPrompt(fmt.Sprintf("%s > ", addr))
	}
	return nil
}

// Disconnect forgets the current board.
func (s *Shell) Disconnect() {
	s.Target = ""
	if s.Shell != nil {
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// FetchDump retrieves a dump from the current board.
func (s *Shell) FetchDump() (*analyzer.Dump, error) {
	if s.Target == "" {
		return nil, fmt.Errorf("not connected")
	}
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return analyzer.Fetch(ctx, s.Target)
}

// SaveDump retrieves a dump and writes it to path in wire format.
func (s *Shell) SaveDump(path string) (*analyzer.Dump, error) {
	dump, err := s.FetchDump()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := dump.WriteTo(f); err != nil {
		f.Close()
		return nil, err
	}
	return dump, f.Close()
}

// Print prints v as JSON if requested, otherwise as text.
func (s *Shell) Print(c *ishell.Context, v interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if target != "" {
		if err := s.Connect(target); err != nil {
			glog.Fatalf("connect %q failed: %v", target, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Fatalln("command expected")
}

var (
	// DiscoverCmd discovers boards.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "list boards announced on the MQTT broker",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			devs, err := s.Discover(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.Print(c, devs, "")
				return
			}
			if len(devs) == 0 {
				c.Println("No boards found")
				return
			}
			for _, dev := range devs {
				c.Printf("%s: %s analyzer:%d session:%d\n",
					dev.ID, dev.Meta.Address, dev.Meta.AnalyzerPort, dev.Meta.SessionPort)
			}
		},
	}

	// ConnectCmd selects a board.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "ID|HOST[:PORT]",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("board ID or address expected"))
				return
			}
			if err := ShellFrom(c).Connect(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd forgets the current board.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// HeaderCmd fetches a dump and prints its header.
	HeaderCmd = ishell.Cmd{
		Name: "header",
		Help: "fetch a dump and print its header",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			dump, err := s.FetchDump()
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, &dump.Header, dump.Header.String())
		}),
	}

	// DumpCmd fetches a dump into a file.
	DumpCmd = ishell.Cmd{
		Name: "dump",
		Help: "FILE",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("file name expected"))
				return
			}
			s := ShellFrom(c)
			dump, err := s.SaveDump(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, &dump.Header, fmt.Sprintf("%s: %s", c.Args[0], dump.Header))
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
