package firmware

import (
	"context"
	"io"
	"net"

	"github.com/golang/glog"
	"golang.org/x/net/netutil"

	fx "github.com/robotalks/rtio.go/pkg/framework"
)

// Handler serves one session connection.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn) error

// ServeConn implements Handler.
func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// EchoHandler sends back everything received. It is the default session
// handler, useful to check the link.
var EchoHandler = HandlerFunc(func(ctx context.Context, conn net.Conn) error {
	_, err := io.Copy(conn, conn)
	return err
})

// Service is a task serving one client at a time on a listener; further
// clients wait in the listen backlog.
type Service struct {
	ServiceName string
	Handler     Handler

	listener net.Listener
}

// NewService creates a Service.
func NewService(name string, ln net.Listener, h Handler) *Service {
	return &Service{
		ServiceName: name,
		Handler:     h,
		listener:    netutil.LimitListener(ln, 1),
	}
}

// Name implements Named.
func (s *Service) Name() string {
	return s.ServiceName
}

// Run implements Runnable. Handler errors end the connection, not the
// service.
func (s *Service) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, s.listener, func() error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return err
			}
			s.serve(ctx, conn)
		}
	})
}

func (s *Service) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	glog.Infof("%s: connection from %s", s.ServiceName, conn.RemoteAddr())
	// a blocked handler must not outlive the service.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if err := s.Handler.ServeConn(ctx, conn); err != nil && ctx.Err() == nil {
		glog.Errorf("%s: %v", s.ServiceName, err)
	}
}
