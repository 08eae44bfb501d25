package companion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sliverarmory/snfix/internal/metrics"
)

// DefaultPayloadPath is where the module installer places the payload.
const DefaultPayloadPath = "/data/adb/modules/playintegrityfix/classes.dex"

// Server is the privileged side of the channel: one payload per connection,
// no request parsing and no caller validation.
type Server struct {
	PayloadPath string
	Log         logrus.FieldLogger

	wg sync.WaitGroup
}

// Serve accepts connections on l until ctx is done or l fails, then waits
// for in-flight transfers.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("companion: accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Handle(conn)
		}()
	}
}

// Handle sends the payload over conn and closes it.
func (s *Server) Handle(conn net.Conn) {
	defer conn.Close()

	log := s.logger()
	path := s.PayloadPath
	if path == "" {
		path = DefaultPayloadPath
	}

	n, err := ServeFile(conn, path)
	if err != nil {
		metrics.CompanionServed.WithLabelValues("error").Inc()
		log.WithError(err).Errorf("serve %s", path)
		return
	}
	metrics.CompanionServed.WithLabelValues("ok").Inc()
	metrics.CompanionBytes.Add(float64(n))
	log.Debugf("sent %d bytes from %s", n, path)
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.WithField("component", "companion")
}

// Listen opens the companion unix socket, replacing a stale socket file.
func Listen(socketPath string) (net.Listener, error) {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("companion: remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("companion: listen: %w", err)
	}
	return l, nil
}

// Dial connects to the companion socket.
func Dial(socketPath string) (net.Conn, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("companion: connect: %w", err)
	}
	return conn, nil
}
