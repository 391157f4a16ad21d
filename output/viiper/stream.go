package viiper

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrStreamClosed is returned by writes to a closed stream.
var ErrStreamClosed = errors.New("stream closed")

// DeviceStream carries input reports to one virtual device.
type DeviceStream struct {
	BusID uint32
	DevID string

	mu      sync.Mutex
	conn    net.Conn
	closed  bool
	timeout time.Duration
	onWrite func(data []byte)
}

// OpenStream connects to the input stream of an existing device.
func (c *Client) OpenStream(ctx context.Context, busID uint32, devID string) (*DeviceStream, error) {
	if c.transport.mock != nil {
		return nil, fmt.Errorf("stream connections not supported with mock transport")
	}
	conn, err := c.transport.connect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(conn, "bus/%d/%s\x00", busID, devID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write stream path: %w", err)
	}
	return newStream(conn, busID, devID, c.transport.cfg.WriteTimeout), nil
}

func newStream(conn net.Conn, busID uint32, devID string, timeout time.Duration) *DeviceStream {
	return &DeviceStream{BusID: busID, DevID: devID, conn: conn, timeout: timeout}
}

// WriteBinary marshals v and sends it as one report.
func (s *DeviceStream) WriteBinary(v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("write report to %d-%s: %w", s.BusID, s.DevID, err)
	}
	if s.onWrite != nil {
		s.onWrite(data)
	}
	return nil
}

// Close closes the stream connection.
func (s *DeviceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
