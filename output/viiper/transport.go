package viiper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"
)

// TransportConfig controls dialing and I/O timeouts.
type TransportConfig struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Password     string
}

func defaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:  3 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Responder answers requests of a mock transport.
type Responder func(path string, payload any, pathParams map[string]string) (string, error)

// Transport speaks the VIIPER management protocol. A request is
// `<path>[ SP <payload>]\x00`; the server answers with one JSON document and
// closes the connection.
type Transport struct {
	addr string
	cfg  TransportConfig
	mock Responder
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTransport creates a transport for addr. A nil cfg uses the defaults.
func NewTransport(addr string, cfg *TransportConfig) *Transport {
	c := defaultTransportConfig()
	if cfg != nil {
		c = *cfg
	}
	d := &net.Dialer{Timeout: c.DialTimeout}
	return &Transport{addr: addr, cfg: c, dial: d.DialContext}
}

// NewMockTransport creates a transport that answers through r without
// networking.
func NewMockTransport(r Responder) *Transport {
	return &Transport{addr: "mock", cfg: defaultTransportConfig(), mock: r}
}

// connect dials the server and authenticates when a password is set.
func (t *Transport) connect(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn, err := t.dial(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	if t.cfg.Password == "" {
		return conn, nil
	}
	if t.cfg.WriteTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	secured, err := authenticate(conn, t.cfg.Password)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return secured, nil
}

// Do sends one request and returns the response without its trailing
// newline. Payloads may be []byte, string or any JSON-marshalable value.
func (t *Transport) Do(ctx context.Context, path string, payload any, pathParams map[string]string) (string, error) {
	if t.mock != nil {
		return t.mock(path, payload, pathParams)
	}
	line := []byte(fillPath(path, pathParams))
	pb, err := payloadBytes(payload)
	if err != nil {
		return "", err
	}
	if len(pb) > 0 {
		line = append(append(line, ' '), pb...)
	}

	conn, err := t.connect(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if t.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if _, err := conn.Write(append(line, 0)); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	if t.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	}
	resp, err := io.ReadAll(conn)
	if err != nil && len(resp) == 0 {
		return "", fmt.Errorf("read: %w", err)
	}
	return strings.TrimSuffix(string(resp), "\n"), nil
}

func fillPath(pattern string, params map[string]string) string {
	out := pattern
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", url.PathEscape(v))
	}
	return strings.ToLower(out)
}

func payloadBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
}
