package viiper

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve accepts one connection per handler call and runs handle on it.
func serve(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func readRequest(t *testing.T, r io.Reader) string {
	line, err := bufio.NewReader(r).ReadString(0)
	if err != nil {
		t.Errorf("read request: %v", err)
	}
	return strings.TrimSuffix(line, "\x00")
}

func TestTransportDo(t *testing.T) {
	requests := make(chan string, 1)
	addr := serve(t, func(conn net.Conn) {
		requests <- readRequest(t, conn)
		_, _ = io.WriteString(conn, `{"busId":4}`+"\n")
	})

	resp, err := NewTransport(addr, nil).Do(context.Background(), "bus/{id}/add", map[string]string{"type": "mouse"}, map[string]string{"id": "4"})
	require.NoError(t, err)
	assert.Equal(t, `{"busId":4}`, resp)
	assert.Equal(t, `bus/4/add {"type":"mouse"}`, <-requests)
}

func TestTransportDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewTransport(addr, nil).Do(context.Background(), "bus/list", nil, nil)
	assert.ErrorContains(t, err, "dial")
}

// handshakeServer answers the client handshake for password and returns
// the encrypted session, or nil when the password does not match.
func handshakeServer(t *testing.T, conn net.Conn, password string) net.Conn {
	key, err := DeriveKey(password)
	require.NoError(t, err)

	msg := make([]byte, len(handshakeMagic)+2*nonceSize)
	if _, err := io.ReadFull(conn, msg); err != nil {
		t.Errorf("read handshake: %v", err)
		return nil
	}
	if string(msg[:len(handshakeMagic)]) != handshakeMagic {
		t.Errorf("bad magic %q", msg[:len(handshakeMagic)])
		return nil
	}
	clientNonce := msg[len(handshakeMagic) : len(handshakeMagic)+nonceSize]
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(authContext))
	mac.Write(clientNonce)
	if !hmac.Equal(mac.Sum(nil), msg[len(handshakeMagic)+nonceSize:]) {
		return nil
	}

	serverNonce := make([]byte, nonceSize)
	_, _ = rand.Read(serverNonce)
	_, _ = conn.Write(append([]byte("OK\x00"), serverNonce...))
	secured, err := wrapConn(conn, DeriveSessionKey(key, serverNonce, clientNonce))
	require.NoError(t, err)
	return secured
}

func TestTransportAuthenticated(t *testing.T) {
	requests := make(chan string, 1)
	addr := serve(t, func(conn net.Conn) {
		secured := handshakeServer(t, conn, "hunter2")
		if secured == nil {
			return
		}
		requests <- readRequest(t, secured)
		_, _ = io.WriteString(secured, `{"buses":[1]}`)
	})

	cfg := defaultTransportConfig()
	cfg.Password = "hunter2"
	c := NewClient(NewTransport(addr, &cfg))
	buses, err := c.BusList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, buses)
	assert.Equal(t, "bus/list", <-requests)
}

func TestTransportWrongPassword(t *testing.T) {
	addr := serve(t, func(conn net.Conn) {
		handshakeServer(t, conn, "hunter2")
	})

	cfg := defaultTransportConfig()
	cfg.Password = "letmein"
	_, err := NewTransport(addr, &cfg).Do(context.Background(), "bus/list", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHandshakeProblemResponse(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		defer server.Close()
		buf := make([]byte, len(handshakeMagic)+2*nonceSize)
		_, _ = io.ReadFull(server, buf)
		_, _ = io.WriteString(server, `{"status":429,"title":"Too Many Requests","detail":"slow down"}`+"\n")
	}()

	key, err := DeriveKey("pw")
	require.NoError(t, err)
	_, _, err = clientHandshake(bufio.NewReader(client), client, key)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.Status)
}

func TestSecureConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	key := make([]byte, 32)
	ca, err := wrapConn(a, key)
	require.NoError(t, err)
	cb, err := wrapConn(b, key)
	require.NoError(t, err)

	go func() {
		_, _ = ca.Write([]byte("first"))
		_, _ = ca.Write([]byte("second"))
	}()

	buf := make([]byte, 3)
	n, err := cb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "fir", string(buf[:n]))
	rest := make([]byte, 16)
	n, err = cb.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, "st", string(rest[:n]))
	n, err = cb.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, "second", string(rest[:n]))
}

func TestDeriveKey(t *testing.T) {
	_, err := DeriveKey("")
	assert.Error(t, err)

	k1, err := DeriveKey("pw")
	require.NoError(t, err)
	k2, err := DeriveKey("pw")
	require.NoError(t, err)
	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, DeriveSessionKey(k1, []byte("a"), []byte("b")), DeriveSessionKey(k1, []byte("b"), []byte("a")))
}
