package viiper

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	handshakeMagic   = "eVI1\x00"
	nonceSize        = 32
	authContext      = "VIIPER-Auth-v1"
	sessionContext   = "VIIPER-Session-v1"
	pbkdf2Salt       = "VIIPER-Key-v1"
	pbkdf2Iterations = 100000
	maxPacketSize    = 2 * 1024 * 1024
)

// ErrUnauthorized is returned when the server rejects the password.
var ErrUnauthorized = &APIError{Status: 401, Title: "Unauthorized", Detail: "invalid password"}

// DeriveKey stretches a server password to the 32-byte handshake key.
func DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	return pbkdf2.Key(sha256.New, password, []byte(pbkdf2Salt), pbkdf2Iterations, 32)
}

// DeriveSessionKey mixes the handshake key with both nonces.
func DeriveSessionKey(key, serverNonce, clientNonce []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(serverNonce)
	h.Write(clientNonce)
	h.Write([]byte(sessionContext))
	return h.Sum(nil)
}

// clientHandshake proves knowledge of key to the server and returns both
// nonces.
func clientHandshake(r *bufio.Reader, w io.Writer, key []byte) (clientNonce, serverNonce []byte, err error) {
	clientNonce = make([]byte, nonceSize)
	if _, err := rand.Read(clientNonce); err != nil {
		return nil, nil, fmt.Errorf("generate client nonce: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(authContext))
	_, _ = mac.Write(clientNonce)

	msg := append([]byte(handshakeMagic), clientNonce...)
	msg = append(msg, mac.Sum(nil)...)
	if _, err := w.Write(msg); err != nil {
		return nil, nil, fmt.Errorf("write handshake: %w", err)
	}

	prefix := make([]byte, 3)
	if _, err := io.ReadFull(r, prefix); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("read handshake response: %w", err)
	}
	if string(prefix) != "OK\x00" {
		rest, _ := io.ReadAll(r)
		line := strings.TrimSuffix(string(append(prefix, rest...)), "\n")
		var apiErr APIError
		if err := json.Unmarshal([]byte(line), &apiErr); err == nil && (apiErr.Status != 0 || apiErr.Title != "") {
			return nil, nil, &apiErr
		}
		return nil, nil, fmt.Errorf("invalid handshake response from server: %s", line)
	}

	serverNonce = make([]byte, nonceSize)
	if _, err := io.ReadFull(r, serverNonce); err != nil {
		return nil, nil, fmt.Errorf("read server nonce: %w", err)
	}
	return clientNonce, serverNonce, nil
}

// authenticate runs the handshake over conn and wraps it in an encrypted
// session.
func authenticate(conn net.Conn, password string) (net.Conn, error) {
	key, err := DeriveKey(password)
	if err != nil {
		return nil, err
	}
	clientNonce, serverNonce, err := clientHandshake(bufio.NewReader(conn), conn, key)
	if err != nil {
		return nil, err
	}
	return wrapConn(conn, DeriveSessionKey(key, serverNonce, clientNonce))
}

// secureConn frames every write as length | nonce | ciphertext.
type secureConn struct {
	net.Conn
	aead    cipher.AEAD
	mu      sync.Mutex
	sendCtr uint64
	recvBuf bytes.Buffer
}

func wrapConn(conn net.Conn, sessionKey []byte) (net.Conn, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}
	return &secureConn{Conn: conn, aead: aead}, nil
}

func (s *secureConn) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], s.sendCtr)
	s.sendCtr++
	ct := s.aead.Seal(nil, nonce, p, nil)

	pkt := make([]byte, 4, 4+len(nonce)+len(ct))
	binary.BigEndian.PutUint32(pkt, uint32(len(nonce)+len(ct)))
	pkt = append(pkt, nonce...)
	pkt = append(pkt, ct...)
	if _, err := s.Conn.Write(pkt); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *secureConn) Read(p []byte) (int, error) {
	if s.recvBuf.Len() == 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(s.Conn, hdr[:]); err != nil {
			return 0, err
		}
		length := binary.BigEndian.Uint32(hdr[:])
		if length > maxPacketSize || length < chacha20poly1305.NonceSize {
			return 0, io.ErrUnexpectedEOF
		}
		pkt := make([]byte, length)
		if _, err := io.ReadFull(s.Conn, pkt); err != nil {
			return 0, err
		}
		pt, err := s.aead.Open(nil, pkt[:chacha20poly1305.NonceSize], pkt[chacha20poly1305.NonceSize:], nil)
		if err != nil {
			return 0, err
		}
		s.recvBuf.Write(pt)
	}
	return s.recvBuf.Read(p)
}
