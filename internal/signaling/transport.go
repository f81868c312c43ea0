package signaling

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultMaxMessageBytes bounds a single inbound signaling frame.
	DefaultMaxMessageBytes int64 = 1 << 20

	handshakeTimeout  = 10 * time.Second
	closeWriteTimeout = time.Second
)

var errTransportNotDialed = errors.New("transport not dialed")

// Transport is a message-oriented duplex text channel to the signaling
// server.
//
// ReadText is only ever called by one goroutine at a time, and so is
// WriteText. Close may race with an outstanding ReadText, which must then
// return ErrAborted.
type Transport interface {
	Dial(ctx context.Context) error
	ReadText() (string, error)
	WriteText(text string) error
	Close() error
}

// TransportFactory builds an undialed Transport for a validated ws:// or
// wss:// URL.
type TransportFactory func(u *url.URL, insecure bool) (Transport, error)

// parseSignalingURL validates the configured server address. Errors wrap
// ErrInvalidURL or ErrUnsupportedScheme.
func parseSignalingURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// WebSocketTransportFactory returns a TransportFactory backed by gorilla
// websocket. maxMessageBytes <= 0 selects DefaultMaxMessageBytes.
func WebSocketTransportFactory(maxMessageBytes int64) TransportFactory {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return func(u *url.URL, insecure bool) (Transport, error) {
		dialer := &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
		if strings.EqualFold(u.Scheme, "wss") {
			dialer.TLSClientConfig = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: insecure,
			}
		}
		return &wsTransport{
			url:             u.String(),
			dialer:          dialer,
			maxMessageBytes: maxMessageBytes,
		}, nil
	}
}

type wsTransport struct {
	url             string
	dialer          *websocket.Dialer
	maxMessageBytes int64

	mu     sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool
}

func (t *wsTransport) Dial(ctx context.Context) error {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket handshake: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(t.maxMessageBytes)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		_ = conn.Close()
		return ErrAborted
	}
	t.conn = conn
	return nil
}

func (t *wsTransport) getConn() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *wsTransport) ReadText() (string, error) {
	conn := t.getConn()
	if conn == nil {
		if t.closed.Load() {
			return "", ErrAborted
		}
		return "", errTransportNotDialed
	}
	typ, data, err := conn.ReadMessage()
	if err != nil {
		if t.closed.Load() {
			return "", ErrAborted
		}
		return "", err
	}
	if typ != websocket.TextMessage {
		return "", fmt.Errorf("unexpected websocket message type %d", typ)
	}
	return string(data), nil
}

func (t *wsTransport) WriteText(text string) error {
	conn := t.getConn()
	if conn == nil {
		return errTransportNotDialed
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a normal-closure frame and closes the socket. It is safe to call
// more than once.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.conn == nil {
		return nil
	}
	deadline := time.Now().Add(closeWriteTimeout)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}
