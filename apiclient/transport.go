package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/Alia5/PrinterBridge/internal/server/api/auth"
	apierror "github.com/Alia5/PrinterBridge/internal/server/api/error"
)

// Config controls low-level transport behavior. The read timeout covers the
// whole response wait; print requests block server-side until the transfer
// completes, so it defaults generously.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Password     string
}

func defaultConfig() Config {
	return Config{
		DialTimeout:  3 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// responder is the mock hook: it receives what would go on the wire and
// returns the raw response line.
type responder func(path string, payload any, pathParams map[string]string) (string, error)

// Transport implements the management protocol's client side. One request
// per connection: `<path>[ SP <payload>]\x00` out, a single JSON (or empty)
// line back, then the server closes. The payload may contain any bytes
// including newlines; only the null byte terminates the request.
type Transport struct {
	addr string
	cfg  Config
	mock responder
}

// NewTransport creates a transport with default timeouts and no auth.
func NewTransport(addr string) *Transport { return NewTransportWithConfig(addr, nil) }

// NewTransportWithPassword creates a transport that authenticates every
// connection with the given password.
func NewTransportWithPassword(addr, password string) *Transport {
	cfg := defaultConfig()
	cfg.Password = password
	return NewTransportWithConfig(addr, &cfg)
}

// NewTransportWithConfig creates a transport with explicit configuration.
func NewTransportWithConfig(addr string, cfg *Config) *Transport {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Transport{addr: addr, cfg: c}
}

// NewMockTransport creates a transport answering from the responder instead
// of the network.
func NewMockTransport(respond responder) *Transport {
	return &Transport{addr: "mock", mock: respond, cfg: defaultConfig()}
}

// Do sends one request and returns the response line without its trailing
// newline. Payloads: []byte and string go as-is, nil sends none, anything
// else is JSON-marshaled.
func (t *Transport) Do(path string, payload any, pathParams map[string]string) (string, error) {
	return t.DoCtx(context.Background(), path, payload, pathParams)
}

// DoCtx is Do honoring the context for dialing.
func (t *Transport) DoCtx(ctx context.Context, path string, payload any, pathParams map[string]string) (string, error) {
	if t.mock != nil {
		return t.mock(path, payload, pathParams)
	}

	request, err := encodeRequest(path, payload, pathParams)
	if err != nil {
		return "", err
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if t.cfg.Password != "" {
		if conn, err = t.authenticate(conn); err != nil {
			return "", err
		}
	}

	if _, err := conn.Write(request); err != nil {
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

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	d := &net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			slog.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}
	if t.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn, nil
}

// authenticate runs the handshake and returns the encrypted session
// connection. A server that drops the connection mid-handshake rejected
// the password without saying so.
func (t *Transport) authenticate(conn net.Conn) (net.Conn, error) {
	key, err := auth.DeriveKey(t.cfg.Password)
	if err != nil {
		return nil, err
	}
	clientNonce, serverNonce, err := auth.HandleAuthHandshake(bufio.NewReader(conn), conn, key, true)
	if err != nil {
		if strings.Contains(err.Error(), "read handshake response: EOF") {
			return nil, apierror.ErrUnauthorized("invalid password")
		}
		return nil, err
	}
	secured, err := auth.WrapConn(conn, auth.DeriveSessionKey(key, serverNonce, clientNonce))
	if err != nil {
		return nil, err
	}
	return secured, nil
}

func encodeRequest(path string, payload any, pathParams map[string]string) ([]byte, error) {
	line := []byte(fillPath(path, pathParams))
	body, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		line = append(append(line, ' '), body...)
	}
	return append(line, '\x00'), nil
}

func fillPath(pattern string, params map[string]string) string {
	out := pattern
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", url.PathEscape(v))
	}
	return strings.ToLower(out)
}

func payloadBytes(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(v)
	}
}
