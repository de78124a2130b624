package auth_test

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"io"
	"net"
	"testing"

	"github.com/Alia5/PrinterBridge/internal/server/api/auth"
	apierror "github.com/Alia5/PrinterBridge/internal/server/api/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientHello builds the bytes a correct client opens the connection with.
func clientHello(key, nonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("PrinterBridge-Auth-v1"))
	mac.Write(nonce)
	hello := append([]byte(auth.HandshakeMagic), nonce...)
	return append(hello, mac.Sum(nil)...)
}

func closedPipeWriter() io.Writer {
	_, w := io.Pipe()
	w.Close()
	return w
}

func TestReadClientNonce(t *testing.T) {
	nonce := make([]byte, 32)
	for i := range nonce {
		nonce[i] = byte(i)
	}

	got, err := auth.ReadClientNonce(bytes.NewReader(nonce))
	require.NoError(t, err)
	assert.Equal(t, nonce, got)

	_, err = auth.ReadClientNonce(bytes.NewReader([]byte{1, 2, 3}))
	assert.EqualError(t, err, "read client nonce: unexpected EOF")

	_, err = auth.ReadClientNonce(bytes.NewReader(nil))
	assert.EqualError(t, err, "read client nonce: EOF")
}

func TestWriteServerHandshake(t *testing.T) {
	var buf bytes.Buffer
	serverNonce, err := auth.WriteServerHandshake(&buf)
	require.NoError(t, err)
	assert.Len(t, serverNonce, 32)

	wire := buf.Bytes()
	require.Len(t, wire, 35)
	assert.Equal(t, "OK\x00", string(wire[:3]))
	assert.Equal(t, serverNonce, wire[3:])

	_, err = auth.WriteServerHandshake(nil)
	assert.EqualError(t, err, "write response: write on nil pointer")

	_, err = auth.WriteServerHandshake(closedPipeWriter())
	assert.EqualError(t, err, "write response: io: read/write on closed pipe")
}

func TestIsAuthHandshake(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    bool
		wantErr string
	}{
		{name: "handshake magic", input: auth.HandshakeMagic, want: true},
		{name: "plain request", input: "printer/status\x00", want: false},
		{name: "too short to tell", input: "eP", wantErr: "EOF"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := auth.IsAuthHandshake(bufio.NewReader(bytes.NewBufferString(tc.input)))
			if tc.wantErr != "" {
				assert.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestServerSideHandshake(t *testing.T) {
	validKey := mustKey(t, "hunter2")
	wrongKey := mustKey(t, "letmein")

	nonce := make([]byte, 32)
	for i := range nonce {
		nonce[i] = byte(i)
	}
	hello := clientHello(validKey, nonce)

	cases := []struct {
		name    string
		input   []byte
		writer  io.Writer
		key     []byte
		wantErr string
	}{
		{
			name:   "valid hello",
			input:  hello,
			writer: &bytes.Buffer{},
			key:    validKey,
		},
		{
			name:    "truncated nonce",
			input:   append([]byte(auth.HandshakeMagic), 'x'),
			writer:  &bytes.Buffer{},
			key:     validKey,
			wantErr: "read client nonce: unexpected EOF",
		},
		{
			name:    "input shorter than magic",
			input:   []byte("eP"),
			writer:  &bytes.Buffer{},
			key:     validKey,
			wantErr: "discard handshake magic: EOF",
		},
		{
			name:    "garbage instead of hello",
			input:   []byte("NOT_A_HANDSHAKE"),
			writer:  &bytes.Buffer{},
			key:     validKey,
			wantErr: "read client nonce: unexpected EOF",
		},
		{
			name:    "nil writer",
			input:   hello,
			writer:  nil,
			key:     validKey,
			wantErr: "write response: write on nil pointer",
		},
		{
			name:    "closed writer",
			input:   hello,
			writer:  closedPipeWriter(),
			key:     validKey,
			wantErr: "write response: io: read/write on closed pipe",
		},
		{
			name:    "wrong key",
			input:   hello,
			writer:  &bytes.Buffer{},
			key:     wrongKey,
			wantErr: apierror.ErrUnauthorized("invalid password").Error(),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := bufio.NewReader(bytes.NewBuffer(tc.input))
			clientNonce, serverNonce, err := auth.HandleAuthHandshake(r, tc.writer, tc.key, false)
			if tc.wantErr != "" {
				assert.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, nonce, clientNonce)
			assert.Len(t, serverNonce, 32)
		})
	}
}

func TestHandshakeArgumentChecks(t *testing.T) {
	_, _, err := auth.HandleAuthHandshake(nil, &bytes.Buffer{}, mustKey(t, "hunter2"), false)
	assert.EqualError(t, err, "handshake: nil reader")

	_, _, err = auth.HandleAuthHandshake(bufio.NewReader(bytes.NewReader(nil)), &bytes.Buffer{}, nil, false)
	assert.EqualError(t, err, "handshake: missing key")

	_, _, err = auth.HandleAuthHandshake(bufio.NewReader(bytes.NewReader(nil)), nil, mustKey(t, "hunter2"), true)
	assert.EqualError(t, err, "handshake: nil writer")
}

// Both roles over one in-memory connection: nonces must agree on both sides
// and yield the same session key.
func TestClientServerHandshake(t *testing.T) {
	key := mustKey(t, "hunter2")

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	type result struct {
		clientNonce []byte
		serverNonce []byte
		err         error
	}
	serverDone := make(chan result, 1)

	go func() {
		r := bufio.NewReader(serverConn)
		ok, err := auth.IsAuthHandshake(r)
		if err != nil || !ok {
			serverDone <- result{err: io.ErrUnexpectedEOF}
			return
		}
		cn, sn, err := auth.HandleAuthHandshake(r, serverConn, key, false)
		serverDone <- result{clientNonce: cn, serverNonce: sn, err: err}
	}()

	cn, sn, err := auth.HandleAuthHandshake(bufio.NewReader(clientConn), clientConn, key, true)
	require.NoError(t, err)

	srv := <-serverDone
	require.NoError(t, srv.err)
	assert.Equal(t, cn, srv.clientNonce)
	assert.Equal(t, sn, srv.serverNonce)

	assert.Equal(t,
		auth.DeriveSessionKey(key, sn, cn),
		auth.DeriveSessionKey(key, srv.serverNonce, srv.clientNonce))
}
