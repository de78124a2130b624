package auth

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypted records on the wire: a 4-byte big-endian length covering the
// 12-byte nonce plus the ciphertext that follow it.
const (
	recordNonceSize = chacha20poly1305.NonceSize
	maxRecordSize   = 2 * 1024 * 1024
)

// sealedConn encrypts a net.Conn with ChaCha20-Poly1305. Each direction
// numbers its records with its own counter, embedded in the nonce, so
// records cannot be replayed within a session.
type sealedConn struct {
	net.Conn
	aead cipher.AEAD

	writeMu  sync.Mutex
	writeSeq uint64

	leftover bytes.Buffer
}

// WrapConn layers record encryption over conn using the given 32-byte
// session key. The returned connection is transparent to framing above it.
func WrapConn(conn net.Conn, sessionKey []byte) (net.Conn, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("session cipher: %w", err)
	}
	return &sealedConn{Conn: conn, aead: aead}, nil
}

func (c *sealedConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	nonce := make([]byte, recordNonceSize)
	binary.BigEndian.PutUint64(nonce[4:], c.writeSeq)
	c.writeSeq++

	sealed := c.aead.Seal(nil, nonce, p, nil)

	record := make([]byte, 0, 4+len(nonce)+len(sealed))
	record = binary.BigEndian.AppendUint32(record, uint32(len(nonce)+len(sealed)))
	record = append(record, nonce...)
	record = append(record, sealed...)
	if _, err := c.Conn.Write(record); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *sealedConn) Read(p []byte) (int, error) {
	if c.leftover.Len() == 0 {
		var hdr [4]byte
		if n, err := io.ReadFull(c.Conn, hdr[:]); err != nil {
			return n, err
		}
		size := binary.BigEndian.Uint32(hdr[:])
		if size < recordNonceSize || size > maxRecordSize {
			return 0, io.ErrUnexpectedEOF
		}

		record := make([]byte, size)
		if n, err := io.ReadFull(c.Conn, record); err != nil {
			return n, err
		}

		plain, err := c.aead.Open(nil, record[:recordNonceSize], record[recordNonceSize:], nil)
		if err != nil {
			return 0, err
		}
		c.leftover.Write(plain)
	}
	return c.leftover.Read(p)
}
