// Package votifier terminates the public voting-site protocol: a
// greeting followed by a single 256-byte RSA PKCS#1 v1.5 block whose
// plaintext is a 5-line vote record.
package votifier

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Greeting is sent verbatim on every accepted connection.
const Greeting = "VOTIFIER 2.0\n"

// BlockSize is the exact ciphertext length for a 2048-bit key.
const BlockSize = 256

var (
	// ErrBlockSize means the ciphertext was not exactly BlockSize bytes.
	ErrBlockSize = errors.New("votifier: invalid block size")
	// ErrCrypto means RSA decryption failed (wrong key or padding).
	ErrCrypto = errors.New("votifier: decryption failed")
	// ErrBadOpcode means the first plaintext line was not "VOTE".
	ErrBadOpcode = errors.New("votifier: bad opcode")
	// ErrTruncated means the plaintext had fewer than 5 lines.
	ErrTruncated = errors.New("votifier: truncated vote")
	// ErrEncoding means the plaintext was not valid UTF-8.
	ErrEncoding = errors.New("votifier: invalid encoding")
)

// Vote is one ballot received from a voting site. Timestamp is opaque;
// sites disagree on its format.
type Vote struct {
	Service   string
	User      string
	Address   string
	Timestamp string
}

func (v Vote) String() string {
	return fmt.Sprintf("Vote(service=%s, user=%s, addr=%s, time=%s)", v.Service, v.User, v.Address, v.Timestamp)
}

// Codec decrypts and parses vote blocks with a fixed RSA keypair.
type Codec struct {
	key *rsa.PrivateKey
}

// NewCodec wraps an already-loaded private key.
func NewCodec(key *rsa.PrivateKey) *Codec {
	return &Codec{key: key}
}

// Decrypt unwraps one PKCS#1 v1.5 block.
func (c *Codec) Decrypt(block []byte) ([]byte, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrBlockSize, BlockSize, len(block))
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, c.key, block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return plain, nil
}

// Parse decodes a decrypted vote payload:
//
//	VOTE\n<service>\n<user>\n<address>\n<timestamp>\n
//
// Trailing bytes after the fifth line are tolerated.
func Parse(plain []byte) (Vote, error) {
	if !utf8.Valid(plain) {
		return Vote{}, ErrEncoding
	}

	lines := strings.Split(strings.TrimSpace(string(plain)), "\n")
	if len(lines) < 5 {
		return Vote{}, fmt.Errorf("%w: expected 5 lines, got %d", ErrTruncated, len(lines))
	}

	if opcode := strings.TrimSpace(lines[0]); opcode != "VOTE" {
		return Vote{}, fmt.Errorf("%w: %q", ErrBadOpcode, opcode)
	}

	return Vote{
		Service:   strings.TrimSpace(lines[1]),
		User:      strings.TrimSpace(lines[2]),
		Address:   strings.TrimSpace(lines[3]),
		Timestamp: strings.TrimSpace(lines[4]),
	}, nil
}

// Process decrypts and parses a block in one step.
func (c *Codec) Process(block []byte) (Vote, error) {
	plain, err := c.Decrypt(block)
	if err != nil {
		return Vote{}, err
	}
	return Parse(plain)
}
